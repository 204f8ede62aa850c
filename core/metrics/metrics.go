package metrics

import "github.com/kilianp07/microgrid/core/model"

// BlockEvent captures a successfully mined block.
type BlockEvent struct {
	Index        int
	Transactions int
	Nonce        int
	Step         int
}

// StepSnapshot is a per-step observability record of the community.
type StepSnapshot struct {
	Step                int
	Hour                int
	PriceForecast       float64
	TotalSurplus        float64
	TotalDeficit        float64
	P2PTrades           int
	MarketTrades        int
	PendingTransactions int
	BannedProsumers     int
	CommunityBalance    float64
}

// Sink records simulation events for observability purposes.
type Sink interface {
	RecordTrades(trades []model.Trade) error
	RecordBlock(ev BlockEvent) error
	RecordStep(snap StepSnapshot) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordTrades([]model.Trade) error { return nil }
func (NopSink) RecordBlock(BlockEvent) error     { return nil }
func (NopSink) RecordStep(StepSnapshot) error    { return nil }

// MultiSink fans out events to several sinks, returning the first error.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordTrades(trades []model.Trade) error {
	for _, s := range m.sinks {
		if err := s.RecordTrades(trades); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordBlock(ev BlockEvent) error {
	for _, s := range m.sinks {
		if err := s.RecordBlock(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordStep(snap StepSnapshot) error {
	for _, s := range m.sinks {
		if err := s.RecordStep(snap); err != nil {
			return err
		}
	}
	return nil
}
