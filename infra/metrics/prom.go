package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/model"
)

// PromSink records simulation events in Prometheus metrics.
type PromSink struct {
	trades    *prometheus.CounterVec
	energy    *prometheus.CounterVec
	blocks    prometheus.Counter
	price     prometheus.Histogram
	pending   prometheus.Gauge
	banned    prometheus.Gauge
	community prometheus.Gauge
}

// NewPromSink registers simulation metrics on the default Prometheus
// registerer. The exposition server is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	trades := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "microgrid_trades_total",
		Help: "Total number of executed trades",
	}, []string{"type"})
	energy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "microgrid_traded_energy_kwh_total",
		Help: "Total traded energy in kWh",
	}, []string{"type"})
	blocks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "microgrid_blocks_mined_total",
		Help: "Total number of mined ledger blocks",
	})
	price := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "microgrid_trade_price_eur_per_kwh",
		Help:    "Distribution of executed trade prices",
		Buckets: prometheus.LinearBuckets(0.05, 0.025, 10),
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "microgrid_pending_transactions",
		Help: "Transactions waiting to be mined",
	})
	banned := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "microgrid_banned_prosumers",
		Help: "Prosumers currently banned from trading",
	})
	community := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "microgrid_community_balance_eur",
		Help: "Sum of all prosumer balances",
	})

	s := &PromSink{trades: trades, energy: energy, blocks: blocks, price: price,
		pending: pending, banned: banned, community: community}

	collectors := []prometheus.Collector{trades, energy, blocks, price, pending, banned, community}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			switch i {
			case 0:
				s.trades = are.ExistingCollector.(*prometheus.CounterVec)
			case 1:
				s.energy = are.ExistingCollector.(*prometheus.CounterVec)
			case 2:
				s.blocks = are.ExistingCollector.(prometheus.Counter)
			case 3:
				s.price = are.ExistingCollector.(prometheus.Histogram)
			case 4:
				s.pending = are.ExistingCollector.(prometheus.Gauge)
			case 5:
				s.banned = are.ExistingCollector.(prometheus.Gauge)
			case 6:
				s.community = are.ExistingCollector.(prometheus.Gauge)
			}
		}
	}
	return s, nil
}

// RecordTrades increments the trade counters and observes prices.
func (s *PromSink) RecordTrades(trades []model.Trade) error {
	for _, t := range trades {
		s.trades.WithLabelValues(t.Type).Inc()
		s.energy.WithLabelValues(t.Type).Add(t.Quantity)
		s.price.Observe(t.Price)
	}
	return nil
}

// RecordBlock counts a mined block.
func (s *PromSink) RecordBlock(coremetrics.BlockEvent) error {
	s.blocks.Inc()
	return nil
}

// RecordStep updates the community gauges.
func (s *PromSink) RecordStep(snap coremetrics.StepSnapshot) error {
	s.pending.Set(float64(snap.PendingTransactions))
	s.banned.Set(float64(snap.BannedProsumers))
	s.community.Set(snap.CommunityBalance)
	return nil
}
