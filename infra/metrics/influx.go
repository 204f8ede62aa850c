package metrics

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/infra/logger"
)

// InfluxSink writes simulation events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and returns
// a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordTrades writes one point per executed trade.
func (s *InfluxSink) RecordTrades(trades []model.Trade) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, t := range trades {
		p := write.NewPointWithMeasurement("trade").
			AddTag("type", t.Type).
			AddTag("buyer_id", strconv.Itoa(t.BuyerID)).
			AddTag("seller_id", strconv.Itoa(t.SellerID)).
			AddField("quantity_kwh", model.Round4(t.Quantity)).
			AddField("price_eur_kwh", model.Round4(t.Price)).
			AddField("step", t.Timestamp).
			SetTime(time.Now())
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordBlock writes a point for a mined block.
func (s *InfluxSink) RecordBlock(ev coremetrics.BlockEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("block_mined").
		AddTag("index", strconv.Itoa(ev.Index)).
		AddField("transactions", ev.Transactions).
		AddField("nonce", ev.Nonce).
		AddField("step", ev.Step).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordStep writes the per-step community snapshot.
func (s *InfluxSink) RecordStep(snap coremetrics.StepSnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("community_step").
		AddTag("hour", strconv.Itoa(snap.Hour)).
		AddField("step", snap.Step).
		AddField("price_forecast", snap.PriceForecast).
		AddField("total_surplus_kwh", model.Round4(snap.TotalSurplus)).
		AddField("total_deficit_kwh", model.Round4(snap.TotalDeficit)).
		AddField("p2p_trades", snap.P2PTrades).
		AddField("market_trades", snap.MarketTrades).
		AddField("pending_transactions", snap.PendingTransactions).
		AddField("banned_prosumers", snap.BannedProsumers).
		AddField("community_balance_eur", model.Round4(snap.CommunityBalance)).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}
