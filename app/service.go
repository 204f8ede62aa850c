package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kilianp07/microgrid/config"
	coremetrics "github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/sim"
	"github.com/kilianp07/microgrid/infra/logger"
	"github.com/kilianp07/microgrid/infra/metrics"
	"github.com/kilianp07/microgrid/infra/mqtt"
	"github.com/kilianp07/microgrid/internal/eventbus"
	"github.com/kilianp07/microgrid/pkg/export"
)

// Service wires the configuration into a ready simulation engine with its
// metrics sinks and telemetry publisher.
type Service struct {
	Engine *sim.Engine

	runID       string
	cfg         *config.Config
	bus         *eventbus.Bus
	publisher   *mqtt.Publisher
	log         logger.Logger
	promEnabled bool
	promPort    int
	wg          sync.WaitGroup
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	runID := uuid.NewString()
	logg := logger.NewWithLevel("service", cfg.Logging.Level)
	logg.Infof("starting run %s", runID)

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = coremetrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	engine, err := sim.New(cfg.Simulation, cfg.Market, cfg.Battery, cfg.Ledger, cfg.Regulator,
		nil, logger.NewWithLevel("engine", cfg.Logging.Level), sink, bus)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	svc := &Service{
		Engine:      engine,
		runID:       runID,
		cfg:         cfg,
		bus:         bus,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(cfg.MQTT, logger.NewWithLevel("mqtt", cfg.Logging.Level))
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	return svc, nil
}

// Run executes the simulation to completion and writes the configured
// exports. It blocks until the run finishes or the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	// Background goroutines stop when the run itself finishes, not only on
	// external cancellation.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.promEnabled {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.publisher != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.publisher.Run(ctx, s.bus)
		}()
	}

	report, err := s.Engine.Run(ctx)
	if err != nil {
		return err
	}

	s.log.Infof("run %s complete: %d blocks, %d p2p trades, %d market trades, chain valid: %t",
		s.runID, report.Chain.TotalBlocks, report.Community.TotalP2PTrades,
		report.Community.TotalMarketTrades, report.Chain.IsValid)

	if dir := s.cfg.Export.Dir; dir != "" {
		res := export.RunResult{
			RunID:  s.runID,
			Report: report,
			Chain:  s.Engine.Chain().Blocks(),
		}
		for _, p := range s.Engine.Prosumers() {
			res.Prosumers = append(res.Prosumers, export.Snapshot(p))
		}
		if err := export.WriteRun(dir, res); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		s.log.Infof("results written to %s", dir)
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if s.publisher != nil {
		s.publisher.Close()
	}
	s.wg.Wait()
	return nil
}
