package sim

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/kilianp07/microgrid/core/events"
	"github.com/kilianp07/microgrid/core/forecast"
	"github.com/kilianp07/microgrid/core/ledger"
	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/market"
	"github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/core/regulator"
	"github.com/kilianp07/microgrid/internal/eventbus"
)

// hoursPerDay maps steps onto the daily generation and price patterns.
const hoursPerDay = 24

// mopUpFailureLimit bounds end-of-run mining retries so the simulation
// terminates even when the difficulty makes success unlikely.
const mopUpFailureLimit = 3

// StepResult summarizes one simulated step.
type StepResult struct {
	Step          int
	Hour          int
	PriceForecast float64
	P2PTrades     []model.Trade
	MarketTrades  []model.Trade
	Block         *ledger.Block
	Bans          []regulator.BanRecord
}

// Standing ranks a prosumer by final balance.
type Standing struct {
	ProsumerID int     `json:"prosumer_id"`
	Balance    float64 `json:"balance"`
}

// FinalReport is the end-of-run reporting surface.
type FinalReport struct {
	Chain     ledger.Summary             `json:"chain"`
	Miners    []ledger.Miner             `json:"miners"`
	Community regulator.CommunityMetrics `json:"community"`
	Bans      []regulator.BanRecord      `json:"bans"`
	Top       []Standing                 `json:"top_prosumers"`
	Bottom    []Standing                 `json:"bottom_prosumers"`
}

// Engine runs the community simulation: one logical clock advancing one
// simulated hour per step, executing the trading and settlement phases in a
// fixed order. The engine is single-threaded; all phase mutations happen
// sequentially on the engine goroutine.
type Engine struct {
	cfg       Config
	marketCfg market.Config
	bat       model.BatteryParams

	prosumers []*model.Prosumer
	byID      map[int]*model.Prosumer

	auction    *market.Auction
	rebalancer *market.Rebalancer
	local      *market.LocalMarket
	chain      *ledger.Blockchain
	reg        *regulator.Regulator
	gen        forecast.Generators

	rng  *rand.Rand
	log  logger.Logger
	sink metrics.Sink
	bus  eventbus.EventBus
}

// New creates an engine with a freshly initialized prosumer fleet. A zero
// seed falls back to the wall clock. Nil logger, sink and bus are replaced
// by no-op implementations; nil generators by the reference ones.
func New(cfg Config, marketCfg market.Config, bat model.BatteryParams,
	ledgerCfg ledger.Config, regCfg regulator.Config,
	gen *forecast.Generators, log logger.Logger, sink metrics.Sink, bus eventbus.EventBus) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := marketCfg.Validate(); err != nil {
		return nil, err
	}
	if err := bat.Validate(); err != nil {
		return nil, err
	}
	if err := ledgerCfg.Validate(); err != nil {
		return nil, err
	}
	if err := regCfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	e := &Engine{
		cfg:        cfg,
		marketCfg:  marketCfg,
		bat:        bat,
		auction:    market.NewAuction(log),
		rebalancer: market.NewRebalancer(marketCfg, bat, log),
		local:      market.NewLocalMarket(marketCfg, log),
		chain:      ledger.New(ledgerCfg, log),
		reg:        regulator.New(regCfg, log),
		rng:        rng,
		log:        log,
		sink:       sink,
		bus:        bus,
	}
	if gen != nil {
		e.gen = *gen
	} else {
		e.gen = forecast.Default(rng)
	}

	e.initFleet()
	e.log.Infof("engine ready: %d prosumers, %d steps, seed %d", cfg.NumProsumers, cfg.TimeSteps, seed)
	return e, nil
}

// initFleet creates the prosumer fleet with randomized capacities. Battery
// capacity is drawn from the weighted capacity set.
func (e *Engine) initFleet() {
	e.prosumers = make([]*model.Prosumer, 0, e.cfg.NumProsumers)
	e.byID = make(map[int]*model.Prosumer, e.cfg.NumProsumers)
	for i := 0; i < e.cfg.NumProsumers; i++ {
		pv := e.cfg.MinPVCapacityKW + e.rng.Float64()*(e.cfg.MaxPVCapacityKW-e.cfg.MinPVCapacityKW)
		base := e.cfg.MinBaseConsumption + e.rng.Float64()*(e.cfg.MaxBaseConsumption-e.cfg.MinBaseConsumption)
		battery := e.weightedBatteryCapacity()
		p := model.NewProsumer(i, pv, base, battery)
		e.prosumers = append(e.prosumers, p)
		e.byID[p.ID] = p
	}
}

func (e *Engine) weightedBatteryCapacity() float64 {
	var total float64
	for _, w := range e.cfg.BatteryWeights {
		total += w
	}
	r := e.rng.Float64() * total
	for i, w := range e.cfg.BatteryWeights {
		r -= w
		if r < 0 {
			return e.cfg.BatteryCapacities[i]
		}
	}
	return e.cfg.BatteryCapacities[len(e.cfg.BatteryCapacities)-1]
}

// RunStep executes one simulated hour through every phase in order:
// generation, dispatch, offer pricing, battery-assisted rebalancing, the
// peer auction, aggregator clearing, settlement on the ledger, the regulator
// phases, and the trading-state reset.
func (e *Engine) RunStep(step int) StepResult {
	hour := step % hoursPerDay
	res := StepResult{Step: step, Hour: hour}

	for _, p := range e.prosumers {
		pv := e.gen.PV(hour, p.PVCapacityKW)
		cons := e.gen.Consumption(hour, p.BaseConsumption)
		p.UpdateEnergyState(pv, cons, e.bat)
	}

	price := e.gen.Price(hour, e.cfg.BasePrice)
	res.PriceForecast = price

	offer := e.marketCfg.Offer()
	for _, p := range e.prosumers {
		p.PrepareOffer(price, offer, e.rng)
	}

	e.rebalancer.Rebalance(e.prosumers, price, e.rng)

	res.P2PTrades = e.auction.Match(e.prosumers, step)
	res.MarketTrades = e.local.Clear(e.prosumers, price, step)

	all := make([]model.Trade, 0, len(res.P2PTrades)+len(res.MarketTrades))
	all = append(all, res.P2PTrades...)
	all = append(all, res.MarketTrades...)
	for _, t := range all {
		e.chain.AddTransaction(t.Payload())
		e.publish(events.TradeExecuted{Trade: t})
	}
	if err := e.sink.RecordTrades(all); err != nil {
		e.log.Warnf("metrics: record trades: %v", err)
	}

	if block := e.chain.MinePending(e.rng); block != nil {
		res.Block = block
		e.publish(events.BlockMined{
			Index:        block.Index,
			Transactions: len(block.Transactions),
			Nonce:        block.Nonce,
			Hash:         block.Hash,
			Step:         step,
		})
		if err := e.sink.RecordBlock(metrics.BlockEvent{
			Index:        block.Index,
			Transactions: len(block.Transactions),
			Nonce:        block.Nonce,
			Step:         step,
		}); err != nil {
			e.log.Warnf("metrics: record block: %v", err)
		}
	}

	e.reg.UpdateBanStatus(e.prosumers)
	e.reg.Incentivize(e.prosumers)
	res.Bans = e.reg.EnforceRules(e.prosumers, step)
	for _, b := range res.Bans {
		dur := 0
		if p, ok := e.byID[b.ProsumerID]; ok {
			dur = p.BanDuration
		}
		e.publish(events.ProsumerBanned{ProsumerID: b.ProsumerID, Reason: b.Reason, Duration: dur, Step: step})
	}

	if err := e.sink.RecordStep(e.snapshot(res)); err != nil {
		e.log.Warnf("metrics: record step: %v", err)
	}
	e.publish(events.StepCompleted{Step: step, Hour: hour, P2PTrades: len(res.P2PTrades), MarketTrades: len(res.MarketTrades)})

	for _, p := range e.prosumers {
		p.ResetTradingState()
	}
	return res
}

func (e *Engine) snapshot(res StepResult) metrics.StepSnapshot {
	snap := metrics.StepSnapshot{
		Step:                res.Step,
		Hour:                res.Hour,
		PriceForecast:       res.PriceForecast,
		P2PTrades:           len(res.P2PTrades),
		MarketTrades:        len(res.MarketTrades),
		PendingTransactions: e.chain.PendingCount(),
	}
	for _, p := range e.prosumers {
		if p.Imbalance > 0 {
			snap.TotalSurplus += p.Imbalance
		} else {
			snap.TotalDeficit -= p.Imbalance
		}
		if p.Banned() {
			snap.BannedProsumers++
		}
		snap.CommunityBalance += p.Balance
	}
	return snap
}

// Run executes the configured number of steps, then mines any transactions
// still queued. Mining failures during the mop-up are retried a bounded
// number of times so the run always terminates. Cancellation stops the run
// between steps.
func (e *Engine) Run(ctx context.Context) (FinalReport, error) {
	for step := 0; step < e.cfg.TimeSteps; step++ {
		if err := ctx.Err(); err != nil {
			return e.Report(), err
		}
		res := e.RunStep(step)
		e.log.Infof("step %d (hour %02d): price %.4f, %d p2p, %d market trades",
			step, res.Hour, res.PriceForecast, len(res.P2PTrades), len(res.MarketTrades))
	}

	failures := 0
	for e.chain.PendingCount() > 0 && failures < mopUpFailureLimit {
		block := e.chain.MinePending(e.rng)
		if block == nil {
			failures++
			continue
		}
		e.publish(events.BlockMined{
			Index:        block.Index,
			Transactions: len(block.Transactions),
			Nonce:        block.Nonce,
			Hash:         block.Hash,
			Step:         e.cfg.TimeSteps,
		})
	}
	if pending := e.chain.PendingCount(); pending > 0 {
		e.log.Warnf("run finished with %d transactions still pending", pending)
	}

	return e.Report(), nil
}

// leaderboardSize bounds the top and bottom standings in the final report.
const leaderboardSize = 3

// Report assembles the final reporting surface.
func (e *Engine) Report() FinalReport {
	standings := make([]Standing, len(e.prosumers))
	for i, p := range e.prosumers {
		standings[i] = Standing{ProsumerID: p.ID, Balance: model.Round4(p.Balance)}
	}
	sort.SliceStable(standings, func(i, j int) bool { return standings[i].Balance > standings[j].Balance })

	n := leaderboardSize
	if n > len(standings) {
		n = len(standings)
	}
	top := make([]Standing, n)
	copy(top, standings[:n])
	bottom := make([]Standing, n)
	copy(bottom, standings[len(standings)-n:])

	return FinalReport{
		Chain:     e.chain.Summarize(),
		Miners:    e.chain.MinerStats(),
		Community: e.reg.Metrics(e.prosumers),
		Bans:      e.reg.BanHistory(),
		Top:       top,
		Bottom:    bottom,
	}
}

// Prosumers returns the fleet. Callers must not mutate prosumers while a
// step is executing.
func (e *Engine) Prosumers() []*model.Prosumer { return e.prosumers }

// Prosumer returns the prosumer with the given id.
func (e *Engine) Prosumer(id int) (*model.Prosumer, bool) {
	p, ok := e.byID[id]
	return p, ok
}

// Chain exposes the ledger for reporting and export.
func (e *Engine) Chain() *ledger.Blockchain { return e.chain }

// Regulator exposes the rule engine for reporting.
func (e *Engine) Regulator() *regulator.Regulator { return e.reg }

func (e *Engine) publish(ev eventbus.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
