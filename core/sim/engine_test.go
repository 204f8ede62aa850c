package sim

import (
	"context"
	"math"
	"testing"

	"github.com/kilianp07/microgrid/core/ledger"
	"github.com/kilianp07/microgrid/core/market"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/core/regulator"
)

func testEngine(t *testing.T, seed int64) *Engine {
	t.Helper()
	cfg := Config{Seed: seed}
	cfg.SetDefaults()
	marketCfg := market.Config{}
	marketCfg.SetDefaults()
	ledgerCfg := ledger.Config{Difficulty: 0}
	ledgerCfg.SetDefaults()
	regCfg := regulator.Config{}
	regCfg.SetDefaults()
	bat := model.BatteryParams{Efficiency: 0.95, MinSoC: 0.1, MaxSoC: 0.9}

	e, err := New(cfg, marketCfg, bat, ledgerCfg, regCfg, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := Config{NumProsumers: -1}
	_, err := New(cfg, market.Config{}, model.BatteryParams{}, ledger.Config{}, regulator.Config{}, nil, nil, nil, nil)
	if err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestFleetInitialization(t *testing.T) {
	e := testEngine(t, 42)
	ps := e.Prosumers()
	if len(ps) != 10 {
		t.Fatalf("expected 10 prosumers got %d", len(ps))
	}
	for _, p := range ps {
		if p.PVCapacityKW < 3 || p.PVCapacityKW > 10 {
			t.Fatalf("pv capacity %v outside configured range", p.PVCapacityKW)
		}
		if p.BaseConsumption < 0.3 || p.BaseConsumption > 3.0 {
			t.Fatalf("base consumption %v outside configured range", p.BaseConsumption)
		}
		if p.HasBattery && p.BatteryLevel != p.BatteryCapacity/2 {
			t.Fatalf("battery not at half capacity: %v/%v", p.BatteryLevel, p.BatteryCapacity)
		}
	}
	if _, ok := e.Prosumer(0); !ok {
		t.Fatal("lookup by id failed")
	}
	if _, ok := e.Prosumer(99); ok {
		t.Fatal("lookup of unknown id succeeded")
	}
}

func TestRunStepResetsTradingState(t *testing.T) {
	e := testEngine(t, 42)
	res := e.RunStep(12) // noon: generation and trading activity
	if res.Hour != 12 {
		t.Fatalf("expected hour 12 got %d", res.Hour)
	}
	if res.PriceForecast <= 0 {
		t.Fatalf("expected positive price forecast got %v", res.PriceForecast)
	}
	for _, p := range e.Prosumers() {
		if p.Banned() {
			continue
		}
		if p.Role != model.RoleIdle || p.DesiredQuantity != 0 || p.SellingFromBattery {
			t.Fatalf("prosumer %d trading state not reset: %+v", p.ID, p)
		}
	}
}

func TestRunProducesValidChain(t *testing.T) {
	e := testEngine(t, 42)
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Chain.IsValid {
		t.Fatal("final chain invalid")
	}
	if report.Chain.PendingTransactions != 0 {
		t.Fatalf("expected drained queue at difficulty 0, got %d pending", report.Chain.PendingTransactions)
	}
	if report.Chain.TotalTransactions == 0 {
		t.Fatal("expected at least one recorded trade over a full day")
	}
	if len(report.Miners) != 15 {
		t.Fatalf("expected 15 miners got %d", len(report.Miners))
	}

	// every ledger transaction matches an executed trade type
	for _, b := range e.Chain().Blocks()[1:] {
		for _, tx := range b.Transactions {
			if tx.Type != model.TradeP2P && tx.Type != model.TradeLocalMarket {
				t.Fatalf("unexpected trade type %q", tx.Type)
			}
			if tx.Quantity <= 0 || tx.Price <= 0 {
				t.Fatalf("degenerate transaction %+v", tx)
			}
			if math.Abs(tx.TotalCost-model.Round4(tx.Quantity*tx.Price)) > 1e-3 {
				t.Fatalf("total cost inconsistent: %+v", tx)
			}
		}
	}
}

func TestRunDeterministicUnderSeed(t *testing.T) {
	a := testEngine(t, 7)
	b := testEngine(t, 7)
	ra, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rb, err := b.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ra.Community.CommunityProfit != rb.Community.CommunityProfit {
		t.Fatalf("profit differs: %v vs %v", ra.Community.CommunityProfit, rb.Community.CommunityProfit)
	}
	if ra.Chain.TotalTransactions != rb.Chain.TotalTransactions {
		t.Fatalf("transaction count differs: %d vs %d", ra.Chain.TotalTransactions, rb.Chain.TotalTransactions)
	}
	if ra.Community.TotalP2PTrades != rb.Community.TotalP2PTrades {
		t.Fatalf("p2p trades differ: %d vs %d", ra.Community.TotalP2PTrades, rb.Community.TotalP2PTrades)
	}
}

func TestReportLeaderboard(t *testing.T) {
	e := testEngine(t, 42)
	ps := e.Prosumers()
	for i, p := range ps {
		p.Balance = float64(i)
	}
	report := e.Report()
	if len(report.Top) != 3 || len(report.Bottom) != 3 {
		t.Fatalf("expected 3 standings each, got %d/%d", len(report.Top), len(report.Bottom))
	}
	if report.Top[0].Balance != 9 || report.Bottom[2].Balance != 0 {
		t.Fatalf("standings misordered: top %v bottom %v", report.Top, report.Bottom)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	e := testEngine(t, 42)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Run(ctx); err == nil {
		t.Fatal("expected a context error")
	}
}

func TestWeightedBatteryCapacityDistribution(t *testing.T) {
	e := testEngine(t, 42)
	allowed := map[float64]bool{0: true, 5: true, 10: true, 15: true, 20: true}
	counts := map[float64]int{}
	for i := 0; i < 2000; i++ {
		c := e.weightedBatteryCapacity()
		if !allowed[c] {
			t.Fatalf("unexpected capacity %v", c)
		}
		counts[c]++
	}
	// the 40% weight on zero capacity must dominate the 5% tail
	if counts[0] < counts[20] {
		t.Fatalf("weighting not applied: %v", counts)
	}
}
