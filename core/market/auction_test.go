package market

import (
	"math"
	"testing"

	"github.com/kilianp07/microgrid/core/model"
)

func buyer(id int, qty, bid float64) *model.Prosumer {
	p := model.NewProsumer(id, 5, 1, 0)
	p.Imbalance = -qty
	p.Role = model.RoleBuyer
	p.DesiredQuantity = qty
	p.BidPrice = bid
	return p
}

func seller(id int, qty, ask float64) *model.Prosumer {
	p := model.NewProsumer(id, 5, 1, 0)
	p.Imbalance = qty
	p.Role = model.RoleSeller
	p.DesiredQuantity = qty
	p.AskPrice = ask
	return p
}

func TestMatchSinglePair(t *testing.T) {
	b := buyer(0, 2, 0.20)
	s := seller(1, 2, 0.15)
	trades := NewAuction(nil).Match([]*model.Prosumer{b, s}, 0)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade got %d", len(trades))
	}
	tr := trades[0]
	if tr.Quantity != 2 || tr.Price != 0.175 {
		t.Fatalf("expected 2 kWh at 0.175 got %v at %v", tr.Quantity, tr.Price)
	}
	if b.DesiredQuantity != 0 || s.DesiredQuantity != 0 {
		t.Fatalf("positions not cleared: %v %v", b.DesiredQuantity, s.DesiredQuantity)
	}
	if tr.BuyerID != 0 || tr.SellerID != 1 || tr.Type != model.TradeP2P {
		t.Fatalf("unexpected trade record %+v", tr)
	}
}

func TestMatchPartialFills(t *testing.T) {
	b := buyer(0, 5, 0.20)
	s1 := seller(1, 2, 0.14)
	s2 := seller(2, 3, 0.16)
	trades := NewAuction(nil).Match([]*model.Prosumer{b, s1, s2}, 0)
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades got %d", len(trades))
	}
	var total float64
	for _, tr := range trades {
		total += tr.Quantity
	}
	if total != 5 {
		t.Fatalf("expected 5 kWh matched got %v", total)
	}
	// cheapest ask fills first
	if trades[0].SellerID != 1 || trades[1].SellerID != 2 {
		t.Fatalf("unexpected fill order %+v", trades)
	}
	if b.DesiredQuantity != 0 || s1.DesiredQuantity != 0 || s2.DesiredQuantity != 0 {
		t.Fatal("positions not cleared")
	}
}

func TestMatchNoCross(t *testing.T) {
	b := buyer(0, 2, 0.14)
	s := seller(1, 2, 0.16)
	trades := NewAuction(nil).Match([]*model.Prosumer{b, s}, 0)
	if trades != nil {
		t.Fatalf("expected no trades got %d", len(trades))
	}
	if b.DesiredQuantity != 2 || s.DesiredQuantity != 2 {
		t.Fatal("unmatched positions must survive for the local market")
	}
}

func TestMatchPricePriority(t *testing.T) {
	b1 := buyer(0, 1, 0.16)
	b2 := buyer(1, 1, 0.19)
	s := seller(2, 1, 0.15)
	trades := NewAuction(nil).Match([]*model.Prosumer{b1, b2, s}, 0)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade got %d", len(trades))
	}
	if trades[0].BuyerID != 1 {
		t.Fatalf("highest bid must fill first, got buyer %d", trades[0].BuyerID)
	}
	if trades[0].Price != (0.19+0.15)/2 {
		t.Fatalf("expected midpoint price, got %v", trades[0].Price)
	}
}

func TestMatchConservesEnergyAndMoney(t *testing.T) {
	participants := []*model.Prosumer{
		buyer(0, 3, 0.18),
		buyer(1, 2, 0.17),
		seller(2, 2.5, 0.14),
		seller(3, 1.5, 0.15),
		seller(4, 2, 0.16),
	}
	var imbalanceBefore float64
	for _, p := range participants {
		imbalanceBefore += p.Imbalance
	}
	trades := NewAuction(nil).Match(participants, 0)
	var imbalanceAfter, balanceSum float64
	for _, p := range participants {
		imbalanceAfter += p.Imbalance
		balanceSum += p.Balance
	}
	// every trade moves energy and money between two members, never
	// creating or destroying either
	if math.Abs(imbalanceAfter-imbalanceBefore) > 1e-9 {
		t.Fatalf("energy not conserved: %v -> %v", imbalanceBefore, imbalanceAfter)
	}
	if math.Abs(balanceSum) > 1e-9 {
		t.Fatalf("money not conserved: net balance %v", balanceSum)
	}
	for _, tr := range trades {
		if tr.Quantity <= minTradeQuantity {
			t.Fatalf("trade below quantity floor: %v", tr.Quantity)
		}
	}
}

func TestMatchSkipsBannedAndIdle(t *testing.T) {
	b := buyer(0, 2, 0.20)
	s := seller(1, 2, 0.15)
	s.Role = model.RoleBanned
	idle := model.NewProsumer(2, 5, 1, 0)
	trades := NewAuction(nil).Match([]*model.Prosumer{b, s, idle}, 0)
	if trades != nil {
		t.Fatalf("expected no trades got %d", len(trades))
	}
}
