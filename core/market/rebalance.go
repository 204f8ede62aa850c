package market

import (
	"math/rand"
	"sort"

	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/model"
)

// Rebalancer recruits idle prosumers holding stored battery energy as
// additional sellers when community demand exceeds supply by more than the
// configured threshold. Recruited sellers undercut PV-surplus sellers so
// stored energy is consumed first through the peer market.
type Rebalancer struct {
	cfg Config
	bat model.BatteryParams
	log logger.Logger
}

// NewRebalancer creates a rebalancer.
func NewRebalancer(cfg Config, bat model.BatteryParams, log logger.Logger) *Rebalancer {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Rebalancer{cfg: cfg, bat: bat, log: log}
}

// Rebalance inspects the demand/supply gap and converts idle prosumers into
// battery sellers until the gap falls within the threshold. It returns the
// ids of the recruited prosumers.
func (r *Rebalancer) Rebalance(prosumers []*model.Prosumer, priceForecast float64, rng *rand.Rand) []int {
	var demand, supply float64
	for _, p := range prosumers {
		switch p.Role {
		case model.RoleBuyer:
			demand += p.DesiredQuantity
		case model.RoleSeller:
			supply += p.DesiredQuantity
		}
	}
	gap := demand - supply
	if gap <= r.cfg.ImbalanceThreshold {
		return nil
	}

	// Candidates: idle, holding energy above the reserve floor.
	type candidate struct {
		p         *model.Prosumer
		available float64
	}
	var cands []candidate
	for _, p := range prosumers {
		if p.Role != model.RoleIdle {
			continue
		}
		avail := p.AvailableBatteryEnergy(r.bat)
		if avail > 0 {
			cands = append(cands, candidate{p: p, available: avail})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].available > cands[j].available })

	var recruited []int
	for _, c := range cands {
		offered := min(c.available*0.5, gap)
		if offered <= minTradeQuantity {
			continue
		}
		c.p.BecomeBatterySeller(offered, priceForecast, r.cfg.Offer(), rng)
		recruited = append(recruited, c.p.ID)
		gap -= offered
		if gap <= r.cfg.ImbalanceThreshold {
			break
		}
	}

	if len(recruited) > 0 {
		r.log.Debugf("rebalance: recruited %d battery sellers, residual gap %.2f kWh", len(recruited), gap)
	}
	return recruited
}
