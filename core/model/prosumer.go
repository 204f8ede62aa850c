package model

import (
	"fmt"
	"math"
	"math/rand"
)

// Activity floor below which a quantity is treated as zero.
const quantityFloor = 0.01

// BatteryParams bounds battery charge and discharge behaviour.
type BatteryParams struct {
	Efficiency float64 `json:"efficiency"` // one-way conversion efficiency (0,1]
	MinSoC     float64 `json:"min_soc"`    // reserve fraction of capacity
	MaxSoC     float64 `json:"max_soc"`    // usable fraction of capacity
}

// Validate checks the battery parameters are physically sound.
func (p BatteryParams) Validate() error {
	if p.Efficiency <= 0 || p.Efficiency > 1 {
		return fmt.Errorf("battery efficiency must be in (0,1], got %v", p.Efficiency)
	}
	if p.MinSoC < 0 || p.MaxSoC > 1 || p.MinSoC >= p.MaxSoC {
		return fmt.Errorf("battery soc bounds invalid: min %v max %v", p.MinSoC, p.MaxSoC)
	}
	return nil
}

// OfferParams carries the market constants offer pricing depends on.
type OfferParams struct {
	Fee         float64 // local market fee in EUR/kWh
	MaxTradeCap float64 // maximum trade quantity per prosumer per step in kWh
}

// Prosumer is an agent that both produces and consumes energy. It is created
// once at simulation start and mutated in place by the timestep phases.
type Prosumer struct {
	ID       int
	HomeType int

	// Capacity attributes, fixed for the whole run.
	PVCapacityKW    float64
	BaseConsumption float64 // kWh per step
	BatteryCapacity float64 // kWh, zero when no battery
	HasBattery      bool

	// Per-step energy state.
	PVGeneration  float64
	Consumption   float64
	Imbalance     float64 // kWh, positive = surplus, negative = deficit
	BatteryLevel  float64 // kWh within [MinSoC*cap, MaxSoC*cap]
	ChargedKWh    float64 // energy stored this step
	DischargedKWh float64 // energy released this step

	// Trading state, reset at the end of every step.
	Role               Role
	DesiredQuantity    float64 // kWh, monotonically non-increasing within a step
	BidPrice           float64
	AskPrice           float64
	SellingFromBattery bool

	// Financial ledger, cumulative over the run.
	Balance        float64
	RenewableUsage float64
	P2PTrades      int
	MarketTrades   int
	MarketQuantity float64
	Penalties      float64
	Bonus          float64

	// Ban state.
	BanDuration int
	BanReason   string
}

// NewProsumer creates a prosumer. The battery, when present, starts at half
// capacity.
func NewProsumer(id int, pvCapacityKW, baseConsumption, batteryCapacity float64) *Prosumer {
	p := &Prosumer{
		ID:              id,
		PVCapacityKW:    pvCapacityKW,
		BaseConsumption: baseConsumption,
		BatteryCapacity: batteryCapacity,
		HasBattery:      batteryCapacity > 0,
	}
	if p.HasBattery {
		p.BatteryLevel = batteryCapacity / 2
	}
	return p
}

// Banned reports whether the prosumer is currently excluded from trading.
func (p *Prosumer) Banned() bool { return p.Role == RoleBanned }

// UpdateEnergyState applies the step's generation and consumption, performs
// self-consumption and battery dispatch, and leaves the residual imbalance
// for the market phases. Direct self-consumption and battery output both
// count as renewable usage since they originate from PV.
func (p *Prosumer) UpdateEnergyState(pvGeneration, consumption float64, bat BatteryParams) {
	p.PVGeneration = pvGeneration
	p.Consumption = consumption
	p.ChargedKWh = 0
	p.DischargedKWh = 0

	initial := pvGeneration - consumption
	p.RenewableUsage += math.Min(pvGeneration, consumption)

	if !p.HasBattery {
		p.Imbalance = initial
		return
	}

	switch {
	case initial > 0:
		// Surplus charges the battery up to the usable ceiling. The
		// conversion loss is charged on the way in.
		space := math.Max(0, bat.MaxSoC*p.BatteryCapacity-p.BatteryLevel)
		maxInput := space / bat.Efficiency
		store := math.Min(initial, maxInput)
		p.BatteryLevel += store * bat.Efficiency
		p.Imbalance = initial - store
		p.ChargedKWh = store
	case initial < 0:
		// Deficit draws down to the reserve floor.
		avail := math.Max(0, p.BatteryLevel-bat.MinSoC*p.BatteryCapacity)
		needed := -initial
		discharge := math.Min(needed/bat.Efficiency, avail)
		output := discharge * bat.Efficiency
		p.BatteryLevel -= discharge
		p.Imbalance = initial + output
		p.DischargedKWh = output
		p.RenewableUsage += output
	default:
		p.Imbalance = 0
	}

	p.clampBattery(bat)
}

func (p *Prosumer) clampBattery(bat BatteryParams) {
	lo := bat.MinSoC * p.BatteryCapacity
	hi := bat.MaxSoC * p.BatteryCapacity
	if p.BatteryLevel < lo {
		p.BatteryLevel = lo
	}
	if p.BatteryLevel > hi {
		p.BatteryLevel = hi
	}
}

// AvailableBatteryEnergy returns the energy above the reserve floor.
func (p *Prosumer) AvailableBatteryEnergy(bat BatteryParams) float64 {
	if !p.HasBattery {
		return 0
	}
	return math.Max(0, p.BatteryLevel-bat.MinSoC*p.BatteryCapacity)
}

// PrepareOffer derives the trading role, desired quantity and limit price
// from the current imbalance. Ask prices stay strictly below the grid buy
// price and bids strictly above the grid sell price so a compatible peer
// match is always structurally possible before falling back to the
// aggregator. Banned prosumers do not trade.
func (p *Prosumer) PrepareOffer(priceForecast float64, params OfferParams, rng *rand.Rand) {
	if p.Banned() {
		p.DesiredQuantity = 0
		return
	}

	gridBuy := priceForecast + params.Fee
	gridSell := priceForecast - params.Fee
	spread := gridBuy - gridSell

	switch {
	case p.Imbalance > quantityFloor:
		p.Role = RoleSeller
		p.DesiredQuantity = math.Min(p.Imbalance, params.MaxTradeCap)
		urgency := p.DesiredQuantity / params.MaxTradeCap
		noise := uniform(rng, 0.98, 1.05)
		ask := (gridSell + urgency*spread) * noise
		p.AskPrice = clamp(ask, gridSell*1.01, gridBuy*0.95)
	case p.Imbalance < -quantityFloor:
		p.Role = RoleBuyer
		p.DesiredQuantity = math.Min(-p.Imbalance, params.MaxTradeCap)
		urgency := p.DesiredQuantity / params.MaxTradeCap
		noise := uniform(rng, 0.97, 1.01)
		mid := (gridSell + gridBuy) / 2
		bid := (mid + urgency*spread*0.5) * noise
		p.BidPrice = clamp(bid, gridSell*1.08, gridBuy*0.97)
	default:
		p.Role = RoleIdle
		p.DesiredQuantity = 0
	}
}

// BecomeBatterySeller recruits an idle prosumer as a seller of stored energy.
// The ask is priced below PV-surplus sellers so stored energy is consumed
// first through the peer market.
func (p *Prosumer) BecomeBatterySeller(quantity, priceForecast float64, params OfferParams, rng *rand.Rand) {
	if p.Banned() || quantity <= 0 {
		return
	}
	gridBuy := priceForecast + params.Fee
	gridSell := priceForecast - params.Fee
	spread := gridBuy - gridSell

	p.Role = RoleSeller
	p.SellingFromBattery = true
	p.DesiredQuantity = quantity
	urgency := quantity / params.MaxTradeCap

	base := (gridSell + priceForecast) / 2
	noise := uniform(rng, 0.95, 1.00)
	ask := (base + urgency*spread*0.3) * noise
	p.AskPrice = clamp(ask, gridSell*1.03, gridBuy*0.85)
}

// AcceptTrade applies an executed trade to the prosumer's energy and
// financial state. price is the unit price in EUR/kWh. Sellers serving from
// battery draw down the battery instead of the imbalance.
func (p *Prosumer) AcceptTrade(quantity, price float64, asBuyer, p2p bool) {
	if asBuyer {
		p.Imbalance += quantity
		p.Balance -= price * quantity
	} else {
		if p.SellingFromBattery {
			p.BatteryLevel -= quantity
		} else {
			p.Imbalance -= quantity
		}
		p.Balance += price * quantity
	}

	p.DesiredQuantity = math.Max(0, p.DesiredQuantity-quantity)

	if p2p {
		p.P2PTrades++
	} else {
		p.MarketTrades++
	}
}

// ApplyBan excludes the prosumer from trading for the given number of steps.
func (p *Prosumer) ApplyBan(duration int, reason string) {
	p.Role = RoleBanned
	p.BanDuration = duration
	p.BanReason = reason
	p.DesiredQuantity = 0
	p.BidPrice = 0
	p.AskPrice = 0
	p.SellingFromBattery = false
}

// TickBan decrements the remaining ban duration and lifts the ban when it
// reaches zero. It reports whether the ban was lifted.
func (p *Prosumer) TickBan() bool {
	if !p.Banned() {
		return false
	}
	p.BanDuration--
	if p.BanDuration <= 0 {
		p.BanDuration = 0
		p.BanReason = ""
		p.Role = RoleIdle
		return true
	}
	return false
}

// ResetTradingState clears the per-step trading state. Bans persist.
func (p *Prosumer) ResetTradingState() {
	if !p.Banned() {
		p.Role = RoleIdle
	}
	p.DesiredQuantity = 0
	p.BidPrice = 0
	p.AskPrice = 0
	p.SellingFromBattery = false
}

func (p *Prosumer) String() string {
	return fmt.Sprintf("Prosumer(id=%d, pv=%.1fkW, imbalance=%.2fkWh, balance=%.2fEUR)",
		p.ID, p.PVCapacityKW, p.Imbalance, p.Balance)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
