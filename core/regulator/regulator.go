package regulator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/model"
)

// Community objectives. The objective drives reporting only; the rule
// thresholds are fixed.
const (
	ObjectiveMaximizeRenewable = "maximize_renewable"
	ObjectiveMaximizeProfit    = "maximize_profit"
	ObjectiveMaximizeP2P       = "maximize_p2p"
)

// Ban reasons.
const (
	ReasonExcessiveMarketUsage = "excessive_market_usage"
	ReasonNegativeBalance      = "negative_balance"
)

// Rule thresholds and durations.
const (
	marketPenaltyThreshold = 2.0
	marketBonusThreshold   = 2.0
	negativeBalanceFloor   = -20.0
	marketBanSteps         = 2
	balanceBanSteps        = 3
	banCooldownSteps       = 5
)

// Config defines regulator parameters loaded from configuration.
type Config struct {
	Objective        string  `json:"objective"`
	RenewableBonus   float64 `json:"renewable_bonus"`    // EUR/kWh paid on cumulative renewable usage
	P2PBonus         float64 `json:"p2p_bonus"`          // EUR/kWh reserved for P2P incentives
	PenaltyForMarket float64 `json:"penalty_for_market"` // EUR/kWh charged on cumulative market quantity
}

// SetDefaults fills unset fields with the reference community values.
func (c *Config) SetDefaults() {
	if c.Objective == "" {
		c.Objective = ObjectiveMaximizeRenewable
	}
	if c.RenewableBonus == 0 {
		c.RenewableBonus = 0.02
	}
	if c.P2PBonus == 0 {
		c.P2PBonus = 0.01
	}
	if c.PenaltyForMarket == 0 {
		c.PenaltyForMarket = 0.02
	}
}

// Validate checks the configured objective is known.
func (c Config) Validate() error {
	switch c.Objective {
	case ObjectiveMaximizeRenewable, ObjectiveMaximizeProfit, ObjectiveMaximizeP2P:
		return nil
	default:
		return fmt.Errorf("unknown regulator objective %q", c.Objective)
	}
}

// BanRecord is one entry of the ban ledger.
type BanRecord struct {
	ProsumerID int    `json:"prosumer_id"`
	Timestep   int    `json:"timestep"`
	Reason     string `json:"reason"`
}

// CommunityMetrics is the reporting surface consumed by collaborators.
// P2PToMarketRatio is +Inf when no market trade occurred.
type CommunityMetrics struct {
	TotalRenewableUsage     float64 `json:"total_renewable_usage"`
	TotalP2PTrades          int     `json:"total_p2p_trades"`
	TotalMarketTrades       int     `json:"total_market_trades"`
	P2PToMarketRatio        float64 `json:"p2p_to_market_ratio"`
	CommunityProfit         float64 `json:"community_profit"`
	AverageProsumerBalance  float64 `json:"average_prosumer_balance"`
	BalanceStdDev           float64 `json:"balance_std_dev"`
	BannedProsumers         int     `json:"banned_prosumers"`
	TotalIncentivesPaid     float64 `json:"total_incentives_paid"`
	TotalPenaltiesCollected float64 `json:"total_penalties_collected"`
	Objective               string  `json:"objective"`
}

// Regulator enforces community rules: it lifts expired bans, pays renewable
// incentives, collects market-usage penalties and bans rule violators with a
// per-reason cooldown.
type Regulator struct {
	cfg        Config
	incentives float64
	penalties  float64
	banHistory []BanRecord
	log        logger.Logger
}

// New creates a regulator.
func New(cfg Config, log logger.Logger) *Regulator {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Regulator{cfg: cfg, log: log}
}

// UpdateBanStatus decrements every active ban and lifts the ones that
// expired. Called at the start of the regulator phase each step.
func (r *Regulator) UpdateBanStatus(prosumers []*model.Prosumer) {
	for _, p := range prosumers {
		if p.TickBan() {
			r.log.Infof("ban lifted for prosumer %d", p.ID)
		}
	}
}

// Incentivize pays the renewable bonus and charges the market penalty for
// every non-banned prosumer. Both formulas apply to the cumulative counters,
// which compounds rewards and penalties over the run; this mirrors the
// observed reference behaviour.
func (r *Regulator) Incentivize(prosumers []*model.Prosumer) {
	for _, p := range prosumers {
		if p.Banned() {
			continue
		}
		if p.RenewableUsage > 0 {
			bonus := p.RenewableUsage * r.cfg.RenewableBonus
			p.Balance += bonus
			p.Bonus += bonus
			r.incentives += bonus
		}
		if p.MarketTrades > 0 {
			penalty := p.MarketQuantity * r.cfg.PenaltyForMarket
			p.Balance -= penalty
			p.Penalties += penalty
			r.penalties += penalty
		}
	}
}

// EnforceRules bans non-banned prosumers that trip a rule, unless a ban for
// the same reason was logged for them within the cooldown window.
func (r *Regulator) EnforceRules(prosumers []*model.Prosumer, step int) []BanRecord {
	var applied []BanRecord
	for _, p := range prosumers {
		if p.Banned() {
			continue
		}
		if p.Penalties > marketPenaltyThreshold && p.Bonus < marketBonusThreshold {
			if rec, ok := r.ban(p, step, marketBanSteps, ReasonExcessiveMarketUsage); ok {
				applied = append(applied, rec)
				continue
			}
		}
		if p.Balance < negativeBalanceFloor {
			if rec, ok := r.ban(p, step, balanceBanSteps, ReasonNegativeBalance); ok {
				applied = append(applied, rec)
			}
		}
	}
	return applied
}

func (r *Regulator) ban(p *model.Prosumer, step, duration int, reason string) (BanRecord, bool) {
	if r.recentlyBanned(p.ID, step, reason) {
		return BanRecord{}, false
	}
	p.ApplyBan(duration, reason)
	rec := BanRecord{ProsumerID: p.ID, Timestep: step, Reason: reason}
	r.banHistory = append(r.banHistory, rec)
	r.log.Warnf("prosumer %d banned for %d steps: %s", p.ID, duration, reason)
	return rec, true
}

func (r *Regulator) recentlyBanned(id, step int, reason string) bool {
	for _, b := range r.banHistory {
		if b.ProsumerID == id && b.Reason == reason && b.Timestep >= step-banCooldownSteps {
			return true
		}
	}
	return false
}

// BanHistory returns a snapshot of the ban ledger.
func (r *Regulator) BanHistory() []BanRecord {
	out := make([]BanRecord, len(r.banHistory))
	copy(out, r.banHistory)
	return out
}

// Metrics computes community-level metrics over all prosumers.
func (r *Regulator) Metrics(prosumers []*model.Prosumer) CommunityMetrics {
	m := CommunityMetrics{
		Objective:               r.cfg.Objective,
		TotalIncentivesPaid:     model.Round4(r.incentives),
		TotalPenaltiesCollected: model.Round4(r.penalties),
	}
	balances := make([]float64, 0, len(prosumers))
	for _, p := range prosumers {
		m.TotalRenewableUsage += p.RenewableUsage
		m.TotalP2PTrades += p.P2PTrades
		m.TotalMarketTrades += p.MarketTrades
		m.CommunityProfit += p.Balance
		if p.Banned() {
			m.BannedProsumers++
		}
		balances = append(balances, p.Balance)
	}
	if m.TotalMarketTrades > 0 {
		m.P2PToMarketRatio = float64(m.TotalP2PTrades) / float64(m.TotalMarketTrades)
	} else {
		m.P2PToMarketRatio = math.Inf(1)
	}
	if len(balances) > 0 {
		m.AverageProsumerBalance = stat.Mean(balances, nil)
		m.BalanceStdDev = stat.StdDev(balances, nil)
	}
	m.TotalRenewableUsage = model.Round4(m.TotalRenewableUsage)
	m.CommunityProfit = model.Round4(m.CommunityProfit)
	m.AverageProsumerBalance = model.Round4(m.AverageProsumerBalance)
	if !math.IsNaN(m.BalanceStdDev) {
		m.BalanceStdDev = model.Round4(m.BalanceStdDev)
	} else {
		m.BalanceStdDev = 0
	}
	return m
}
