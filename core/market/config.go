package market

import (
	"fmt"

	"github.com/kilianp07/microgrid/core/model"
)

// Config defines trading parameters loaded from configuration.
type Config struct {
	LocalMarketFee     float64 `json:"local_market_fee"`    // EUR/kWh aggregator fee
	MaxTradeCap        float64 `json:"max_trade_cap"`       // kWh per prosumer per step
	ImbalanceThreshold float64 `json:"imbalance_threshold"` // kWh demand/supply gap tolerated before rebalancing
}

// SetDefaults fills unset fields with the reference community values.
func (c *Config) SetDefaults() {
	if c.LocalMarketFee == 0 {
		c.LocalMarketFee = 0.02
	}
	if c.MaxTradeCap == 0 {
		c.MaxTradeCap = 3.0
	}
	if c.ImbalanceThreshold == 0 {
		c.ImbalanceThreshold = 1.0
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.LocalMarketFee < 0 {
		return fmt.Errorf("local_market_fee must be non-negative")
	}
	if c.MaxTradeCap <= 0 {
		return fmt.Errorf("max_trade_cap must be positive")
	}
	if c.ImbalanceThreshold < 0 {
		return fmt.Errorf("imbalance_threshold must be non-negative")
	}
	return nil
}

// Offer returns the subset of parameters offer pricing depends on.
func (c Config) Offer() model.OfferParams {
	return model.OfferParams{Fee: c.LocalMarketFee, MaxTradeCap: c.MaxTradeCap}
}
