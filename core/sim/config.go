package sim

import "fmt"

// Config defines simulation parameters loaded from configuration.
type Config struct {
	NumProsumers       int       `json:"num_prosumers"`
	TimeSteps          int       `json:"time_steps"`
	Seed               int64     `json:"seed"` // 0 derives a seed from the clock
	BasePrice          float64   `json:"base_price"`
	MinPVCapacityKW    float64   `json:"min_pv_capacity_kw"`
	MaxPVCapacityKW    float64   `json:"max_pv_capacity_kw"`
	MinBaseConsumption float64   `json:"min_base_consumption"`
	MaxBaseConsumption float64   `json:"max_base_consumption"`
	BatteryCapacities  []float64 `json:"battery_capacities"`
	BatteryWeights     []float64 `json:"battery_weights"`
}

// SetDefaults fills unset fields with the reference community values.
func (c *Config) SetDefaults() {
	if c.NumProsumers == 0 {
		c.NumProsumers = 10
	}
	if c.TimeSteps == 0 {
		c.TimeSteps = 24
	}
	if c.BasePrice == 0 {
		c.BasePrice = 0.15
	}
	if c.MinPVCapacityKW == 0 {
		c.MinPVCapacityKW = 3
	}
	if c.MaxPVCapacityKW == 0 {
		c.MaxPVCapacityKW = 10
	}
	if c.MinBaseConsumption == 0 {
		c.MinBaseConsumption = 0.3
	}
	if c.MaxBaseConsumption == 0 {
		c.MaxBaseConsumption = 3.0
	}
	if len(c.BatteryCapacities) == 0 {
		c.BatteryCapacities = []float64{0, 5, 10, 15, 20}
		c.BatteryWeights = []float64{0.40, 0.15, 0.25, 0.15, 0.05}
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.NumProsumers <= 0 {
		return fmt.Errorf("num_prosumers must be positive")
	}
	if c.TimeSteps <= 0 {
		return fmt.Errorf("time_steps must be positive")
	}
	if c.MinPVCapacityKW > c.MaxPVCapacityKW {
		return fmt.Errorf("min_pv_capacity_kw exceeds max_pv_capacity_kw")
	}
	if c.MinBaseConsumption > c.MaxBaseConsumption {
		return fmt.Errorf("min_base_consumption exceeds max_base_consumption")
	}
	if len(c.BatteryCapacities) != len(c.BatteryWeights) {
		return fmt.Errorf("battery_capacities and battery_weights must have the same length")
	}
	var sum float64
	for _, w := range c.BatteryWeights {
		if w < 0 {
			return fmt.Errorf("battery_weights must be non-negative")
		}
		sum += w
	}
	if len(c.BatteryWeights) > 0 && sum <= 0 {
		return fmt.Errorf("battery_weights must sum to a positive value")
	}
	return nil
}
