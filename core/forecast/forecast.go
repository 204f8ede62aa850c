package forecast

import (
	"math"
	"math/rand"

	"github.com/kilianp07/microgrid/core/model"
)

// Generators bundles the stochastic collaborators the engine consumes once
// per prosumer per step. Implementations are pure functions of their inputs
// plus the shared random source.
type Generators struct {
	PV          func(hour int, pvCapacityKW float64) float64
	Consumption func(hour int, base float64) float64
	Price       func(hour int, basePrice float64) float64
}

// hourlyConsumptionFactor follows a typical residential load curve with
// morning and evening peaks.
var hourlyConsumptionFactor = [24]float64{
	0.5, 0.4, 0.4, 0.4, 0.5, 0.7,
	1.2, 1.5, 1.3, 1.0, 0.9, 1.0,
	1.1, 0.9, 0.8, 0.8, 0.9, 1.0,
	1.4, 1.6, 1.5, 1.3, 1.0, 0.7,
}

// hourlyPriceFactor follows demand: low at night, peaks in the morning and
// evening.
var hourlyPriceFactor = [24]float64{
	0.7, 0.6, 0.6, 0.6, 0.7, 0.9,
	1.3, 1.5, 1.4, 1.2, 1.1, 1.2,
	1.3, 1.1, 1.0, 1.0, 1.1, 1.2,
	1.5, 1.6, 1.5, 1.3, 1.1, 0.9,
}

// Default returns the reference generators: a sinusoidal PV profile with
// weather noise, the hourly consumption pattern with behavioural variation
// and the hourly price pattern with forecast uncertainty. All noise is drawn
// from rng so runs are reproducible under a fixed seed.
func Default(rng *rand.Rand) Generators {
	return Generators{
		PV: func(hour int, pvCapacityKW float64) float64 {
			return PV(rng, hour, pvCapacityKW)
		},
		Consumption: func(hour int, base float64) float64 {
			return Consumption(rng, hour, base)
		},
		Price: func(hour int, basePrice float64) float64 {
			return Price(rng, hour, basePrice)
		},
	}
}

// PV generates hourly PV output in kWh. Generation follows a sine arc over
// the daylight window (05h to 19h, peak at noon) scaled by a weather factor.
func PV(rng *rand.Rand, hour int, pvCapacityKW float64) float64 {
	if hour < 5 || hour > 19 {
		return 0
	}
	daylight := float64(hour - 5)
	factor := math.Sin(math.Pi * daylight / 14)
	weather := 0.7 + rng.Float64()*0.3
	gen := pvCapacityKW * factor * weather
	return math.Max(0, gen)
}

// Consumption generates hourly consumption in kWh from the base level, the
// hourly pattern and individual variation, floored at 0.1 kWh.
func Consumption(rng *rand.Rand, hour int, base float64) float64 {
	factor := 1.0
	if hour >= 0 && hour < 24 {
		factor = hourlyConsumptionFactor[hour]
	}
	variation := 0.8 + rng.Float64()*0.4
	return math.Max(0.1, base*factor*variation)
}

// Price forecasts the hourly energy price in EUR/kWh, rounded to four
// decimal places.
func Price(rng *rand.Rand, hour int, basePrice float64) float64 {
	factor := 1.0
	if hour >= 0 && hour < 24 {
		factor = hourlyPriceFactor[hour]
	}
	uncertainty := 0.95 + rng.Float64()*0.1
	return model.Round4(basePrice * factor * uncertainty)
}
