package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
)

// DataGenerator generates synthetic bars for tests and benchmarks.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how bars are generated.
type GeneratorConfig struct {
	// Symbol is the trading pair (e.g., "ETHUSDT")
	Symbol string
	// StartTime is the open time of the first bar
	StartTime time.Time
	// Interval is the duration between each bar
	Interval time.Duration
	// Count is the number of bars to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// Volatility controls price movement per bar (0.01 = 1%)
	Volatility float64
	// Trend is the total drift over the series (-0.1 to 0.1 for bearish to bullish)
	Trend float64
	// VolumeBase is the average volume per bar
	VolumeBase float64
	// VolumeVariance is the variance in volume (0.0 to 1.0)
	VolumeVariance float64
}

// DefaultConfig returns a 5-minute ETHUSDT series starting at midnight UTC.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:         "ETHUSDT",
		StartTime:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Interval:       5 * time.Minute,
		Count:          1000,
		InitialPrice:   2000.0,
		Volatility:     0.002,
		Trend:          0.0,
		VolumeBase:     150,
		VolumeVariance: 0.3,
	}
}

// Generate creates bars following a geometric Brownian motion.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Bar {
	data := make([]types.Bar, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for i := 0; i < config.Count; i++ {
		open := currentPrice

		// Box-Muller
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		priceChange := config.Volatility * z
		drift := config.Trend / float64(config.Count)

		close := open * (1 + priceChange + drift)
		if close <= 0 {
			close = open * 0.99
		}

		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := math.Max(open, close) + highExtension
		low := math.Min(open, close) - lowExtension
		if low <= 0 {
			low = math.Min(open, close) * 0.99
		}

		volumeVariation := 1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance
		volume := config.VolumeBase * volumeVariation
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		data[i] = types.Bar{
			Symbol: config.Symbol,
			Time:   currentTime,
			Open:   roundToDecimals(open, 4),
			High:   roundToDecimals(high, 4),
			Low:    roundToDecimals(low, 4),
			Close:  roundToDecimals(close, 4),
			Volume: roundToDecimals(volume, 2),
		}

		currentPrice = close
		currentTime = currentTime.Add(config.Interval)
	}

	return data
}

// GenerateFlat returns count bars with every price equal to price.
func GenerateFlat(symbol string, start time.Time, interval time.Duration, count int, price float64) []types.Bar {
	data := make([]types.Bar, count)
	for i := range data {
		data[i] = types.Bar{
			Symbol: symbol,
			Time:   start.Add(time.Duration(i) * interval),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: 1,
		}
	}

	return data
}

// GenerateFromOpens returns bars whose open and close both equal the given
// price, so fills at the next open are easy to predict.
func GenerateFromOpens(symbol string, start time.Time, interval time.Duration, prices []float64) []types.Bar {
	data := make([]types.Bar, len(prices))
	for i, p := range prices {
		data[i] = types.Bar{
			Symbol: symbol,
			Time:   start.Add(time.Duration(i) * interval),
			Open:   p,
			High:   p,
			Low:    p,
			Close:  p,
			Volume: 1,
		}
	}

	return data
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
