package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// BollingerValue is one Bollinger Bands observation.
type BollingerValue struct {
	Upper  float64
	Middle float64
	Lower  float64
	StdDev float64
}

// BollingerBands is a rolling mean with a band of stdDev sample standard deviations.
type BollingerBands struct {
	period int
	stdDev float64
	buffer *ringBuffer
}

// NewBollingerBands creates Bollinger Bands over period values. The sample
// standard deviation needs at least two values, so period must be >= 2.
func NewBollingerBands(period int, stdDev float64) (*BollingerBands, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	if period < 2 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be at least 2 for a sample standard deviation, got %d", period)
	}

	if stdDev <= 0 || math.IsNaN(stdDev) || math.IsInf(stdDev, 0) {
		return nil, errors.Newf(errors.ErrCodeInvalidMultiplier, "stdDev must be a positive number, got %v", stdDev)
	}

	return &BollingerBands{
		period: period,
		stdDev: stdDev,
		buffer: newRingBuffer(period),
	}, nil
}

// Name returns the name of the indicator.
func (b *BollingerBands) Name() IndicatorType {
	return IndicatorTypeBollingerBands
}

func (b *BollingerBands) Push(value float64) {
	b.buffer.Push(value)
}

func (b *BollingerBands) Ready() bool {
	return b.buffer.Full()
}

func (b *BollingerBands) Warmup() int {
	return b.period
}

func (b *BollingerBands) Reset() {
	b.buffer.Reset()
}

// Value recomputes the bands from the buffered values, oldest first.
// It is only meaningful once Ready is true.
func (b *BollingerBands) Value() BollingerValue {
	values := b.buffer.Values()
	n := float64(len(values))

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	mean := sum / n

	squares := 0.0

	for _, v := range values {
		d := v - mean
		squares += d * d
	}

	std := math.Sqrt(squares / (n - 1))

	return BollingerValue{
		Upper:  mean + b.stdDev*std,
		Middle: mean,
		Lower:  mean - b.stdDev*std,
		StdDev: std,
	}
}
