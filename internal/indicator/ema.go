package indicator

import (
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// EMA is an exponential moving average seeded with the simple average of its
// first period values.
type EMA struct {
	period  int
	alpha   float64
	count   int
	seedSum float64
	value   float64
}

// NewEMA creates an EMA with smoothing factor 2/(period+1).
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "ema period must be a positive integer, got %d", period)
	}

	return &EMA{
		period:  period,
		alpha:   2.0 / float64(period+1),
		count:   0,
		seedSum: 0,
		value:   0,
	}, nil
}

// Name returns the name of the indicator.
func (e *EMA) Name() IndicatorType {
	return IndicatorTypeEMA
}

func (e *EMA) Push(value float64) {
	e.count++

	if e.count < e.period {
		e.seedSum += value

		return
	}

	if e.count == e.period {
		e.seedSum += value
		e.value = e.seedSum / float64(e.period)

		return
	}

	// Written as a correction so a constant input leaves the average untouched.
	e.value += e.alpha * (value - e.value)
}

func (e *EMA) Ready() bool {
	return e.count >= e.period
}

func (e *EMA) Warmup() int {
	return e.period
}

func (e *EMA) Reset() {
	e.count = 0
	e.seedSum = 0
	e.value = 0
}

// Value is the current average. It is only meaningful once Ready is true.
func (e *EMA) Value() float64 {
	return e.value
}
