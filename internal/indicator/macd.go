package indicator

import (
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// MACDValue is one MACD observation.
type MACDValue struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MACD computes the fast/slow EMA difference and its signal line.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	fast         *EMA
	slow         *EMA
	signal       *EMA
	line         float64
}

// NewMACD creates a MACD indicator. The signal line is an EMA of the MACD line
// and starts once the slow EMA is seeded.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) (*MACD, error) {
	if fastPeriod <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "fastPeriod must be a positive integer, got %d", fastPeriod)
	}

	if slowPeriod <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "slowPeriod must be a positive integer, got %d", slowPeriod)
	}

	if signalPeriod <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "signalPeriod must be a positive integer, got %d", signalPeriod)
	}

	if fastPeriod >= slowPeriod {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "fastPeriod (%d) must be less than slowPeriod (%d)", fastPeriod, slowPeriod)
	}

	fast, _ := NewEMA(fastPeriod)
	slow, _ := NewEMA(slowPeriod)
	signal, _ := NewEMA(signalPeriod)

	return &MACD{
		fastPeriod:   fastPeriod,
		slowPeriod:   slowPeriod,
		signalPeriod: signalPeriod,
		fast:         fast,
		slow:         slow,
		signal:       signal,
		line:         0,
	}, nil
}

// Name returns the name of the indicator.
func (m *MACD) Name() IndicatorType {
	return IndicatorTypeMACD
}

func (m *MACD) Push(value float64) {
	m.fast.Push(value)
	m.slow.Push(value)

	if !m.slow.Ready() {
		return
	}

	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Push(m.line)
}

func (m *MACD) Ready() bool {
	return m.signal.Ready()
}

func (m *MACD) Warmup() int {
	return m.slowPeriod + m.signalPeriod - 1
}

func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
	m.line = 0
}

// Value returns the latest observation. It is only meaningful once Ready is true.
func (m *MACD) Value() MACDValue {
	signal := m.signal.Value()

	return MACDValue{
		Line:      m.line,
		Signal:    signal,
		Histogram: m.line - signal,
	}
}
