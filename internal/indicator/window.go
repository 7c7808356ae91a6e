package indicator

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// Config holds the indicator parameters of a Window.
type Config struct {
	MACDFast   int     `yaml:"macd_fast" json:"macd_fast" jsonschema:"title=MACD Fast Period,description=Period of the fast EMA,minimum=1,default=12" validate:"gt=0"`
	MACDSlow   int     `yaml:"macd_slow" json:"macd_slow" jsonschema:"title=MACD Slow Period,description=Period of the slow EMA,minimum=2,default=26" validate:"gt=0,gtfield=MACDFast"`
	MACDSignal int     `yaml:"macd_signal" json:"macd_signal" jsonschema:"title=MACD Signal Period,description=Period of the signal line EMA,minimum=1,default=9" validate:"gt=0"`
	BBWindow   int     `yaml:"bb_window" json:"bb_window" jsonschema:"title=Bollinger Window,description=Number of closes in the rolling window,minimum=2,default=20" validate:"gte=2"`
	BBStdDev   float64 `yaml:"bb_stddev" json:"bb_stddev" jsonschema:"title=Bollinger Multiplier,description=Band width in standard deviations,exclusiveMinimum=0,default=2" validate:"gt=0"`
}

// DefaultConfig returns the classic 12/26/9 MACD and 20/2 Bollinger parameters.
func DefaultConfig() Config {
	return Config{
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		BBWindow:   20,
		BBStdDev:   2.0,
	}
}

// Window folds bars into MACD and Bollinger Bands and emits a snapshot per bar
// once both are warmed up. Memory is bounded by the Bollinger window and the
// constant-size EMA state.
type Window struct {
	config    Config
	macd      *MACD
	bollinger *BollingerBands
	bars      int
}

// NewWindow validates config and builds a Window. Any invalid period is a configuration error.
func NewWindow(config Config) (*Window, error) {
	macd, err := NewMACD(config.MACDFast, config.MACDSlow, config.MACDSignal)
	if err != nil {
		return nil, err
	}

	bollinger, err := NewBollingerBands(config.BBWindow, config.BBStdDev)
	if err != nil {
		return nil, err
	}

	return &Window{
		config:    config,
		macd:      macd,
		bollinger: bollinger,
		bars:      0,
	}, nil
}

// Update folds bar into the window. It returns None while warming up.
func (w *Window) Update(bar types.Bar) optional.Option[types.IndicatorSnapshot] {
	w.bars++
	w.macd.Push(bar.Close)
	w.bollinger.Push(bar.Close)

	if !w.Ready() {
		return optional.None[types.IndicatorSnapshot]()
	}

	m := w.macd.Value()
	b := w.bollinger.Value()

	return optional.Some(types.IndicatorSnapshot{
		Time:       bar.Time,
		Close:      bar.Close,
		MACDLine:   m.Line,
		SignalLine: m.Signal,
		Histogram:  m.Histogram,
		BBUpper:    b.Upper,
		BBMiddle:   b.Middle,
		BBLower:    b.Lower,
		BBStdDev:   b.StdDev,
	})
}

// Ready reports whether the next Update will produce a snapshot.
func (w *Window) Ready() bool {
	return w.macd.Ready() && w.bollinger.Ready()
}

// Warmup is the number of bars before the first snapshot.
func (w *Window) Warmup() int {
	return max(w.macd.Warmup(), w.bollinger.Warmup())
}

// BarsSeen is the number of bars folded in since construction or the last Reset.
func (w *Window) BarsSeen() int {
	return w.bars
}

func (w *Window) Reset() {
	w.macd.Reset()
	w.bollinger.Reset()
	w.bars = 0
}

// Validate checks config without building a window.
func (c Config) Validate() error {
	if _, err := NewWindow(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid indicator configuration", err)
	}

	return nil
}
