package indicator

type IndicatorType string

const (
	IndicatorTypeEMA            IndicatorType = "ema"
	IndicatorTypeMACD           IndicatorType = "macd"
	IndicatorTypeBollingerBands IndicatorType = "bollinger_bands"
)

// Indicator is an incremental technical indicator fed one value per bar.
// Implementations are deterministic: the same inputs in the same order produce
// bit-identical outputs.
type Indicator interface {
	// Name returns the name of the indicator
	Name() IndicatorType
	// Push folds the next value into the indicator state.
	Push(value float64)
	// Ready reports whether enough values have been pushed for an output.
	Ready() bool
	// Warmup is the number of values needed before Ready turns true.
	Warmup() int
	// Reset discards all state.
	Reset()
}
