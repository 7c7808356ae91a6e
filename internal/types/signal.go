package types

// Action is the combined per-bar trade decision before risk adjustment.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Verdict is the decision filter's bias for the current bar.
type Verdict string

const (
	VerdictBuyBias  Verdict = "BUY_BIAS"
	VerdictSellBias Verdict = "SELL_BIAS"
	VerdictNeutral  Verdict = "NEUTRAL"
)

// Classification is a verdict with the probability mass that produced it.
// Confidence is in [0, 1] and is 0 for NEUTRAL.
type Classification struct {
	Verdict    Verdict
	Confidence float64
}

// Neutral is the classification used whenever the filter has nothing to say.
func Neutral() Classification {
	return Classification{Verdict: VerdictNeutral, Confidence: 0}
}
