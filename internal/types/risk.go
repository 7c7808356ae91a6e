package types

import "time"

type VetoReason string

const (
	VetoReasonDailyTradeLimit     VetoReason = "DAILY_TRADE_LIMIT"
	VetoReasonDailyLossLimit      VetoReason = "DAILY_LOSS_LIMIT"
	VetoReasonInsufficientCapital VetoReason = "INSUFFICIENT_CAPITAL"
	// VetoReasonPositionOpen blocks a second entry while a position is open.
	VetoReasonPositionOpen VetoReason = "POSITION_OPEN"
	// VetoReasonNoPosition blocks an exit when there is nothing to close.
	VetoReasonNoPosition VetoReason = "NO_POSITION"
)

// Proposal is an action the strategy wants to take, submitted to the risk manager.
type Proposal struct {
	Action Action
	// Price is the reference price used for sizing, normally the signal bar's close.
	Price float64
	// Confidence in [0, 1] scales the risk budget between the base and max risk percentages.
	Confidence float64
}

// RiskDecision is either an approval with a quantity or a veto with a reason.
type RiskDecision struct {
	Approved bool
	Quantity float64
	Reason   VetoReason
}

// Approve builds an approved decision.
func Approve(quantity float64) RiskDecision {
	return RiskDecision{Approved: true, Quantity: quantity, Reason: ""}
}

// Veto builds a vetoed decision.
func Veto(reason VetoReason) RiskDecision {
	return RiskDecision{Approved: false, Quantity: 0, Reason: reason}
}

// RiskVeto records an action the risk manager turned into a HOLD.
type RiskVeto struct {
	Time   time.Time  `yaml:"time" json:"time" csv:"time"`
	Action Action     `yaml:"action" json:"action" csv:"action"`
	Reason VetoReason `yaml:"reason" json:"reason" csv:"reason"`
}
