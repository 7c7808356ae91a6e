package commission_fee

import "github.com/rxtech-lab/argo-strategy-engine/pkg/errors"

type CommissionFee interface {
	// Calculate returns the fee in quote currency for a fill of quantity at price.
	Calculate(quantity float64, price float64) float64
}

type Broker string

const (
	BrokerPercentage        Broker = "percentage"
	BrokerInteractiveBroker Broker = "interactive_broker"
	BrokerZero              Broker = "zero_commission"
)

var AllBrokers = []any{
	BrokerPercentage,
	BrokerInteractiveBroker,
	BrokerZero,
}

// GetCommissionFeeHandler returns the fee model for broker. rate is only used
// by the percentage model.
func GetCommissionFeeHandler(broker Broker, rate float64) (CommissionFee, error) {
	switch broker {
	case BrokerPercentage:
		return NewPercentageCommissionFee(rate)
	case BrokerInteractiveBroker:
		return NewInteractiveBrokerCommissionFee(), nil
	case BrokerZero:
		return NewZeroCommissionFee(), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown fee model %q", broker)
	}
}
