package commission_fee

import "github.com/rxtech-lab/argo-strategy-engine/pkg/errors"

// PercentageCommissionFee charges a fixed fraction of the fill notional, the
// way spot crypto exchanges do.
type PercentageCommissionFee struct {
	rate float64
}

func NewPercentageCommissionFee(rate float64) (CommissionFee, error) {
	if rate < 0 || rate >= 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "fee rate must be in [0, 1), got %v", rate)
	}

	return &PercentageCommissionFee{rate: rate}, nil
}

func (c *PercentageCommissionFee) Calculate(quantity float64, price float64) float64 {
	if quantity <= 0 || price <= 0 {
		return 0
	}

	return c.rate * quantity * price
}

// PerShareCommissionFee charges a flat amount per unit with a minimum per
// fill, as equity brokers such as Interactive Brokers do.
type PerShareCommissionFee struct {
	perUnit float64
	minimum float64
}

func NewInteractiveBrokerCommissionFee() CommissionFee {
	return &PerShareCommissionFee{perUnit: 0.005, minimum: 1.0}
}

func (c *PerShareCommissionFee) Calculate(quantity float64, _ float64) float64 {
	return max(c.perUnit*quantity, c.minimum)
}

type ZeroCommissionFee struct{}

func NewZeroCommissionFee() CommissionFee {
	return ZeroCommissionFee{}
}

func (ZeroCommissionFee) Calculate(float64, float64) float64 {
	return 0
}
