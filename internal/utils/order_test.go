package utils

import (
	"testing"

	"github.com/rxtech-lab/argo-strategy-engine/internal/execution/commission_fee"
	"github.com/stretchr/testify/suite"
)

type UtilsTestSuite struct {
	suite.Suite
}

func TestUtilsTestSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

func (suite *UtilsTestSuite) TestCalculateMaxQuantity() {
	percentage, err := commission_fee.NewPercentageCommissionFee(0.01)
	suite.Require().NoError(err)

	tests := []struct {
		name          string
		balance       float64
		price         float64
		commissionFee commission_fee.CommissionFee
		expectedQty   float64
	}{
		{name: "no commission", balance: 1000, price: 100, commissionFee: commission_fee.NewZeroCommissionFee(), expectedQty: 10},
		{name: "zero balance", balance: 0, price: 100, commissionFee: commission_fee.NewZeroCommissionFee(), expectedQty: 0},
		{name: "zero price", balance: 1000, price: 0, commissionFee: commission_fee.NewZeroCommissionFee(), expectedQty: 0},
		{name: "percentage fee", balance: 1010, price: 100, commissionFee: percentage, expectedQty: 10},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			qty := CalculateMaxQuantity(tc.balance, tc.price, tc.commissionFee)
			suite.InDelta(tc.expectedQty, qty, 1e-9)
			suite.LessOrEqual(qty*tc.price+tc.commissionFee.Calculate(qty, tc.price), tc.balance+1e-9)
		})
	}
}

func (suite *UtilsTestSuite) TestCalculateMaxQuantityWithMinimumFee() {
	fee := commission_fee.NewInteractiveBrokerCommissionFee()

	qty := CalculateMaxQuantity(1000, 100, fee)
	suite.Less(qty, 10.0)
	suite.LessOrEqual(qty*100+fee.Calculate(qty, 100), 1000.0)
}

func (suite *UtilsTestSuite) TestRoundToDecimalPrecision() {
	suite.Equal(1.23, RoundToDecimalPrecision(1.239, 2))
	suite.Equal(0.0, RoundToDecimalPrecision(0.0009, 3))
	suite.Equal(12.0, RoundToDecimalPrecision(12.99, 0))
}

func (suite *UtilsTestSuite) TestAffordableQuantity() {
	fee := commission_fee.NewInteractiveBrokerCommissionFee()

	// 10 units would cost 1001, 9.99 units cost 1000.
	suite.InDelta(9.99, AffordableQuantity(1000.5, 100, fee, 2), 1e-9)
	suite.Equal(0.0, AffordableQuantity(50, 100, fee, 0))
	suite.Equal(0.0, AffordableQuantity(0, 100, fee, 6))
}
