package utils

import (
	"math"

	"github.com/rxtech-lab/argo-strategy-engine/internal/execution/commission_fee"
)

// CalculateMaxQuantity calculates the maximum quantity that can be bought with the given balance, fee included.
func CalculateMaxQuantity(balance float64, price float64, commissionFee commission_fee.CommissionFee) float64 {
	if price <= 0 || balance <= 0 {
		return 0
	}

	maxQty := balance / price

	// Usually converges in two or three steps.
	for i := 0; i < 10; i++ {
		totalCost := maxQty*price + commissionFee.Calculate(maxQty, price)
		if totalCost <= balance {
			break
		}

		maxQty *= balance / totalCost
	}

	return maxQty
}

// RoundToDecimalPrecision floors the quantity to the specified decimal precision.
func RoundToDecimalPrecision(quantity float64, decimalPrecision int) float64 {
	multiplier := math.Pow10(decimalPrecision)

	return math.Floor(quantity*multiplier) / multiplier
}

// AffordableQuantity is the largest quantity at the given precision whose notional
// plus fee fits in balance.
func AffordableQuantity(balance float64, price float64, commissionFee commission_fee.CommissionFee, decimalPrecision int) float64 {
	qty := RoundToDecimalPrecision(CalculateMaxQuantity(balance, price, commissionFee), decimalPrecision)
	step := math.Pow10(-decimalPrecision)

	for qty > 0 && qty*price+commissionFee.Calculate(qty, price) > balance {
		qty = RoundToDecimalPrecision(qty-step, decimalPrecision)
	}

	return math.Max(qty, 0)
}
