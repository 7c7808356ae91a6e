package pipeline

import (
	"math"

	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/shopspring/decimal"
)

func (p *Pipeline) stats(report types.BacktestReport) types.TradeStats {
	stats := types.TradeStats{
		ID:            p.runID,
		Symbol:        p.config.Symbol,
		Strategy:      p.strategy.Name(),
		BarsProcessed: p.bars,
		TradeResult:   CalculateTradeResult(report.Trades),
		Performance: CalculatePerformance(
			p.config.InitialCash,
			report.EquityCurve,
			p.config.PeriodsPerYear(),
		),
		TotalFees:        CalculateTotalFees(report.Orders),
		TradeHoldingTime: CalculateHoldingTime(report.Trades),
		Vetoes:           make(map[types.VetoReason]int),
		Orders:           make(map[types.OrderStatus]int),
		ExitReasons:      make(map[types.ExitReason]int),
	}

	if p.last.IsSome() {
		stats.Timestamp = p.last.Unwrap().Time
		stats.BuyAndHoldReturn = BuyAndHoldReturn(p.first.Unwrap(), p.last.Unwrap())
	}

	for _, veto := range report.Vetoes {
		stats.Vetoes[veto.Reason]++
	}

	for _, order := range report.Orders {
		stats.Orders[order.Status]++
	}

	for _, trade := range report.Trades {
		stats.ExitReasons[trade.ExitReason]++
	}

	return stats
}

// CalculateTradeResult counts wins and losses. Breakeven trades count toward
// the total only.
func CalculateTradeResult(trades []types.TradeRecord) types.TradeResult {
	result := types.TradeResult{NumberOfTrades: len(trades)}
	if len(trades) == 0 {
		return result
	}

	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	total := decimal.Zero

	for _, trade := range trades {
		pnl := decimal.NewFromFloat(trade.PnL)
		total = total.Add(pnl)

		switch trade.Status {
		case types.TradeStatusWin:
			result.NumberOfWinningTrades++
			grossProfit = grossProfit.Add(pnl)
		case types.TradeStatusLoss:
			result.NumberOfLosingTrades++
			grossLoss = grossLoss.Add(pnl.Abs())
		}
	}

	result.WinRate = float64(result.NumberOfWinningTrades) / float64(len(trades))
	result.AveragePnL = total.Div(decimal.NewFromInt(int64(len(trades)))).InexactFloat64()

	if !grossLoss.IsZero() {
		result.ProfitFactor = grossProfit.Div(grossLoss).InexactFloat64()
	}

	return result
}

// CalculatePerformance derives return, Sharpe and drawdown from the equity
// curve. An empty curve reports the initial equity unchanged.
func CalculatePerformance(initialEquity float64, equity []types.EquitySample, periodsPerYear float64) types.PerformanceStats {
	final := initialEquity
	if len(equity) > 0 {
		final = equity[len(equity)-1].Equity
	}

	totalReturn := 0.0
	if initialEquity > 0 {
		totalReturn = decimal.NewFromFloat(final).
			Sub(decimal.NewFromFloat(initialEquity)).
			Div(decimal.NewFromFloat(initialEquity)).
			InexactFloat64()
	}

	return types.PerformanceStats{
		InitialEquity:  initialEquity,
		FinalEquity:    final,
		TotalReturn:    totalReturn,
		SharpeRatio:    SharpeRatio(equity, periodsPerYear),
		MaxDrawdown:    MaxDrawdown(equity),
		PeriodsPerYear: periodsPerYear,
	}
}

// SharpeRatio is mean over sample standard deviation of bar-to-bar equity
// returns, scaled by the square root of periodsPerYear. It is 0 with fewer
// than two returns or when the returns have no variance.
func SharpeRatio(equity []types.EquitySample, periodsPerYear float64) float64 {
	returns := make([]float64, 0, len(equity))

	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}

		returns = append(returns, equity[i].Equity/prev-1)
	}

	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}

	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}

	std := math.Sqrt(variance / float64(len(returns)-1))
	if std < 1e-12 {
		return 0
	}

	scale := 1.0
	if periodsPerYear > 0 {
		scale = math.Sqrt(periodsPerYear)
	}

	return mean / std * scale
}

// MaxDrawdown is the largest decline from a running peak, as a fraction of
// that peak.
func MaxDrawdown(equity []types.EquitySample) float64 {
	peak := 0.0
	maxDrawdown := 0.0

	for _, sample := range equity {
		if sample.Equity > peak {
			peak = sample.Equity
		}

		if peak <= 0 {
			continue
		}

		if drawdown := (peak - sample.Equity) / peak; drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	return maxDrawdown
}

// CalculateTotalFees sums the fees of filled orders.
func CalculateTotalFees(orders []types.Order) float64 {
	total := decimal.Zero

	for _, order := range orders {
		if order.Status == types.OrderStatusFilled {
			total = total.Add(decimal.NewFromFloat(order.Fee))
		}
	}

	return total.InexactFloat64()
}

// CalculateHoldingTime reports min, max and average trade durations in seconds.
func CalculateHoldingTime(trades []types.TradeRecord) types.TradeHoldingTime {
	if len(trades) == 0 {
		return types.TradeHoldingTime{}
	}

	minSeconds := math.MaxInt
	maxSeconds := 0
	total := 0

	for _, trade := range trades {
		seconds := int(trade.Duration.Seconds())
		minSeconds = min(minSeconds, seconds)
		maxSeconds = max(maxSeconds, seconds)
		total += seconds
	}

	return types.TradeHoldingTime{
		Min: minSeconds,
		Max: maxSeconds,
		Avg: total / len(trades),
	}
}

// BuyAndHoldReturn is the return of buying at the first open and selling at
// the last close.
func BuyAndHoldReturn(first, last types.Bar) float64 {
	if first.Open <= 0 {
		return 0
	}

	return (last.Close - first.Open) / first.Open
}
