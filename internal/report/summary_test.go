package report

import (
	"strings"
	"testing"

	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

type SummaryTestSuite struct {
	suite.Suite
}

func TestSummarySuite(t *testing.T) {
	suite.Run(t, new(SummaryTestSuite))
}

func (suite *SummaryTestSuite) stats() types.TradeStats {
	return types.TradeStats{
		ID:            "run-1",
		Symbol:        "ETHUSDT",
		BarsProcessed: 288,
		TradeResult:   types.TradeResult{NumberOfTrades: 4, WinRate: 0.75, ProfitFactor: 2.5},
		Performance:   types.PerformanceStats{TotalReturn: 0.0123, SharpeRatio: 1.234, MaxDrawdown: 0.02},
		TotalFees:     1.5,
	}
}

func (suite *SummaryTestSuite) TestSummaryRow() {
	suite.Equal(
		[]string{"run-1", "ETHUSDT", "288", "4", "75.0%", "2.50", "1.23%", "1.23", "2.00%", "1.5000"},
		SummaryRow(suite.stats()),
	)
}

func (suite *SummaryTestSuite) TestRenderSummary() {
	second := suite.stats()
	second.ID = "run-2"

	out := RenderSummary("Backtest", []types.TradeStats{suite.stats(), second})

	suite.True(strings.HasPrefix(out, "Backtest"))
	suite.Contains(out, "Profit factor")
	suite.Contains(out, "run-1")
	suite.Contains(out, "run-2")
	suite.Contains(out, "75.0%")
}
