package report

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var summaryHeaders = []string{"Run", "Symbol", "Bars", "Trades", "Win rate", "Profit factor", "Return", "Sharpe", "Max DD", "Fees"}

// SummaryRow formats the headline numbers of one run.
func SummaryRow(stats types.TradeStats) []string {
	return []string{
		stats.ID,
		stats.Symbol,
		fmt.Sprintf("%d", stats.BarsProcessed),
		fmt.Sprintf("%d", stats.TradeResult.NumberOfTrades),
		fmt.Sprintf("%.1f%%", stats.TradeResult.WinRate*100),
		fmt.Sprintf("%.2f", stats.TradeResult.ProfitFactor),
		fmt.Sprintf("%.2f%%", stats.Performance.TotalReturn*100),
		fmt.Sprintf("%.2f", stats.Performance.SharpeRatio),
		fmt.Sprintf("%.2f%%", stats.Performance.MaxDrawdown*100),
		fmt.Sprintf("%.4f", stats.TotalFees),
	}
}

// RenderSummary draws one table row per run under title.
func RenderSummary(title string, stats []types.TradeStats) string {
	rows := make([][]string, len(stats))
	for i, s := range stats {
		rows[i] = SummaryRow(s)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(summaryHeaders...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		})

	return titleStyle.Render(title) + "\n" + t.Render()
}
