package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type TradeHoldingTime struct {
	// Minimum holding time of a trade in seconds
	Min int `yaml:"min" json:"min"`
	// Maximum holding time of a trade in seconds
	Max int `yaml:"max" json:"max"`
	// Average holding time of a trade in seconds
	Avg int `yaml:"avg" json:"avg"`
}

type TradeResult struct {
	NumberOfTrades        int `yaml:"number_of_trades" json:"number_of_trades"`
	NumberOfWinningTrades int `yaml:"number_of_winning_trades" json:"number_of_winning_trades"`
	NumberOfLosingTrades  int `yaml:"number_of_losing_trades" json:"number_of_losing_trades"`
	// WinRate is winning trades over all trades, 0 without trades.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// ProfitFactor is gross profit over gross loss, 0 when there are no losing trades.
	ProfitFactor float64 `yaml:"profit_factor" json:"profit_factor"`
	AveragePnL   float64 `yaml:"average_pnl" json:"average_pnl"`
}

type PerformanceStats struct {
	InitialEquity float64 `yaml:"initial_equity" json:"initial_equity"`
	FinalEquity   float64 `yaml:"final_equity" json:"final_equity"`
	// TotalReturn is (final - initial) / initial.
	TotalReturn float64 `yaml:"total_return" json:"total_return"`
	// SharpeRatio is annualized with the configured periods per year. 0 when returns have no variance.
	SharpeRatio float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	// MaxDrawdown is the largest peak-to-trough decline as a fraction of the peak.
	MaxDrawdown    float64 `yaml:"max_drawdown" json:"max_drawdown"`
	PeriodsPerYear float64 `yaml:"periods_per_year" json:"periods_per_year"`
}

type TradeStats struct {
	// ID is the unique identifier for this run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is the time of the last processed bar.
	Timestamp        time.Time        `yaml:"timestamp" json:"timestamp"`
	Symbol           string           `yaml:"symbol" json:"symbol"`
	Strategy         string           `yaml:"strategy" json:"strategy"`
	BarsProcessed    int              `yaml:"bars_processed" json:"bars_processed"`
	TradeResult      TradeResult      `yaml:"trade_result" json:"trade_result"`
	Performance      PerformanceStats `yaml:"performance" json:"performance"`
	TotalFees        float64          `yaml:"total_fees" json:"total_fees"`
	TradeHoldingTime TradeHoldingTime `yaml:"trade_holding_time" json:"trade_holding_time"`
	// BuyAndHoldReturn is the return of holding from the first open to the last close.
	BuyAndHoldReturn float64             `yaml:"buy_and_hold_return" json:"buy_and_hold_return"`
	Vetoes           map[VetoReason]int  `yaml:"vetoes" json:"vetoes"`
	Orders           map[OrderStatus]int `yaml:"orders" json:"orders"`
	ExitReasons      map[ExitReason]int  `yaml:"exit_reasons" json:"exit_reasons"`
	Files            map[string]string   `yaml:"files,omitempty" json:"files,omitempty"`
}

// BacktestReport is the fully settled outcome of one run.
type BacktestReport struct {
	RunID       string         `yaml:"run_id" json:"run_id"`
	Symbol      string         `yaml:"symbol" json:"symbol"`
	Trades      []TradeRecord  `yaml:"trades" json:"trades"`
	EquityCurve []EquitySample `yaml:"equity_curve" json:"equity_curve"`
	Orders      []Order        `yaml:"orders" json:"orders"`
	Vetoes      []RiskVeto     `yaml:"vetoes" json:"vetoes"`
	Stats       TradeStats     `yaml:"stats" json:"stats"`
}

// WriteTradeStats writes the stats of one or more runs as a YAML document.
func WriteTradeStats(path string, stats []TradeStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal trade stats to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trade stats to file: %w", err)
	}

	return nil
}

// ReadTradeStats reads a file written by WriteTradeStats.
func ReadTradeStats(path string) ([]TradeStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trade stats file: %w", err)
	}

	var stats []TradeStats
	if err := yaml.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trade stats: %w", err)
	}

	return stats, nil
}
