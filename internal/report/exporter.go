// Package report persists run results: orders, trades, equity and vetoes as
// parquet or CSV files through an in-memory DuckDB, and stats as YAML.
package report

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
)

type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

// Table names, also used as file names.
const (
	TableOrders = "orders"
	TableTrades = "trades"
	TableEquity = "equity"
	TableVetoes = "vetoes"
)

// StatsFile is the name of the YAML stats file.
const StatsFile = "stats.yaml"

var tables = []string{TableOrders, TableTrades, TableEquity, TableVetoes}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		symbol TEXT,
		side TEXT,
		intent TEXT,
		quantity DOUBLE,
		status TEXT,
		requested_at TIMESTAMP,
		signal_price DOUBLE,
		filled_at TIMESTAMP,
		fill_price DOUBLE,
		fee DOUBLE,
		reason TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		symbol TEXT,
		position_type TEXT,
		quantity DOUBLE,
		entry_time TIMESTAMP,
		entry_price DOUBLE,
		exit_time TIMESTAMP,
		exit_price DOUBLE,
		fees DOUBLE,
		pnl DOUBLE,
		return_pct DOUBLE,
		duration_seconds DOUBLE,
		status TEXT,
		exit_reason TEXT,
		entry_order_id TEXT,
		exit_order_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS equity (
		time TIMESTAMP,
		equity DOUBLE
	)`,
	`CREATE TABLE IF NOT EXISTS vetoes (
		time TIMESTAMP,
		action TEXT,
		reason TEXT
	)`,
}

// Exporter collects run records in DuckDB and exports each table to its own
// file in dir. Orders are upserted by id, so a live run can write every
// status change of an order. Safe for concurrent use.
type Exporter struct {
	db     *sql.DB
	dir    string
	format Format
	mu     sync.Mutex
	log    *logger.Logger
}

func NewExporter(dir string, format Format, log *logger.Logger) (*Exporter, error) {
	if format != FormatParquet && format != FormatCSV {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported report format %q", format)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeReportWriteFailed, err, "failed to create report directory %s", dir)
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReportWriteFailed, "failed to open DuckDB connection", err)
	}

	for _, statement := range schema {
		if _, err := db.Exec(statement); err != nil {
			db.Close()

			return nil, errors.Wrap(errors.ErrCodeReportWriteFailed, "failed to create report table", err)
		}
	}

	return &Exporter{
		db:     db,
		dir:    dir,
		format: format,
		log:    log.Named("report"),
	}, nil
}

// Path returns the output file of table.
func (e *Exporter) Path(table string) string {
	return filepath.Join(e.dir, table+"."+string(e.format))
}

func (e *Exporter) WriteOrder(order types.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.insertOrder(e.db, order)
}

func (e *Exporter) WriteTrade(trade types.TradeRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.insertTrade(e.db, trade)
}

func (e *Exporter) WriteEquity(sample types.EquitySample) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.exec(e.db, sq.Insert(TableEquity).Columns("time", "equity").Values(sample.Time, sample.Equity))
}

func (e *Exporter) WriteVeto(veto types.RiskVeto) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.insertVeto(e.db, veto)
}

// WriteReport stores every record of report in one transaction, exports all
// tables and writes the stats file.
func (e *Exporter) WriteReport(report types.BacktestReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeReportWriteFailed, "failed to begin transaction", err)
	}

	if err := e.insertReport(tx, report); err != nil {
		//nolint:errcheck // the insert error is the one to report
		tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeReportWriteFailed, "failed to commit report", err)
	}

	if err := e.flush(); err != nil {
		return err
	}

	if err := WriteStats(e.dir, []types.TradeStats{report.Stats}); err != nil {
		return err
	}

	e.log.Info("Report written",
		zap.String("run_id", report.RunID),
		zap.String("dir", e.dir),
		zap.Int("orders", len(report.Orders)),
		zap.Int("trades", len(report.Trades)),
	)

	return nil
}

func (e *Exporter) insertReport(runner sq.BaseRunner, report types.BacktestReport) error {
	for _, order := range report.Orders {
		if err := e.insertOrder(runner, order); err != nil {
			return err
		}
	}

	for _, trade := range report.Trades {
		if err := e.insertTrade(runner, trade); err != nil {
			return err
		}
	}

	if len(report.EquityCurve) > 0 {
		insert := sq.Insert(TableEquity).Columns("time", "equity")
		for _, sample := range report.EquityCurve {
			insert = insert.Values(sample.Time, sample.Equity)
		}

		if err := e.exec(runner, insert); err != nil {
			return err
		}
	}

	for _, veto := range report.Vetoes {
		if err := e.insertVeto(runner, veto); err != nil {
			return err
		}
	}

	return nil
}

func (e *Exporter) insertOrder(runner sq.BaseRunner, order types.Order) error {
	var filledAt sql.NullTime
	if order.FilledAt.IsSome() {
		filledAt = sql.NullTime{Time: order.FilledAt.Unwrap(), Valid: true}
	}

	var fillPrice sql.NullFloat64
	if order.FillPrice.IsSome() {
		fillPrice = sql.NullFloat64{Float64: order.FillPrice.Unwrap(), Valid: true}
	}

	insert := sq.Insert(TableOrders).
		Columns("id", "symbol", "side", "intent", "quantity", "status", "requested_at",
			"signal_price", "filled_at", "fill_price", "fee", "reason").
		Values(order.ID, order.Symbol, string(order.Side), string(order.Intent), order.RequestedQuantity,
			string(order.Status), order.RequestedAt, order.SignalPrice, filledAt, fillPrice, order.Fee, order.Reason).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			quantity = excluded.quantity,
			status = excluded.status,
			filled_at = excluded.filled_at,
			fill_price = excluded.fill_price,
			fee = excluded.fee,
			reason = excluded.reason`)

	return e.exec(runner, insert)
}

func (e *Exporter) insertTrade(runner sq.BaseRunner, trade types.TradeRecord) error {
	insert := sq.Insert(TableTrades).
		Columns("symbol", "position_type", "quantity", "entry_time", "entry_price", "exit_time", "exit_price",
			"fees", "pnl", "return_pct", "duration_seconds", "status", "exit_reason", "entry_order_id", "exit_order_id").
		Values(trade.Symbol, string(trade.PositionType), trade.Quantity, trade.EntryTime, trade.EntryPrice,
			trade.ExitTime, trade.ExitPrice, trade.Fees, trade.PnL, trade.ReturnPct, trade.Duration.Seconds(),
			string(trade.Status), string(trade.ExitReason), trade.EntryOrderID, trade.ExitOrderID)

	return e.exec(runner, insert)
}

func (e *Exporter) insertVeto(runner sq.BaseRunner, veto types.RiskVeto) error {
	insert := sq.Insert(TableVetoes).
		Columns("time", "action", "reason").
		Values(veto.Time, string(veto.Action), string(veto.Reason))

	return e.exec(runner, insert)
}

func (e *Exporter) exec(runner sq.BaseRunner, insert sq.InsertBuilder) error {
	if _, err := insert.RunWith(runner).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeReportWriteFailed, "failed to insert report record", err)
	}

	return nil
}

// Count returns the number of rows stored in table.
func (e *Exporter) Count(table string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var count int

	err := sq.Select("COUNT(*)").From(table).RunWith(e.db).QueryRow().Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeReportWriteFailed, err, "failed to count %s", table)
	}

	return count, nil
}

// Flush exports every table to its file.
func (e *Exporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.flush()
}

func (e *Exporter) flush() error {
	for _, table := range tables {
		order := "time"

		switch table {
		case TableOrders:
			order = "requested_at, id"
		case TableTrades:
			order = "exit_time"
		}

		options := "FORMAT PARQUET"
		if e.format == FormatCSV {
			options = "FORMAT CSV, HEADER"
		}

		query := fmt.Sprintf("COPY (SELECT * FROM %s ORDER BY %s) TO '%s' (%s)", table, order, quote(e.Path(table)), options)
		if _, err := e.db.Exec(query); err != nil {
			return errors.Wrapf(errors.ErrCodeReportWriteFailed, err, "failed to export %s", table)
		}
	}

	return nil
}

func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db == nil {
		return nil
	}

	err := e.db.Close()
	e.db = nil

	if err != nil {
		return errors.Wrap(errors.ErrCodeReportWriteFailed, "failed to close database", err)
	}

	return nil
}

// WriteStats writes stats to dir/stats.yaml.
func WriteStats(dir string, stats []types.TradeStats) error {
	if err := types.WriteTradeStats(filepath.Join(dir, StatsFile), stats); err != nil {
		return errors.Wrap(errors.ErrCodeReportWriteFailed, "failed to write stats", err)
	}

	return nil
}

func quote(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
