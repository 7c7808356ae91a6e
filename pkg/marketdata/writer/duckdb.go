package writer

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBWriter buffers a download in one transaction and exports it on
// Finalize. A bar repeated for the same symbol and time is kept once.
type DuckDBWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	outputPath string
	written    int
	log        *logger.Logger
}

// NewDuckDBWriter writes to outputPath, a .parquet or .csv file.
func NewDuckDBWriter(outputPath string, log *logger.Logger) *DuckDBWriter {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &DuckDBWriter{
		outputPath: outputPath,
		log:        log.Named("writer"),
	}
}

func (w *DuckDBWriter) Initialize() (err error) {
	if _, err := copyStatement(w.outputPath); err != nil {
		return err
	}

	w.db, err = sql.Open("duckdb", ":memory:")
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to open DuckDB connection", err)
	}

	if _, err = w.db.Exec(createBarsTable); err != nil {
		w.db.Close()
		w.db = nil

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create bars table", err)
	}

	w.tx, err = w.db.Begin()
	if err != nil {
		w.db.Close()
		w.db = nil

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to begin transaction", err)
	}

	return nil
}

func (w *DuckDBWriter) Write(bar types.Bar) error {
	if w.tx == nil {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized or already finalized")
	}

	_, err := sq.Insert("bars").
		Columns(barColumns...).
		Values(barValues(bar)...).
		Suffix("ON CONFLICT (symbol, time) DO NOTHING").
		RunWith(w.tx).
		Exec()
	if err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to insert %s bar at %s", bar.Symbol, bar.Time)
	}

	w.written++

	return nil
}

func (w *DuckDBWriter) Finalize() (string, error) {
	if w.tx == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized or already finalized")
	}

	if err := w.tx.Commit(); err != nil {
		//nolint:errcheck // the commit error is the one to report
		w.tx.Rollback()
		w.tx = nil

		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to commit bars", err)
	}

	w.tx = nil

	statement, err := copyStatement(w.outputPath)
	if err != nil {
		return "", err
	}

	if _, err := w.db.Exec(statement); err != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to export bars to %s", w.outputPath)
	}

	w.log.Info("Exported bars", zap.String("path", w.outputPath), zap.Int("written", w.written))

	return w.outputPath, nil
}

func (w *DuckDBWriter) GetOutputPath() string {
	return w.outputPath
}

// Close rolls back an unfinished transaction and releases the database.
func (w *DuckDBWriter) Close() error {
	if w.tx != nil {
		if err := w.tx.Rollback(); err != nil {
			w.log.Warn("Failed to roll back transaction during close", zap.Error(err))
		}

		w.tx = nil
	}

	if w.db == nil {
		return nil
	}

	err := w.db.Close()
	w.db = nil

	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to close DuckDB connection", err)
	}

	return nil
}

var _ BarWriter = (*DuckDBWriter)(nil)
