// Package writer stores bars in parquet or CSV files through DuckDB.
package writer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// BarWriter persists bars to a file.
type BarWriter interface {
	// Initialize opens the database and creates the bars table.
	Initialize() error
	Write(bar types.Bar) error
	// Finalize exports every bar written so far and returns the file path.
	Finalize() (outputPath string, err error)
	Close() error
	GetOutputPath() string
}

const createBarsTable = `CREATE TABLE IF NOT EXISTS bars (
	time TIMESTAMP,
	symbol TEXT,
	open DOUBLE,
	high DOUBLE,
	low DOUBLE,
	close DOUBLE,
	volume DOUBLE,
	PRIMARY KEY (symbol, time)
)`

var barColumns = []string{"time", "symbol", "open", "high", "low", "close", "volume"}

func barValues(bar types.Bar) []any {
	return []any{bar.Time.UTC(), bar.Symbol, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume}
}

// copyStatement exports the bars table to path, choosing the format from its extension.
func copyStatement(path string) (string, error) {
	var options string

	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		options = "FORMAT PARQUET"
	case ".csv":
		options = "FORMAT CSV, HEADER"
	default:
		return "", errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported output file %s: expected .parquet or .csv", path)
	}

	return fmt.Sprintf("COPY (SELECT * FROM bars ORDER BY time, symbol) TO '%s' (%s)",
		strings.ReplaceAll(path, "'", "''"), options), nil
}
