package provider

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// FileConfig points a DuckDBSource at a parquet or CSV file with the columns
// time, symbol, open, high, low, close and volume.
type FileConfig struct {
	Path string `yaml:"path" json:"path" jsonschema:"title=Path,description=Parquet or CSV file of bars" validate:"required"`
	// Symbol keeps only rows of this symbol when set.
	Symbol string `yaml:"symbol,omitempty" json:"symbol,omitempty" jsonschema:"title=Symbol,description=Only read rows of this symbol"`
	// Start and End bound the rows read when non-zero. End is exclusive.
	Start time.Time `yaml:"start,omitempty" json:"start,omitempty" jsonschema:"title=Start"`
	End   time.Time `yaml:"end,omitempty" json:"end,omitempty" jsonschema:"title=End"`
}

// DuckDBSource replays bars from a local file. Rows come back sorted by time;
// duplicate or malformed rows are passed through for the engine to reject.
type DuckDBSource struct {
	config FileConfig
}

func NewDuckDBSource(config FileConfig) (*DuckDBSource, error) {
	if config.Path == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "bar file path is required")
	}

	if _, err := tableFunction(config.Path); err != nil {
		return nil, err
	}

	if !config.Start.IsZero() && !config.End.IsZero() && !config.End.After(config.Start) {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "end must be after start")
	}

	return &DuckDBSource{config: config}, nil
}

func tableFunction(path string) (string, error) {
	quoted := strings.ReplaceAll(path, "'", "''")

	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return fmt.Sprintf("read_parquet('%s')", quoted), nil
	case ".csv":
		return fmt.Sprintf("read_csv_auto('%s', header = true)", quoted), nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported bar file %s: expected .parquet or .csv", path)
	}
}

func (s *DuckDBSource) query() sq.SelectBuilder {
	from, _ := tableFunction(s.config.Path)

	query := sq.Select("CAST(time AS TIMESTAMP)", "symbol", "open", "high", "low", "close", "volume").
		From(from).
		OrderBy("time")

	if s.config.Symbol != "" {
		query = query.Where(sq.Eq{"symbol": s.config.Symbol})
	}

	if !s.config.Start.IsZero() {
		query = query.Where(sq.GtOrEq{"time": s.config.Start.UTC()})
	}

	if !s.config.End.IsZero() {
		query = query.Where(sq.Lt{"time": s.config.End.UTC()})
	}

	return query
}

func (s *DuckDBSource) Stream(ctx context.Context) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		db, err := sql.Open("duckdb", ":memory:")
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to open DuckDB connection", err))

			return
		}
		defer db.Close()

		rows, err := s.query().RunWith(db).QueryContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to read %s", s.config.Path))

			return
		}
		defer rows.Close()

		for rows.Next() {
			if ctx.Err() != nil {
				return
			}

			var bar types.Bar
			if err := rows.Scan(&bar.Time, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
				yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "failed to scan row of %s", s.config.Path))

				return
			}

			bar.Time = bar.Time.UTC()

			if !yield(bar, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil && ctx.Err() == nil {
			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to read %s", s.config.Path))
		}
	}
}

// Load reads every bar of the file into memory, for sweeps that replay the
// same data many times.
func (s *DuckDBSource) Load(ctx context.Context) ([]types.Bar, error) {
	var bars []types.Bar

	for bar, err := range s.Stream(ctx) {
		if err != nil {
			return nil, err
		}

		bars = append(bars, bar)
	}

	return bars, nil
}
