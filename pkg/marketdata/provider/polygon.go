package provider

import (
	"context"
	"fmt"
	"iter"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
)

const polygonPageLimit = 50000

// AggsIterator walks aggregate results. *iter.Iter[models.Agg] satisfies it.
type AggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// AggsClient lists aggregates for one request.
type AggsClient interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams) AggsIterator
}

type polygonAggsClient struct {
	client *polygon.Client
}

func (c polygonAggsClient) ListAggs(ctx context.Context, params *models.ListAggsParams) AggsIterator {
	return c.client.ListAggs(ctx, params)
}

// PolygonSource reads historical aggregates from Polygon.io.
type PolygonSource struct {
	client     AggsClient
	config     HistoryConfig
	multiplier int
	timespan   models.Timespan
	onProgress OnProgress
	log        *logger.Logger
}

func NewPolygonSource(apiKey string, config HistoryConfig, log *logger.Logger) (*PolygonSource, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "polygon API key is required")
	}

	return newPolygonSourceWithClient(polygonAggsClient{client: polygon.New(apiKey)}, config, log)
}

func newPolygonSourceWithClient(client AggsClient, config HistoryConfig, log *logger.Logger) (*PolygonSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	multiplier, timespan, err := polygonTimespan(config.IntervalDuration())
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &PolygonSource{
		client:     client,
		config:     config,
		multiplier: multiplier,
		timespan:   timespan,
		log:        log.Named("polygon"),
	}, nil
}

// polygonTimespan splits an interval into Polygon's multiplier and timespan,
// choosing the largest unit that divides it.
func polygonTimespan(interval time.Duration) (int, models.Timespan, error) {
	units := []struct {
		size     time.Duration
		timespan models.Timespan
	}{
		{7 * 24 * time.Hour, models.Week},
		{24 * time.Hour, models.Day},
		{time.Hour, models.Hour},
		{time.Minute, models.Minute},
		{time.Second, models.Second},
	}

	for _, unit := range units {
		if interval >= unit.size && interval%unit.size == 0 {
			return int(interval / unit.size), unit.timespan, nil
		}
	}

	return 0, "", errors.Newf(errors.ErrCodeInvalidTimespan, "interval %s has no polygon timespan", interval)
}

// SetProgress registers a callback run every 1000 bars.
func (s *PolygonSource) SetProgress(onProgress OnProgress) {
	s.onProgress = onProgress
}

func (s *PolygonSource) Stream(ctx context.Context) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		//nolint:exhaustruct // third-party struct with many optional fields
		params := models.ListAggsParams{
			Ticker:     s.config.Symbol,
			Multiplier: s.multiplier,
			Timespan:   s.timespan,
			From:       models.Millis(s.config.Start),
			To:         models.Millis(s.config.End.Add(-time.Millisecond)),
		}.WithLimit(polygonPageLimit)

		total := float64(s.config.End.Sub(s.config.Start) / s.config.IntervalDuration())
		aggs := s.client.ListAggs(ctx, params)
		count := 0

		for aggs.Next() {
			if ctx.Err() != nil {
				return
			}

			agg := aggs.Item()

			bar := types.Bar{
				Symbol: s.config.Symbol,
				Time:   time.Time(agg.Timestamp).UTC(),
				Open:   agg.Open,
				High:   agg.High,
				Low:    agg.Low,
				Close:  agg.Close,
				Volume: agg.Volume,
			}

			if !yield(bar, nil) {
				return
			}

			count++
			if s.onProgress != nil && count%1000 == 0 {
				s.onProgress(float64(count), total, fmt.Sprintf("Downloading %s", s.config.Symbol))
			}
		}

		if err := aggs.Err(); err != nil {
			if ctx.Err() != nil {
				return
			}

			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to list %s aggregates", s.config.Symbol))

			return
		}

		s.log.Info("Finished reading aggregates", zap.String("symbol", s.config.Symbol), zap.Int("count", count))
	}
}
