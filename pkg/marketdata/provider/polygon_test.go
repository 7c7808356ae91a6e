package provider

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type sliceAggsIterator struct {
	aggs  []models.Agg
	index int
	err   error
}

func (it *sliceAggsIterator) Next() bool {
	if it.index >= len(it.aggs) {
		return false
	}

	it.index++

	return true
}

func (it *sliceAggsIterator) Item() models.Agg {
	return it.aggs[it.index-1]
}

func (it *sliceAggsIterator) Err() error {
	if it.index >= len(it.aggs) {
		return it.err
	}

	return nil
}

type mockAggsClient struct {
	aggs   []models.Agg
	err    error
	params *models.ListAggsParams
}

func (m *mockAggsClient) ListAggs(_ context.Context, params *models.ListAggsParams) AggsIterator {
	m.params = params

	return &sliceAggsIterator{aggs: m.aggs, err: m.err}
}

type PolygonSourceTestSuite struct {
	suite.Suite
	start  time.Time
	config HistoryConfig
}

func TestPolygonSourceSuite(t *testing.T) {
	suite.Run(t, new(PolygonSourceTestSuite))
}

func (suite *PolygonSourceTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	suite.config = HistoryConfig{Symbol: "SPY", Interval: "5m", Start: suite.start, End: suite.start.Add(time.Hour)}
}

func (suite *PolygonSourceTestSuite) aggs(count int) []models.Agg {
	aggs := make([]models.Agg, count)

	for i := range aggs {
		price := 470 + float64(i)
		aggs[i] = models.Agg{
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
			Timestamp: models.Millis(suite.start.Add(time.Duration(i) * 5 * time.Minute)),
		}
	}

	return aggs
}

func (suite *PolygonSourceTestSuite) TestStreamsAggregates() {
	client := &mockAggsClient{aggs: suite.aggs(12)}

	source, err := newPolygonSourceWithClient(client, suite.config, nil)
	suite.Require().NoError(err)

	var bars []types.Bar

	for bar, err := range source.Stream(context.Background()) {
		suite.Require().NoError(err)

		bars = append(bars, bar)
	}

	suite.Require().Len(bars, 12)
	suite.Equal("SPY", bars[0].Symbol)
	suite.Equal(470.0, bars[0].Open)
	suite.True(bars[11].Time.Equal(suite.start.Add(55 * time.Minute)))

	suite.Require().NotNil(client.params)
	suite.Equal("SPY", client.params.Ticker)
	suite.Equal(5, client.params.Multiplier)
	suite.Equal(models.Minute, client.params.Timespan)
}

func (suite *PolygonSourceTestSuite) TestIteratorFailure() {
	client := &mockAggsClient{aggs: suite.aggs(2), err: stderrors.New("unauthorized")}

	source, err := newPolygonSourceWithClient(client, suite.config, nil)
	suite.Require().NoError(err)

	count := 0

	var streamErr error

	for _, err := range source.Stream(context.Background()) {
		if err != nil {
			streamErr = err

			continue
		}

		count++
	}

	suite.Equal(2, count)
	suite.True(errors.HasCode(streamErr, errors.ErrCodeMarketDataFetchFailed))
}

func (suite *PolygonSourceTestSuite) TestTimespan() {
	tests := []struct {
		interval   time.Duration
		multiplier int
		timespan   models.Timespan
	}{
		{interval: time.Second, multiplier: 1, timespan: models.Second},
		{interval: 15 * time.Minute, multiplier: 15, timespan: models.Minute},
		{interval: 4 * time.Hour, multiplier: 4, timespan: models.Hour},
		{interval: 72 * time.Hour, multiplier: 3, timespan: models.Day},
		{interval: 7 * 24 * time.Hour, multiplier: 1, timespan: models.Week},
	}

	for _, tc := range tests {
		suite.Run(tc.interval.String(), func() {
			multiplier, timespan, err := polygonTimespan(tc.interval)
			suite.Require().NoError(err)
			suite.Equal(tc.multiplier, multiplier)
			suite.Equal(tc.timespan, timespan)
		})
	}

	_, _, err := polygonTimespan(1500 * time.Millisecond)
	suite.Error(err)
}

func (suite *PolygonSourceTestSuite) TestRequiresAPIKey() {
	_, err := NewPolygonSource("", suite.config, nil)
	suite.True(errors.IsConfigurationError(err))
}
