// Package provider turns exchange APIs, websockets and local files into the
// bar streams the backtest and live engines consume.
package provider

import (
	"context"
	"iter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy-engine/internal/config"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// ProviderType names a bar source.
type ProviderType string

const (
	ProviderFile          ProviderType = "file"
	ProviderBinance       ProviderType = "binance"
	ProviderPolygon       ProviderType = "polygon"
	ProviderBinanceStream ProviderType = "binance-stream"
	ProviderBybitStream   ProviderType = "bybit-stream"
)

// OnProgress reports download progress. current and total share a unit that
// depends on the source (milliseconds for Binance, bars for Polygon).
type OnProgress = func(current float64, total float64, message string)

// Source yields bars in time order. Historical sources end when the range is
// exhausted, live sources when ctx is done. A cancelled ctx ends the sequence
// without an error.
type Source interface {
	Stream(ctx context.Context) iter.Seq2[types.Bar, error]
}

// HistoryConfig selects a symbol, interval and time range of historical bars.
// End is exclusive.
type HistoryConfig struct {
	Symbol   string    `yaml:"symbol" json:"symbol" jsonschema:"title=Symbol,description=Trading pair or ticker such as ETHUSDT,default=ETHUSDT" validate:"required"`
	Interval string    `yaml:"interval" json:"interval" jsonschema:"title=Interval,description=Bar interval such as 5m,default=5m" validate:"required"`
	Start    time.Time `yaml:"start" json:"start" jsonschema:"title=Start,description=First bar time (inclusive)" validate:"required"`
	End      time.Time `yaml:"end" json:"end" jsonschema:"title=End,description=Last bar time (exclusive)" validate:"required,gtfield=Start"`
}

func (c HistoryConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid history config", err)
	}

	if _, err := config.ParseInterval(c.Interval); err != nil {
		return err
	}

	return nil
}

// IntervalDuration returns the parsed interval. Only valid after Validate.
func (c HistoryConfig) IntervalDuration() time.Duration {
	d, _ := config.ParseInterval(c.Interval)

	return d
}

// StreamConfig selects the live bars to subscribe to.
type StreamConfig struct {
	Symbol   string `yaml:"symbol" json:"symbol" jsonschema:"title=Symbol,description=Trading pair to stream,default=ETHUSDT" validate:"required"`
	Interval string `yaml:"interval" json:"interval" jsonschema:"title=Interval,description=Candle interval,default=5m" validate:"required"`
	// URL overrides the websocket endpoint.
	URL string `yaml:"url,omitempty" json:"url,omitempty" jsonschema:"title=URL,description=Websocket endpoint override" validate:"omitempty,url"`
}

func (c StreamConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid stream config", err)
	}

	if _, err := config.ParseInterval(c.Interval); err != nil {
		return err
	}

	return nil
}
