package types

import (
	"iter"
	"time"

	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// Bar is a single OHLCV candle. Bars are immutable once ingested.
type Bar struct {
	Symbol string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	Time   time.Time `yaml:"time" json:"time" csv:"time"`
	Open   float64   `yaml:"open" json:"open" csv:"open"`
	High   float64   `yaml:"high" json:"high" csv:"high"`
	Low    float64   `yaml:"low" json:"low" csv:"low"`
	Close  float64   `yaml:"close" json:"close" csv:"close"`
	Volume float64   `yaml:"volume" json:"volume" csv:"volume"`
}

// Validate checks the internal consistency of a single bar.
func (b Bar) Validate() error {
	if b.Time.IsZero() {
		return errors.New(errors.ErrCodeMalformedBar, "bar has no timestamp")
	}

	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return errors.Newf(errors.ErrCodeMalformedBar, "bar at %s has non-positive prices", b.Time.Format(time.RFC3339))
	}

	if b.High < b.Low {
		return errors.Newf(errors.ErrCodeMalformedBar, "bar at %s has high %.8f below low %.8f", b.Time.Format(time.RFC3339), b.High, b.Low)
	}

	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return errors.Newf(errors.ErrCodeMalformedBar, "bar at %s has open/close outside its range", b.Time.Format(time.RFC3339))
	}

	if b.Volume < 0 {
		return errors.Newf(errors.ErrCodeMalformedBar, "bar at %s has negative volume", b.Time.Format(time.RFC3339))
	}

	return nil
}

// BarSequencer enforces strictly increasing bar timestamps.
type BarSequencer struct {
	last    time.Time
	started bool
}

// Check returns a data error when bar does not come strictly after the previously accepted bar.
// Accepted bars advance the sequencer; rejected ones leave it untouched.
func (s *BarSequencer) Check(bar Bar) error {
	if s.started {
		if bar.Time.Equal(s.last) {
			return errors.Newf(errors.ErrCodeDuplicateBar, "duplicate bar at %s", bar.Time.Format(time.RFC3339))
		}

		if bar.Time.Before(s.last) {
			return errors.Newf(errors.ErrCodeNonMonotonicBar, "bar at %s arrived after %s",
				bar.Time.Format(time.RFC3339), s.last.Format(time.RFC3339))
		}
	}

	s.last = bar.Time
	s.started = true

	return nil
}

// Last returns the timestamp of the last accepted bar.
func (s *BarSequencer) Last() (time.Time, bool) {
	return s.last, s.started
}

// BarSeq adapts an in-memory slice to the iterator the drivers consume.
func BarSeq(bars []Bar) iter.Seq2[Bar, error] {
	return func(yield func(Bar, error) bool) {
		for _, bar := range bars {
			if !yield(bar, nil) {
				return
			}
		}
	}
}
