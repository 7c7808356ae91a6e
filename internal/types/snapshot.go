package types

import "time"

// IndicatorSnapshot is the indicator state after one bar has been folded into the window.
type IndicatorSnapshot struct {
	Time       time.Time `yaml:"time" json:"time"`
	Close      float64   `yaml:"close" json:"close"`
	MACDLine   float64   `yaml:"macd_line" json:"macd_line"`
	SignalLine float64   `yaml:"signal_line" json:"signal_line"`
	Histogram  float64   `yaml:"histogram" json:"histogram"`
	BBUpper    float64   `yaml:"bb_upper" json:"bb_upper"`
	BBMiddle   float64   `yaml:"bb_middle" json:"bb_middle"`
	BBLower    float64   `yaml:"bb_lower" json:"bb_lower"`
	BBStdDev   float64   `yaml:"bb_stddev" json:"bb_stddev"`
}

// PercentB is the position of the close inside the bands, 0.5 when the bands are flat.
func (s IndicatorSnapshot) PercentB() float64 {
	width := s.BBUpper - s.BBLower
	if width == 0 {
		return 0.5
	}

	return (s.Close - s.BBLower) / width
}

// Bandwidth is the band width relative to the middle band.
func (s IndicatorSnapshot) Bandwidth() float64 {
	if s.BBMiddle == 0 {
		return 0
	}

	return (s.BBUpper - s.BBLower) / s.BBMiddle
}

// FeatureVector is the decision filter input built from the most recent snapshots.
// Complete is false until enough snapshots have been observed.
type FeatureVector struct {
	Values   []float64
	Complete bool
}
