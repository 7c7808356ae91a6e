package decision

import (
	"fmt"

	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// Per-snapshot features, in vector order.
var snapshotFeatures = []string{"histogram", "macd_line", "signal_line", "percent_b", "bandwidth"}

// FeaturesPerSnapshot is the number of values each snapshot contributes.
var FeaturesPerSnapshot = len(snapshotFeatures)

// FeatureNames returns the vector layout for a window of n snapshots, oldest
// first. The newest snapshot carries lag 0.
func FeatureNames(n int) []string {
	names := make([]string, 0, n*FeaturesPerSnapshot)

	for lag := n - 1; lag >= 0; lag-- {
		for _, f := range snapshotFeatures {
			names = append(names, fmt.Sprintf("%s_lag%d", f, lag))
		}
	}

	return names
}

func snapshotValues(s types.IndicatorSnapshot) []float64 {
	return []float64{s.Histogram, s.MACDLine, s.SignalLine, s.PercentB(), s.Bandwidth()}
}

// FeatureWindow keeps the last n snapshots and turns them into feature vectors.
type FeatureWindow struct {
	size      int
	snapshots []types.IndicatorSnapshot
}

func NewFeatureWindow(size int) (*FeatureWindow, error) {
	if size <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "feature window must be a positive integer, got %d", size)
	}

	return &FeatureWindow{
		size:      size,
		snapshots: make([]types.IndicatorSnapshot, 0, size),
	}, nil
}

// Push appends a snapshot, evicting the oldest once the window is full.
func (w *FeatureWindow) Push(s types.IndicatorSnapshot) {
	if len(w.snapshots) == w.size {
		copy(w.snapshots, w.snapshots[1:])
		w.snapshots = w.snapshots[:w.size-1]
	}

	w.snapshots = append(w.snapshots, s)
}

// Vector builds a new feature vector. It is marked incomplete until the
// window is full, in which case the values cover only what has been seen.
func (w *FeatureWindow) Vector() types.FeatureVector {
	values := make([]float64, 0, len(w.snapshots)*FeaturesPerSnapshot)
	for _, s := range w.snapshots {
		values = append(values, snapshotValues(s)...)
	}

	return types.FeatureVector{
		Values:   values,
		Complete: len(w.snapshots) == w.size,
	}
}

// Require returns an InsufficientDataError while the window is not full.
func (w *FeatureWindow) Require() error {
	if len(w.snapshots) < w.size {
		return errors.NewInsufficientDataErrorf(w.size, len(w.snapshots), "",
			"feature window needs %d snapshots, has %d", w.size, len(w.snapshots))
	}

	return nil
}

func (w *FeatureWindow) Size() int {
	return w.size
}

func (w *FeatureWindow) Reset() {
	w.snapshots = w.snapshots[:0]
}
