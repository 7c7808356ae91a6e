package main

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// progressReporter adapts download callbacks to a progress bar. The bar is
// created once a callback reports a total.
type progressReporter struct {
	w           io.Writer
	description string
	bar         *progressbar.ProgressBar
}

func newProgressReporter(w io.Writer, description string) *progressReporter {
	return &progressReporter{w: w, description: description}
}

func (p *progressReporter) OnProgress(current float64, total float64, message string) {
	if total <= 0 {
		return
	}

	if p.bar == nil {
		p.bar = progressbar.NewOptions64(int64(total),
			progressbar.OptionSetDescription(p.description),
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionShowCount(),
		)
	}

	if p.bar.GetMax64() != int64(total) {
		p.bar.ChangeMax64(int64(total))
	}

	p.bar.Describe(message)

	//nolint:errcheck // progress output only
	p.bar.Set64(min(int64(current), int64(total)))
}

func (p *progressReporter) Finish() {
	if p.bar != nil {
		//nolint:errcheck // progress output only
		p.bar.Finish()
	}
}
