package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// BarSink draws a terminal progress bar advancing once per table.
type BarSink struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewBarSink creates a bar writing to w, usually a terminal on stderr.
func NewBarSink(w io.Writer) *BarSink {
	return &BarSink{w: w}
}

func (s *BarSink) RunStarted(RunEvent) {}

func (s *BarSink) TableCompleted(e TableEvent) {
	if s.bar == nil {
		s.bar = progressbar.NewOptions(e.Total,
			progressbar.OptionSetWriter(s.w),
			progressbar.OptionSetDescription("exporting"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
	}
	s.bar.Describe(e.Result.Table)
	_ = s.bar.Set(e.Done)
}

func (s *BarSink) RunFinished(e RunEvent) {
	if s.bar == nil {
		return
	}
	if e.Err != nil {
		_ = s.bar.Exit()
		return
	}
	_ = s.bar.Finish()
}
