package pipeline

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// Progress is a bounded progress indicator.
type Progress interface {
	Add(n int) error
	Finish() error
}

// ProgressFactory creates a Progress for one stage.
type ProgressFactory func(total int, description string) Progress

type noProgress struct{}

func (noProgress) Add(int) error { return nil }
func (noProgress) Finish() error { return nil }

// NoProgress discards progress updates.
func NoProgress(int, string) Progress { return noProgress{} }

// ProgressBars renders one progress bar per stage on w.
func ProgressBars(w io.Writer) ProgressFactory {
	return func(total int, description string) Progress {
		return progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		)
	}
}
