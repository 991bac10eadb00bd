package status

import (
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress receives byte counts from a download or extraction.
// total is -1 when the size is unknown.
type Progress func(done, total int64)

// Bar returns a Progress that draws a bar labelled "[stage] description",
// and a finish func to call when the transfer ends. When bars are disabled
// both are no-ops.
func (p *Printer) Bar(stage, description string) (Progress, func()) {
	if !p.progress {
		return func(int64, int64) {}, func() {}
	}

	var bar *progressbar.ProgressBar

	update := func(done, total int64) {
		if bar == nil {
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetWriter(p.out),
				progressbar.OptionSetDescription("["+colStage.Sprint(stage)+"] "+description),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetElapsedTime(true),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "#",
					SaucerPadding: "-",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					p.out.Write([]byte("\n"))
				}),
			)
		}

		if total > 0 && bar.GetMax64() != total {
			bar.ChangeMax64(total)
		}

		_ = bar.Set64(done)
	}

	finish := func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}

	return update, finish
}
