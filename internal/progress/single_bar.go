package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/telestore/telestore/internal/constants"
	"github.com/telestore/telestore/internal/transfer"
)

// SingleBar follows one transfer record with a percentage bar.
type SingleBar struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// NewSingleBar creates a bar titled description writing to out.
func NewSingleBar(out io.Writer, description string) *SingleBar {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(constants.ProgressRefreshRate),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &SingleBar{bar: bar, out: out}
}

// Update moves the bar to rec's progress and shows its speed.
func (b *SingleBar) Update(rec transfer.Record) {
	desc := rec.Name()
	if rec.Speed != "" && rec.Speed != constants.SpeedUnknown {
		desc += "  " + rec.Speed
	}
	b.bar.Describe(desc)
	_ = b.bar.Set(rec.Progress)
}

// Finish fills the bar.
func (b *SingleBar) Finish() {
	_ = b.bar.Finish()
}

// Fail stops the bar where it is and prints err.
func (b *SingleBar) Fail(err error) {
	_ = b.bar.Exit()
	if err != nil {
		fmt.Fprintf(b.out, "\nError: %v\n", err)
	}
}
