// Package progress renders transfer state in the terminal: a multi-bar view
// of every tracked transfer (mpb) and a single bar for one transfer
// (progressbar).
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/telestore/telestore/internal/constants"
	"github.com/telestore/telestore/internal/transfer"
)

// TransferView shows one bar per transfer record. Feed it registry
// snapshots with Render; bars follow the records' lifecycle.
type TransferView struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool

	mu   sync.Mutex
	bars map[string]*viewBar
}

type viewBar struct {
	bar    *mpb.Bar
	mu     sync.Mutex
	rec    transfer.Record
	closed bool
}

func (b *viewBar) record() transfer.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec
}

// NewTransferView creates a view writing to f. Bars are only drawn when f is
// a terminal; otherwise one line per state change is printed.
func NewTransferView(f *os.File) *TransferView {
	isTerminal := term.IsTerminal(int(f.Fd()))
	if isTerminal {
		enableANSI(f)
	}
	return newTransferView(f, isTerminal)
}

// NewPlainTransferView creates a view that prints one line per state change
// to out.
func NewPlainTransferView(out io.Writer) *TransferView {
	return newTransferView(out, false)
}

func newTransferView(out io.Writer, isTerminal bool) *TransferView {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &TransferView{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		bars:       make(map[string]*viewBar),
	}
}

// Render reconciles the bars with snap.
func (v *TransferView) Render(snap transfer.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	seen := make(map[string]bool)
	for _, rec := range snap.All() {
		key := string(rec.Kind) + "/" + rec.ID
		seen[key] = true

		vb, ok := v.bars[key]
		if !ok || (vb.closed && rec.Status == transfer.StatusActive) {
			vb = v.addBar(rec)
			v.bars[key] = vb
		}
		v.update(vb, rec)
	}

	for key, vb := range v.bars {
		if seen[key] {
			continue
		}
		if !vb.closed && vb.bar != nil {
			vb.bar.Abort(true)
		}
		delete(v.bars, key)
	}
}

func (v *TransferView) addBar(rec transfer.Record) *viewBar {
	vb := &viewBar{rec: rec}
	arrow := arrowFor(rec.Kind)

	if v.isTerminal {
		vb.bar = v.progress.New(100,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(decor.Statistics) string {
					r := vb.record()
					label := fmt.Sprintf("%s %s", arrow, r.Name())
					if r.StatusMessage != "" {
						label += " (" + r.StatusMessage + ")"
					}
					return label
				}, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.Any(func(decor.Statistics) string {
					return vb.record().Speed
				}, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(v.out, "%s %s started\n", arrow, rec.Name())
	}
	return vb
}

func (v *TransferView) update(vb *viewBar, rec transfer.Record) {
	vb.mu.Lock()
	vb.rec = rec
	wasClosed := vb.closed
	if rec.IsTerminal() {
		vb.closed = true
	}
	vb.mu.Unlock()

	if wasClosed {
		return
	}

	arrow := arrowFor(rec.Kind)
	switch rec.Status {
	case transfer.StatusActive:
		if vb.bar != nil {
			vb.bar.SetCurrent(int64(rec.Progress))
		}
	case transfer.StatusCompleted:
		if vb.bar != nil {
			vb.bar.SetCurrent(100)
			vb.bar.SetTotal(100, true)
		}
		fmt.Fprintf(v.Writer(), "✓ %s %s\n", arrow, rec.Name())
	case transfer.StatusError:
		if vb.bar != nil {
			vb.bar.Abort(false)
		}
		fmt.Fprintf(v.Writer(), "✗ %s %s: %s\n", arrow, rec.Name(), rec.Error)
	}
}

// Writer returns an io.Writer that prints above the bars.
func (v *TransferView) Writer() io.Writer {
	if v.isTerminal {
		return v.progress
	}
	return v.out
}

// IsTerminal returns whether bars are drawn.
func (v *TransferView) IsTerminal() bool {
	return v.isTerminal
}

// Close aborts bars that are still running and waits for the final render.
func (v *TransferView) Close() {
	v.mu.Lock()
	for key, vb := range v.bars {
		if !vb.closed && vb.bar != nil {
			vb.bar.Abort(false)
		}
		delete(v.bars, key)
	}
	v.mu.Unlock()

	v.progress.Wait()
}

func arrowFor(k transfer.Kind) string {
	if k == transfer.KindDownload {
		return "↓"
	}
	return "↑"
}
