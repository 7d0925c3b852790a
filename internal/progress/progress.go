// Package progress renders transfer progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/drunlade/go-xmodem/xmodem"
)

// Bars draws one progress bar per file. It is safe for the callbacks to
// run on the transfer goroutine while Close runs on another.
type Bars struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

// New returns bars drawing to w, or os.Stderr when w is nil.
func New(w io.Writer) *Bars {
	if w == nil {
		w = os.Stderr
	}
	return &Bars{w: w}
}

// Callbacks returns session callbacks that drive the bars. Hooks already
// set in base are called as well.
func (b *Bars) Callbacks(base *xmodem.Callbacks) *xmodem.Callbacks {
	cb := &xmodem.Callbacks{}
	if base != nil {
		*cb = *base
	}

	start, progress, complete := cb.OnFileStart, cb.OnProgress, cb.OnFileComplete
	cb.OnFileStart = func(name string, size int64, mode os.FileMode) {
		b.start(name, size)
		if start != nil {
			start(name, size, mode)
		}
	}
	cb.OnProgress = func(name string, transferred, total int64, rate float64) {
		b.set(transferred)
		if progress != nil {
			progress(name, transferred, total, rate)
		}
	}
	cb.OnFileComplete = func(name string, n int64, d time.Duration) {
		b.finish(name, n, d)
		if complete != nil {
			complete(name, n, d)
		}
	}
	return cb
}

func (b *Bars) start(name string, size int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if size <= 0 {
		size = -1 // spinner
	}
	b.bar = progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (b *Bars) set(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Set64(n)
	}
}

func (b *Bars) finish(name string, n int64, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		return
	}
	b.bar.Set64(n)
	b.bar.Finish()
	b.bar = nil
	fmt.Fprintf(b.w, "%s: %d bytes in %v\n", name, n, d.Round(time.Millisecond))
}

// Close abandons a bar left open by a failed transfer.
func (b *Bars) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Exit()
		b.bar = nil
	}
}
