// Package progress reports per-file progress of batch undo and redo.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Callback receives one update per processed file. failed is true when the
// file could not be written.
type Callback func(op string, current, total int, target string, failed bool)

// Noop ignores updates.
func Noop(string, int, int, string, bool) {}

// Tracker counts processed files for one operation.
type Tracker struct {
	Op      string
	Total   int
	current int
	failed  int
	cb      Callback
}

// New creates a tracker reporting to cb. A nil cb is replaced with Noop.
func New(op string, total int, cb Callback) *Tracker {
	if cb == nil {
		cb = Noop
	}
	return &Tracker{Op: op, Total: total, cb: cb}
}

// Step records one processed file.
func (t *Tracker) Step(target string, failed bool) {
	t.current++
	if failed {
		t.failed++
	}
	t.cb(t.Op, t.current, t.Total, target, failed)
}

// Current returns the number of processed files.
func (t *Tracker) Current() int { return t.current }

// Failed returns the number of files that failed.
func (t *Tracker) Failed() int { return t.failed }

// Terminal draws a single-line progress bar.
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	width   int
	lastLen int
	failed  int
}

// NewTerminal returns a bar writing to w, or stderr when w is nil.
func NewTerminal(w io.Writer) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	return &Terminal{w: w, width: 30}
}

// Callback returns a Callback that redraws the bar.
func (t *Terminal) Callback() Callback {
	return func(op string, current, total int, target string, failed bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if failed {
			t.failed++
		}
		t.render(op, current, total, target)
		if current >= total {
			fmt.Fprintln(t.w)
			t.lastLen = 0
			t.failed = 0
		}
	}
}

func (t *Terminal) render(op string, current, total int, target string) {
	if total <= 0 {
		total = 1
	}
	filled := t.width * current / total
	if filled > t.width {
		filled = t.width
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", t.width-filled)

	line := fmt.Sprintf("%s [%s] %d/%d", op, bar, current, total)
	if t.failed > 0 {
		line += fmt.Sprintf(" (%d failed)", t.failed)
	}
	if target != "" {
		line += " " + target
	}

	clear := "\r"
	if t.lastLen > 0 {
		clear = "\r" + strings.Repeat(" ", t.lastLen) + "\r"
	}
	fmt.Fprint(t.w, clear+line)
	t.lastLen = len(line)
}
