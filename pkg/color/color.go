// Package color styles CLI output. It respects the NO_COLOR environment
// variable (https://no-color.org/) and dumb terminals.
package color

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
)

var state struct {
	once     sync.Once
	enabled  atomic.Bool
	disabled atomic.Bool
}

// Init decides once whether output is colored.
func Init(noColorFlag bool) {
	state.once.Do(func() {
		off := noColorFlag
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			off = true
		}
		if os.Getenv("TERM") == "dumb" {
			off = true
		}
		if state.disabled.Load() {
			off = true
		}
		state.enabled.Store(!off)
	})
}

// Enabled reports whether output is colored.
func Enabled() bool {
	Init(false)
	return state.enabled.Load()
}

// Disable turns coloring off.
func Disable() {
	Init(false)
	state.disabled.Store(true)
	state.enabled.Store(false)
}

// Enable turns coloring on.
func Enable() {
	Init(false)
	state.disabled.Store(false)
	state.enabled.Store(true)
}

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
)

func wrap(code, s string) string {
	if !Enabled() {
		return s
	}
	return code + s + reset
}

func Success(s string) string { return wrap(green, s) }
func Error(s string) string   { return wrap(red, s) }
func Warning(s string) string { return wrap(yellow, s) }
func Header(s string) string  { return wrap(bold, s) }
func Dim(s string) string     { return wrap(dim, s) }

// ActionID styles an action identifier.
func ActionID(s string) string { return wrap(cyan, s) }

// Kind styles an action kind.
func Kind(k model.Kind) string { return wrap(blue, string(k)) }

// Status styles an undo or redo outcome.
func Status(s model.Status) string {
	switch s {
	case model.StatusSuccess:
		return Success(string(s))
	case model.StatusPartial:
		return Warning(string(s))
	default:
		return Error(string(s))
	}
}

// Reverted marks undone entries in listings.
func Reverted(reverted bool) string {
	if reverted {
		return Dim("undone")
	}
	return Success("applied")
}
