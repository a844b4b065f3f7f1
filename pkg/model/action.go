package model

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
)

// State is the position of an action in its undo/redo state machine.
type State int

const (
	StateApplied State = iota
	StateReverted
)

func (s State) String() string {
	if s == StateReverted {
		return "reverted"
	}
	return "applied"
}

// actionState is shared by an action and every rebound copy of it, so a
// rename never resets or forks the reverted flag.
type actionState struct {
	reverted atomic.Bool
	busy     atomic.Bool
}

// Action is one recorded mutation. Everything except the reverted flag is
// immutable after NewAction returns; accessors hand out copies.
type Action struct {
	id        string
	timestamp time.Time
	targets   []string
	field     string
	summary   string
	payload   Payload
	state     *actionState
}

// NewAction validates and builds an action. Batch payloads must be keyed by
// exactly the given targets.
func NewAction(id string, ts time.Time, targets []string, field, summary string, payload Payload) (*Action, error) {
	if id == "" {
		return nil, errclass.ErrInvalidAction.WithMessage("action id must not be empty")
	}
	if payload == nil {
		return nil, errclass.ErrInvalidAction.WithMessage("action payload must not be nil")
	}
	if len(targets) == 0 {
		return nil, errclass.ErrInvalidAction.WithMessage("action must have at least one target")
	}
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if t == "" {
			return nil, errclass.ErrInvalidAction.WithMessage("target must not be empty")
		}
		if _, dup := seen[t]; dup {
			return nil, errclass.ErrInvalidAction.WithMessagef("duplicate target: %s", t)
		}
		seen[t] = struct{}{}
	}

	kind := payload.Kind()
	if kind.IsBatch() {
		keys := payload.keys()
		if len(keys) != len(targets) {
			return nil, errclass.ErrInvalidAction.WithMessagef("%s has %d values for %d targets", kind, len(keys), len(targets))
		}
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				return nil, errclass.ErrInvalidAction.WithMessagef("%s value for untracked target: %s", kind, k)
			}
		}
	} else if len(targets) != 1 {
		return nil, errclass.ErrInvalidAction.WithMessagef("%s requires exactly one target, got %d", kind, len(targets))
	}

	return &Action{
		id:        id,
		timestamp: ts,
		targets:   append([]string(nil), targets...),
		field:     field,
		summary:   summary,
		payload:   payload,
		state:     &actionState{},
	}, nil
}

func (a *Action) ID() string           { return a.id }
func (a *Action) Timestamp() time.Time { return a.timestamp }
func (a *Action) Kind() Kind           { return a.payload.Kind() }
func (a *Action) Field() string        { return a.field }
func (a *Action) Summary() string      { return a.summary }
func (a *Action) Payload() Payload     { return a.payload }

// Targets returns the affected files in recorded order.
func (a *Action) Targets() []string {
	return append([]string(nil), a.targets...)
}

// Tracks reports whether target is one of the action's files.
func (a *Action) Tracks(target string) bool {
	for _, t := range a.targets {
		if t == target {
			return true
		}
	}
	return false
}

// Before returns the value target had before the action was applied.
func (a *Action) Before(target string) (Value, bool) {
	if !a.Tracks(target) {
		return Value{}, false
	}
	return a.payload.before(target), true
}

// After returns the value target had after the action was applied.
func (a *Action) After(target string) (Value, bool) {
	if !a.Tracks(target) {
		return Value{}, false
	}
	return a.payload.after(target), true
}

// Reverted reports whether the action is currently undone.
func (a *Action) Reverted() bool { return a.state.reverted.Load() }

// State returns the current state machine position.
func (a *Action) State() State {
	if a.Reverted() {
		return StateReverted
	}
	return StateApplied
}

// Transition moves the action to the state `to`, running fn in between. It
// fails with ErrActionBusy if another transition is in flight, with
// ErrAlreadyReverted when undoing a reverted action and with ErrNotReverted
// when redoing an applied one. The flag flips after fn returns, whatever fn
// did to the files.
func (a *Action) Transition(to State, fn func()) error {
	if !a.state.busy.CompareAndSwap(false, true) {
		return errclass.ErrActionBusy.WithMessagef("action %s has an undo or redo in progress", a.id)
	}
	defer a.state.busy.Store(false)

	if a.State() == to {
		if to == StateReverted {
			return errclass.ErrAlreadyReverted.WithMessagef("action %s is already undone", a.id)
		}
		return errclass.ErrNotReverted.WithMessagef("action %s has not been undone", a.id)
	}
	if fn != nil {
		fn()
	}
	a.state.reverted.Store(to == StateReverted)
	return nil
}

// Rebind returns a copy of the action with every target passed through
// rewrite. The copy shares the reverted flag with a. ok is false, and a is
// returned unchanged, when rewrite matched no target.
func (a *Action) Rebind(rewrite func(string) (string, bool)) (*Action, bool) {
	mapping := make(map[string]string, len(a.targets))
	changed := false
	for _, t := range a.targets {
		if nt, ok := rewrite(t); ok && nt != t {
			mapping[t] = nt
			changed = true
		}
	}
	if !changed {
		return a, false
	}

	apply := func(p string) string {
		if np, ok := mapping[p]; ok {
			return np
		}
		return p
	}
	targets := make([]string, 0, len(a.targets))
	seen := make(map[string]struct{}, len(a.targets))
	for _, t := range a.targets {
		nt := apply(t)
		if _, dup := seen[nt]; dup {
			continue
		}
		seen[nt] = struct{}{}
		targets = append(targets, nt)
	}

	cp := *a
	cp.targets = targets
	cp.payload = a.payload.rekey(apply)
	return &cp, true
}

// BlobRefs returns the distinct blob hashes the action references.
func (a *Action) BlobRefs() []HashValue {
	return a.payload.blobRefs()
}

// ActionSummary is the listing form of an action. It never carries blob
// contents.
type ActionSummary struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        Kind      `json:"kind"`
	Files       []string  `json:"files"`
	Field       string    `json:"field,omitempty"`
	Description string    `json:"description"`
	Reverted    bool      `json:"reverted"`
	FileCount   int       `json:"file_count"`
}

// Summarize returns the listing form of the action.
func (a *Action) Summarize() ActionSummary {
	return ActionSummary{
		ID:          a.id,
		Timestamp:   a.timestamp,
		Kind:        a.Kind(),
		Files:       a.Targets(),
		Field:       a.field,
		Description: a.summary,
		Reverted:    a.Reverted(),
		FileCount:   len(a.targets),
	}
}

// maxDetailRows bounds the per-file rows in ActionDetails.
const maxDetailRows = 10

// FileChange is one row of ActionDetails.
type FileChange struct {
	File     string `json:"file"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// ActionDetails extends the summary with per-file values for text kinds or
// artwork presence flags for artwork kinds.
type ActionDetails struct {
	ActionSummary
	Changes   []FileChange `json:"changes,omitempty"`
	MoreFiles int          `json:"more_files,omitempty"`
	HasOldArt *bool        `json:"has_old_art,omitempty"`
	HasNewArt *bool        `json:"has_new_art,omitempty"`
}

// Details builds the detail view shown when an entry is expanded.
func (a *Action) Details() ActionDetails {
	d := ActionDetails{ActionSummary: a.Summarize()}
	if a.Kind().IsArtwork() {
		var hasOld, hasNew bool
		for _, t := range a.targets {
			hasOld = hasOld || !a.payload.before(t).Absent
			hasNew = hasNew || !a.payload.after(t).Absent
		}
		d.HasOldArt = &hasOld
		d.HasNewArt = &hasNew
		return d
	}

	for i, t := range a.targets {
		if i == maxDetailRows {
			d.MoreFiles = len(a.targets) - maxDetailRows
			break
		}
		d.Changes = append(d.Changes, FileChange{
			File:     filepath.Base(t),
			OldValue: a.payload.before(t).Display(),
			NewValue: a.payload.after(t).Display(),
		})
	}
	return d
}

// String implements fmt.Stringer for log output.
func (a *Action) String() string {
	return fmt.Sprintf("%s(%s, %d files)", a.Kind(), a.id, len(a.targets))
}
