// Package actionlog holds recorded actions in chronological order, bounded
// by a FIFO capacity, and owns the lifetime of the blobs they reference.
//
// Writers (Add, Clear, Rebind) serialize on a single mutex. After every
// write the log publishes copy-on-write B-tree snapshots through an atomic
// pointer; readers (Get, List, Recent, Len) load that pointer and never
// wait for a writer.
package actionlog

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/btree"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/rebind"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/config"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/logging"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/metrics"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/pathutil"
)

var errClosed = errors.New("history log closed")

// BlobStore is the blob cache surface the log drives.
type BlobStore interface {
	Unpin(h model.HashValue)
	Release(h model.HashValue) (bool, error)
	Wipe() error
	Close() error
	Len() int
	Size() int64
}

// Journal receives history events. *audit.FileAppender implements it.
type Journal interface {
	Append(eventType model.AuditEventType, actionID string, kind model.Kind, details map[string]any) error
}

// snapshot is an immutable view published to readers.
type snapshot struct {
	order *btree.Map[uint64, *model.Action]
	byID  *btree.Map[string, *model.Action]
}

// Log is the bounded action history.
type Log struct {
	maxItems int
	blobs    BlobStore
	logger   *logging.Logger
	metrics  *metrics.Registry
	journal  Journal

	mu     sync.Mutex
	closed bool
	seq    uint64
	order  *btree.Map[uint64, *model.Action]
	byID   *btree.Map[string, *model.Action]
	paths  *btree.Map[string, map[uint64]struct{}]
	refs   map[model.HashValue]int

	published atomic.Pointer[snapshot]
}

// Option configures a Log.
type Option func(*Log)

// WithMaxItems sets the capacity. Values below one are ignored.
func WithMaxItems(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxItems = n
		}
	}
}

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(lg *logging.Logger) Option {
	return func(l *Log) { l.logger = lg }
}

// WithMetrics attaches a metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(l *Log) { l.metrics = m }
}

// WithJournal records history events to j.
func WithJournal(j Journal) Option {
	return func(l *Log) { l.journal = j }
}

// New creates an empty log whose artwork lives in blobs.
func New(blobs BlobStore, opts ...Option) *Log {
	l := &Log{
		maxItems: config.DefaultMaxItems,
		blobs:    blobs,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrGlobal(l.logger)
	l.resetLocked()
	l.publishLocked()
	return l
}

func (l *Log) resetLocked() {
	l.order = btree.NewMap[uint64, *model.Action](0)
	l.byID = btree.NewMap[string, *model.Action](0)
	l.paths = btree.NewMap[string, map[uint64]struct{}](0)
	l.refs = make(map[model.HashValue]int)
}

func (l *Log) publishLocked() {
	l.published.Store(&snapshot{
		order: l.order.Copy(),
		byID:  l.byID.Copy(),
	})
}

// MaxItems returns the capacity.
func (l *Log) MaxItems() int { return l.maxItems }

// Add appends a to the history. When the log grows past capacity the single
// oldest action is evicted and blobs only it referenced are released.
func (l *Log) Add(a *model.Action) error {
	if a == nil {
		return errclass.ErrInvalidAction.WithMessage("action must not be nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errClosed
	}
	if _, dup := l.byID.Get(a.ID()); dup {
		return errclass.ErrInvalidAction.WithMessagef("action %s already recorded", a.ID())
	}

	l.seq++
	l.insertLocked(l.seq, a)
	for _, h := range a.BlobRefs() {
		l.refs[h]++
		if l.blobs != nil {
			l.blobs.Unpin(h)
		}
	}

	var evicted *model.Action
	if l.order.Len() > l.maxItems {
		evicted = l.evictOldestLocked()
	}
	l.publishLocked()

	size := l.order.Len()
	l.metrics.RecordAdd(a.Kind(), size)
	l.updateBlobStatsLocked()
	l.logger.Debug("action recorded", map[string]any{
		"action_id": a.ID(),
		"kind":      string(a.Kind()),
		"files":     len(a.Targets()),
		"size":      size,
	})
	l.journalLocked(model.EventTypeRecord, a, map[string]any{
		"files":   len(a.Targets()),
		"field":   a.Field(),
		"summary": a.Summary(),
	})
	if evicted != nil {
		l.journalLocked(model.EventTypeEvict, evicted, nil)
	}
	return nil
}

func (l *Log) insertLocked(seq uint64, a *model.Action) {
	l.order.Set(seq, a)
	l.byID.Set(a.ID(), a)
	for _, t := range a.Targets() {
		key := pathutil.Normalize(t)
		set, ok := l.paths.Get(key)
		if !ok {
			set = make(map[uint64]struct{})
			l.paths.Set(key, set)
		}
		set[seq] = struct{}{}
	}
}

func (l *Log) removeLocked(seq uint64, a *model.Action) {
	l.order.Delete(seq)
	l.byID.Delete(a.ID())
	l.unindexLocked(seq, a)
}

func (l *Log) unindexLocked(seq uint64, a *model.Action) {
	for _, t := range a.Targets() {
		key := pathutil.Normalize(t)
		set, ok := l.paths.Get(key)
		if !ok {
			continue
		}
		delete(set, seq)
		if len(set) == 0 {
			l.paths.Delete(key)
		}
	}
}

func (l *Log) evictOldestLocked() *model.Action {
	seq, oldest, ok := l.order.Min()
	if !ok {
		return nil
	}
	l.removeLocked(seq, oldest)

	released := 0
	for _, h := range oldest.BlobRefs() {
		l.refs[h]--
		if l.refs[h] > 0 {
			continue
		}
		delete(l.refs, h)
		if l.blobs == nil {
			continue
		}
		removed, err := l.blobs.Release(h)
		if err != nil {
			l.logger.Warn("failed to release blob", map[string]any{"hash": string(h), "error": err.Error()})
			continue
		}
		if removed {
			released++
		}
	}

	l.metrics.RecordEviction()
	l.logger.Debug("action evicted", map[string]any{
		"action_id":      oldest.ID(),
		"blobs_released": released,
	})
	return oldest
}

// Get returns the action with id.
func (l *Log) Get(id string) (*model.Action, error) {
	a, ok := l.published.Load().byID.Get(id)
	if !ok {
		return nil, errclass.ErrActionNotFound.WithMessagef("action %s not found", id)
	}
	return a, nil
}

// Len returns the number of held actions.
func (l *Log) Len() int {
	return l.published.Load().order.Len()
}

// List returns summaries oldest first.
func (l *Log) List() []model.ActionSummary {
	snap := l.published.Load()
	out := make([]model.ActionSummary, 0, snap.order.Len())
	snap.order.Scan(func(_ uint64, a *model.Action) bool {
		out = append(out, a.Summarize())
		return true
	})
	return out
}

// Recent returns summaries newest first.
func (l *Log) Recent() []model.ActionSummary {
	snap := l.published.Load()
	out := make([]model.ActionSummary, 0, snap.order.Len())
	snap.order.Reverse(func(_ uint64, a *model.Action) bool {
		out = append(out, a.Summarize())
		return true
	})
	return out
}

// Actions returns the held actions oldest first.
func (l *Log) Actions() []*model.Action {
	snap := l.published.Load()
	return snap.order.Values()
}

// Clear drops every action and wipes the blob cache.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errClosed
	}
	return l.clearLocked()
}

func (l *Log) clearLocked() error {
	n := l.order.Len()
	l.resetLocked()
	l.publishLocked()

	var err error
	if l.blobs != nil {
		err = l.blobs.Wipe()
	}
	l.metrics.RecordClear()
	l.updateBlobStatsLocked()
	l.logger.Info("history cleared", map[string]any{"actions": n})
	l.journalLocked(model.EventTypeClear, nil, map[string]any{"actions": n})
	return err
}

// Rebind rewrites the file references of every action that touches oldPath
// or anything inside it, and returns how many actions changed.
func (l *Log) Rebind(oldPath, newPath string) (int, error) {
	rb, err := rebind.New(oldPath, newPath)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, errClosed
	}
	if rb.Noop() {
		return 0, nil
	}

	affected := make(map[uint64]struct{})
	collect := func(set map[uint64]struct{}) {
		for seq := range set {
			affected[seq] = struct{}{}
		}
	}
	if set, ok := l.paths.Get(rb.From()); ok {
		collect(set)
	}
	prefix := rb.FolderPrefix()
	l.paths.Ascend(prefix, func(key string, set map[uint64]struct{}) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		collect(set)
		return true
	})

	rewritten := 0
	for seq := range affected {
		old, ok := l.order.Get(seq)
		if !ok {
			continue
		}
		updated, changed := rb.Apply(old)
		if !changed {
			continue
		}
		l.unindexLocked(seq, old)
		l.insertLocked(seq, updated)
		rewritten++
	}
	if rewritten > 0 {
		l.publishLocked()
	}

	l.metrics.RecordRebind(rewritten)
	l.logger.Info("updated file references", map[string]any{
		"old":     rb.From(),
		"new":     rb.To(),
		"actions": rewritten,
	})
	l.journalLocked(model.EventTypeRebind, nil, map[string]any{
		"old":     rb.From(),
		"new":     rb.To(),
		"actions": rewritten,
	})
	return rewritten, nil
}

// InspectRefs runs fn under the writer lock with a lookup reporting whether
// a blob is referenced by any held action. Nothing can record, evict or
// clear while fn runs.
func (l *Log) InspectRefs(fn func(referenced func(model.HashValue) bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(func(h model.HashValue) bool { return l.refs[h] > 0 })
	l.updateBlobStatsLocked()
}

// RefCount returns the number of held actions referencing h.
func (l *Log) RefCount(h model.HashValue) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs[h]
}

// Close clears the history and closes the blob cache. Further writes fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	err := l.clearLocked()
	l.closed = true
	if l.blobs != nil {
		err = errors.Join(err, l.blobs.Close())
	}
	return err
}

// Record journals an event on behalf of a collaborator such as the
// executor. It is a no-op without a journal.
func (l *Log) Record(eventType model.AuditEventType, a *model.Action, details map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journalLocked(eventType, a, details)
}

func (l *Log) journalLocked(eventType model.AuditEventType, a *model.Action, details map[string]any) {
	if l.journal == nil {
		return
	}
	var id string
	var kind model.Kind
	if a != nil {
		id, kind = a.ID(), a.Kind()
	}
	if err := l.journal.Append(eventType, id, kind, details); err != nil {
		l.logger.Warn("failed to append audit record", map[string]any{
			"event": string(eventType),
			"error": err.Error(),
		})
	}
}

func (l *Log) updateBlobStatsLocked() {
	if l.blobs == nil || l.metrics == nil {
		return
	}
	l.metrics.SetBlobStats(l.blobs.Len(), l.blobs.Size())
}
