// Package gc reclaims artwork blobs that no recorded action references, such
// as the blobs of actions that were built but never recorded, or leftovers
// from a previous process sharing a configured blob directory.
package gc

import (
	"time"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/blob"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/logging"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/metrics"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/uuidutil"
)

// RefInspector exposes live blob references under the history's writer
// lock. *actionlog.Log implements it.
type RefInspector interface {
	InspectRefs(fn func(referenced func(model.HashValue) bool))
}

// Store is the blob cache surface the collector needs.
type Store interface {
	Entries() []blob.Entry
	Remove(h model.HashValue) error
}

// Plan lists blobs eligible for removal at CreatedAt.
type Plan struct {
	PlanID         string            `json:"plan_id"`
	CreatedAt      time.Time         `json:"created_at"`
	ToDelete       []model.HashValue `json:"to_delete"`
	EstimatedBytes int64             `json:"estimated_bytes"`
	Protected      int               `json:"protected"`
}

// Result reports what Run removed.
type Result struct {
	PlanID         string            `json:"plan_id"`
	Deleted        []model.HashValue `json:"deleted"`
	Skipped        []model.HashValue `json:"skipped,omitempty"`
	BytesReclaimed int64             `json:"bytes_reclaimed"`
}

// Collector plans and runs blob garbage collection.
type Collector struct {
	refs    RefInspector
	store   Store
	grace   time.Duration
	now     func() time.Time
	logger  *logging.Logger
	metrics *metrics.Registry
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// WithMetrics attaches a metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Collector) { c.metrics = m }
}

// NewCollector creates a collector. A pinned blob is protected until it has
// been pinned for longer than grace.
func NewCollector(refs RefInspector, store Store, grace time.Duration, opts ...Option) *Collector {
	c := &Collector{refs: refs, store: store, grace: grace, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrGlobal(c.logger)
	return c
}

// Plan computes the blobs that are currently collectable.
func (c *Collector) Plan() *Plan {
	plan := &Plan{
		PlanID:    uuidutil.NewV7(),
		CreatedAt: c.now().UTC(),
	}
	c.refs.InspectRefs(func(referenced func(model.HashValue) bool) {
		for _, e := range c.store.Entries() {
			if c.protected(e, referenced) {
				plan.Protected++
				continue
			}
			plan.ToDelete = append(plan.ToDelete, e.Hash)
			plan.EstimatedBytes += e.Size
		}
	})
	return plan
}

// Run executes plan. Each blob is revalidated under the history lock and
// skipped if it became protected after planning.
func (c *Collector) Run(plan *Plan) *Result {
	res := &Result{PlanID: plan.PlanID}
	c.refs.InspectRefs(func(referenced func(model.HashValue) bool) {
		current := make(map[model.HashValue]blob.Entry)
		for _, e := range c.store.Entries() {
			current[e.Hash] = e
		}
		for _, h := range plan.ToDelete {
			e, ok := current[h]
			if !ok {
				continue
			}
			if c.protected(e, referenced) {
				res.Skipped = append(res.Skipped, h)
				continue
			}
			if err := c.store.Remove(h); err != nil {
				c.logger.Warn("failed to remove blob", map[string]any{"hash": string(h), "error": err.Error()})
				continue
			}
			res.Deleted = append(res.Deleted, h)
			res.BytesReclaimed += e.Size
		}
	})

	c.metrics.RecordGC(len(res.Deleted), res.BytesReclaimed)
	c.logger.Info("blob gc finished", map[string]any{
		"plan_id": plan.PlanID,
		"deleted": len(res.Deleted),
		"skipped": len(res.Skipped),
		"bytes":   res.BytesReclaimed,
	})
	return res
}

// Collect plans and runs in one step.
func (c *Collector) Collect() *Result {
	return c.Run(c.Plan())
}

func (c *Collector) protected(e blob.Entry, referenced func(model.HashValue) bool) bool {
	if referenced(e.Hash) {
		return true
	}
	return e.Pins > 0 && c.now().Sub(e.PinnedAt) < c.grace
}
