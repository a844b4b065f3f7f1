package history

import (
	"context"
	"fmt"
	"time"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/action"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/actionlog"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/audit"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/blob"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/executor"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/gc"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/tagmap"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/config"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/logging"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/metrics"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/progress"
)

// Options configures Open.
type Options struct {
	Config   *config.Config                // nil means config.Default()
	Writer   executor.TagWriter            // required
	Resolver executor.SemanticNameResolver // nil means the built-in ID3 frame map
	Logger   *logging.Logger               // nil means the global logger
	Metrics  *metrics.Registry             // nil builds one when metrics are enabled
	Clock    func() time.Time              // nil means time.Now
	IDs      func() string                 // nil means UUIDv7
	Progress progress.Callback             // per-file undo and redo progress
}

// GCOptions configures garbage collection of orphaned artwork.
type GCOptions struct {
	DryRun bool
}

// GCReport describes a garbage collection pass.
type GCReport struct {
	PlanID         string            `json:"plan_id"`
	DryRun         bool              `json:"dry_run"`
	Candidates     []model.HashValue `json:"candidates"`
	Deleted        []model.HashValue `json:"deleted"`
	BytesReclaimed int64             `json:"bytes_reclaimed"`
	Protected      int               `json:"protected"`
}

// Engine records metadata mutations and reverses them on request.
type Engine struct {
	cfg       *config.Config
	blobs     *blob.Cache
	log       *actionlog.Log
	factory   *action.Factory
	exec      *executor.Executor
	collector *gc.Collector
	journal   *audit.FileAppender
	logger    *logging.Logger
	metrics   *metrics.Registry
}

// Open creates an engine with an empty history.
func Open(opts Options) (*Engine, error) {
	if opts.Writer == nil {
		return nil, errclass.ErrConfigInvalid.WithMessage("a tag writer is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.OrGlobal(opts.Logger)
	reg := opts.Metrics
	if reg == nil && cfg.Metrics.Enabled {
		reg = metrics.NewRegistry(cfg.Metrics.Namespace)
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = tagmap.Resolver{}
	}
	policy, err := executor.PolicyFor(cfg.FieldNames.Policy, resolver)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.Open(cfg.History.BlobDir, blob.WithLogger(logger), blob.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("open blob cache: %w", err)
	}

	logOpts := []actionlog.Option{
		actionlog.WithMaxItems(cfg.History.MaxItems),
		actionlog.WithLogger(logger),
		actionlog.WithMetrics(reg),
	}
	var journal *audit.FileAppender
	if cfg.Audit.Path != "" {
		journal = audit.NewFileAppender(cfg.Audit.Path)
		logOpts = append(logOpts, actionlog.WithJournal(journal))
	}
	hlog := actionlog.New(blobs, logOpts...)

	factoryOpts := []action.Option{action.WithClock(now)}
	if opts.IDs != nil {
		factoryOpts = append(factoryOpts, action.WithIDGenerator(opts.IDs))
	}

	e := &Engine{
		cfg:     cfg,
		blobs:   blobs,
		log:     hlog,
		factory: action.NewFactory(blobs, factoryOpts...),
		exec: executor.New(opts.Writer, blobs,
			executor.WithPolicy(policy),
			executor.WithLogger(logger),
			executor.WithMetrics(reg),
			executor.WithProgress(opts.Progress)),
		collector: gc.NewCollector(hlog, blobs, cfg.History.OrphanGrace,
			gc.WithClock(now),
			gc.WithLogger(logger),
			gc.WithMetrics(reg)),
		journal: journal,
		logger:  logger,
		metrics: reg,
	}

	logger.Debug("history engine opened", map[string]any{
		"max_items":    cfg.History.MaxItems,
		"blob_dir":     blobs.Dir(),
		"field_policy": cfg.FieldNames.Policy,
	})
	return e, nil
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Factory builds actions whose artwork is stored in this engine's cache.
func (e *Engine) Factory() *action.Factory { return e.factory }

// Metrics returns the registry, or nil when metrics are disabled.
func (e *Engine) Metrics() *metrics.Registry { return e.metrics }

// Record adds a to the history. The oldest action is evicted when the
// history is full.
func (e *Engine) Record(a *model.Action) error {
	return e.log.Add(a)
}

// ListActions returns summaries oldest first.
func (e *Engine) ListActions() []model.ActionSummary {
	return e.log.List()
}

// RecentActions returns summaries newest first.
func (e *Engine) RecentActions() []model.ActionSummary {
	return e.log.Recent()
}

// Len returns the number of held actions.
func (e *Engine) Len() int { return e.log.Len() }

// Action returns the action with id.
func (e *Engine) Action(id string) (*model.Action, error) {
	return e.log.Get(id)
}

// GetAction returns the detail view of the action with id.
func (e *Engine) GetAction(id string) (*model.ActionDetails, error) {
	a, err := e.log.Get(id)
	if err != nil {
		return nil, err
	}
	d := a.Details()
	return &d, nil
}

// Undo restores the before values of the action with id.
func (e *Engine) Undo(ctx context.Context, id string) (*model.Result, error) {
	return e.reverse(ctx, id, model.EventTypeUndo)
}

// Redo reapplies the after values of the action with id.
func (e *Engine) Redo(ctx context.Context, id string) (*model.Result, error) {
	return e.reverse(ctx, id, model.EventTypeRedo)
}

func (e *Engine) reverse(ctx context.Context, id string, event model.AuditEventType) (*model.Result, error) {
	a, err := e.log.Get(id)
	if err != nil {
		return nil, err
	}

	var res *model.Result
	if event == model.EventTypeUndo {
		res, err = e.exec.Undo(ctx, a)
	} else {
		res, err = e.exec.Redo(ctx, a)
	}
	if err != nil {
		return nil, err
	}

	e.log.Record(event, a, map[string]any{
		"status":        string(res.Status),
		"files_updated": res.FilesUpdated,
		"files_failed":  len(res.Errors),
	})
	return res, nil
}

// Clear drops the whole history and its artwork.
func (e *Engine) Clear() error {
	return e.log.Clear()
}

// NotifyRename rewrites references from oldPath to newPath. oldPath may be
// a file or a folder. It returns how many actions changed.
func (e *Engine) NotifyRename(oldPath, newPath string) (int, error) {
	return e.log.Rebind(oldPath, newPath)
}

// GC removes stored artwork that no held action references and that has
// been unpinned for longer than the configured grace period.
func (e *Engine) GC(_ context.Context, opts GCOptions) (*GCReport, error) {
	plan := e.collector.Plan()
	report := &GCReport{
		PlanID:     plan.PlanID,
		DryRun:     opts.DryRun,
		Candidates: plan.ToDelete,
		Protected:  plan.Protected,
	}
	if opts.DryRun {
		report.BytesReclaimed = plan.EstimatedBytes
		return report, nil
	}
	res := e.collector.Run(plan)
	report.Deleted = res.Deleted
	report.BytesReclaimed = res.BytesReclaimed
	return report, nil
}

// VerifyJournal checks the audit journal's hash chain and returns the
// number of records. It fails when no journal is configured.
func (e *Engine) VerifyJournal() (int, error) {
	if e.journal == nil {
		return 0, errclass.ErrConfigInvalid.WithMessage("audit journal is not enabled")
	}
	return e.journal.Verify()
}

// Close drops the history and releases the blob cache. A private blob
// directory is removed.
func (e *Engine) Close() error {
	if err := e.log.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	e.logger.Debug("history engine closed")
	return nil
}
