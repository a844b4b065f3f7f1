// Package executor replays the before or after values of a recorded action
// against the files through a TagWriter.
//
// Targets are processed one at a time in recorded order. A failing target
// is reported in the result and the batch continues; nothing is rolled back
// or retried. The action's reverted flag flips once the batch is done,
// regardless of how many targets failed.
package executor

import (
	"context"
	"time"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/logging"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/metrics"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/progress"
)

// TagWriter edits the metadata of audio files.
type TagWriter interface {
	WriteField(ctx context.Context, target, field, value string) error
	DeleteField(ctx context.Context, target, field string) error
	WriteArtwork(ctx context.Context, target string, data []byte) error
	RemoveArtwork(ctx context.Context, target string) error
}

// SemanticNameResolver maps a container-specific field identifier to the
// semantic name understood by the TagWriter.
type SemanticNameResolver interface {
	ResolveSemanticName(target, id string) (string, bool)
}

// BlobReader loads stored artwork.
type BlobReader interface {
	Get(h model.HashValue) ([]byte, error)
}

// Operation names used in logs and metrics.
const (
	OpUndo = "undo"
	OpRedo = "redo"
)

// Executor runs undo and redo.
type Executor struct {
	writer   TagWriter
	blobs    BlobReader
	policy   FieldNamePolicy
	logger   *logging.Logger
	metrics  *metrics.Registry
	progress progress.Callback
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithPolicy sets the redo field-name policy. The default is
// ReverseMapPolicy without a resolver, which keeps stored names.
func WithPolicy(p FieldNamePolicy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics attaches a metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithProgress reports every processed target to cb.
func WithProgress(cb progress.Callback) Option {
	return func(e *Executor) { e.progress = cb }
}

// New creates an executor writing through writer and reading artwork from
// blobs.
func New(writer TagWriter, blobs BlobReader, opts ...Option) *Executor {
	e := &Executor{
		writer: writer,
		blobs:  blobs,
		policy: ReverseMapPolicy{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrGlobal(e.logger)
	return e
}

// Undo restores every target's before value. It fails without touching any
// file when the action is already reverted or busy.
func (e *Executor) Undo(ctx context.Context, a *model.Action) (*model.Result, error) {
	return e.run(ctx, a, OpUndo)
}

// Redo reapplies every target's after value. It fails without touching any
// file when the action is not reverted or busy.
func (e *Executor) Redo(ctx context.Context, a *model.Action) (*model.Result, error) {
	return e.run(ctx, a, OpRedo)
}

func (e *Executor) run(ctx context.Context, a *model.Action, op string) (*model.Result, error) {
	if a == nil {
		return nil, errclass.ErrInvalidAction.WithMessage("action must not be nil")
	}
	to := model.StateApplied
	if op == OpUndo {
		to = model.StateReverted
	}

	start := e.now()
	res := &model.Result{}
	err := a.Transition(to, func() {
		targets := a.Targets()
		tracker := progress.New(op, len(targets), e.progress)
		for _, target := range targets {
			if werr := e.applyTarget(ctx, a, target, op == OpUndo); werr != nil {
				res.Errors = append(res.Errors, fileError(target, werr))
				tracker.Step(target, true)
				continue
			}
			res.FilesUpdated++
			tracker.Step(target, false)
		}
	})
	if err != nil {
		e.logger.Debug(op+" rejected", map[string]any{"action_id": a.ID(), "error": err.Error()})
		return nil, err
	}

	res.Status = model.DeriveStatus(res.FilesUpdated, len(res.Errors))
	res.Action = a.Summarize()
	duration := e.now().Sub(start)
	e.metrics.RecordReversal(op, res, duration)

	fields := map[string]any{
		"action_id":     a.ID(),
		"kind":          string(a.Kind()),
		"status":        string(res.Status),
		"files_updated": res.FilesUpdated,
		"files_failed":  len(res.Errors),
		"duration_ms":   duration.Milliseconds(),
	}
	if len(res.Errors) > 0 {
		e.logger.Warn(op+" completed with errors", fields)
	} else {
		e.logger.Info(op+" completed", fields)
	}
	return res, nil
}

func (e *Executor) applyTarget(ctx context.Context, a *model.Action, target string, undo bool) error {
	var v model.Value
	if undo {
		v, _ = a.Before(target)
	} else {
		v, _ = a.After(target)
	}
	kind := a.Kind()
	field := a.Field()

	switch {
	case kind.IsArtwork():
		if v.Absent {
			return e.writer.RemoveArtwork(ctx, target)
		}
		if e.blobs == nil {
			return errclass.ErrBlobMissing.WithMessage("no blob store configured")
		}
		data, err := e.blobs.Get(v.Blob)
		if err != nil {
			return err
		}
		return e.writer.WriteArtwork(ctx, target, data)

	case kind == model.KindFieldCreate || kind == model.KindBatchFieldCreate:
		if undo {
			return e.writer.DeleteField(ctx, target, field)
		}
		return e.writer.WriteField(ctx, target, e.policy.RedoCreateName(target, field), v.Text)

	case kind == model.KindFieldDelete || kind == model.KindBatchFieldDelete:
		if undo {
			return e.writer.WriteField(ctx, target, field, v.Text)
		}
		return e.writer.DeleteField(ctx, target, field)

	default:
		return e.writer.WriteField(ctx, target, field, v.Text)
	}
}

func fileError(target string, err error) model.FileError {
	code := errclass.Code(err)
	if code == "" {
		code = errclass.ErrWriteFailed.Code
	}
	return model.FileError{Target: target, Code: code, Message: err.Error()}
}
