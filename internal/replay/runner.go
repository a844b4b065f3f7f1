package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/action"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/memtags"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/history"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/pathutil"
)

// StepResult reports one executed step. Error is set when the step was
// rejected; the session continues.
type StepResult struct {
	Step     int               `json:"step"`
	Op       string            `json:"op"`
	ActionID string            `json:"action_id,omitempty"`
	Summary  string            `json:"summary,omitempty"`
	Result   *model.Result     `json:"result,omitempty"`
	Count    int               `json:"count,omitempty"`
	GC       *history.GCReport `json:"gc,omitempty"`
	Code     string            `json:"code,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Runner executes scripts against one engine and store.
type Runner struct {
	eng     *history.Engine
	store   *memtags.Store
	actions map[int]string
}

// NewRunner returns a runner editing store and recording into eng.
func NewRunner(eng *history.Engine, store *memtags.Store) *Runner {
	return &Runner{eng: eng, store: store, actions: make(map[int]string)}
}

// Run seeds the script's files and executes its steps in order. It stops
// only on errors that make the rest of the script meaningless.
func (r *Runner) Run(ctx context.Context, s *Script) ([]StepResult, error) {
	for path, f := range s.Files {
		if err := pathutil.ValidateTarget(path); err != nil {
			return nil, err
		}
		var art []byte
		if f.Art != "" {
			art = []byte(f.Art)
		}
		r.store.Put(path, f.Fields, art)
	}

	results := make([]StepResult, 0, len(s.Steps))
	for i, st := range s.Steps {
		index := i + 1
		res := StepResult{Step: index, Op: st.Op}
		if err := r.step(ctx, index, st, &res); err != nil {
			var he *errclass.HistoryError
			if !errors.As(err, &he) {
				return results, fmt.Errorf("step %d (%s): %w", index, st.Op, err)
			}
			res.Code = he.Code
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) step(ctx context.Context, index int, st Step, res *StepResult) error {
	f := r.eng.Factory()
	switch st.Op {
	case OpUndo, OpRedo:
		id, ok := r.actions[st.Ref]
		if !ok {
			return errclass.ErrInvalidAction.WithMessagef("step %d recorded no action", st.Ref)
		}
		res.ActionID = id
		var out *model.Result
		var err error
		if st.Op == OpUndo {
			out, err = r.eng.Undo(ctx, id)
		} else {
			out, err = r.eng.Redo(ctx, id)
		}
		if err != nil {
			return err
		}
		res.Result = out
		return nil

	case OpRename:
		if _, err := r.store.Rename(st.From, st.To); err != nil {
			return err
		}
		n, err := r.eng.NotifyRename(st.From, st.To)
		res.Count = n
		return err

	case OpFail:
		msg := st.Message
		if msg == "" {
			msg = "injected failure"
		}
		r.store.FailOn(st.File, errors.New(msg))
		return nil

	case OpRecover:
		r.store.Recover(st.File)
		return nil

	case OpGC:
		report, err := r.eng.GC(ctx, history.GCOptions{})
		res.GC = report
		return err

	case OpClearHistory:
		clear(r.actions)
		return r.eng.Clear()
	}

	a, err := r.mutate(ctx, f, st)
	if err != nil {
		return err
	}
	if err := r.eng.Record(a); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	r.actions[index] = a.ID()
	res.ActionID = a.ID()
	res.Summary = a.Summary()
	return nil
}

// mutate edits the store and describes the edit as an action.
func (r *Runner) mutate(ctx context.Context, f *action.Factory, st Step) (*model.Action, error) {
	switch st.Op {
	case OpSet:
		old, _ := r.store.Field(st.File, st.Field)
		if err := r.write(ctx, st.File, st.Field, st.Value); err != nil {
			return nil, err
		}
		return f.ValueChange(st.File, st.Field, old, st.Value)

	case OpClear:
		old, _ := r.store.Field(st.File, st.Field)
		a, err := f.ClearField(st.File, st.Field, old)
		if err != nil {
			return nil, err
		}
		if err := r.write(ctx, st.File, st.Field, ""); err != nil {
			return nil, err
		}
		return a, nil

	case OpCreateField:
		if _, exists := r.store.Field(st.File, st.Field); exists {
			return nil, errclass.ErrInvalidAction.WithMessagef("%s already has %s", st.File, st.Field)
		}
		if err := r.write(ctx, st.File, st.Field, st.Value); err != nil {
			return nil, err
		}
		return f.FieldCreate(st.File, st.Field, st.Value)

	case OpDeleteField:
		old, ok := r.store.Field(st.File, st.Field)
		if !ok {
			return nil, errclass.ErrInvalidAction.WithMessagef("%s has no %s", st.File, st.Field)
		}
		if err := r.store.DeleteField(ctx, st.File, st.Field); err != nil {
			return nil, errclass.ErrWriteFailed.WithMessage(err.Error())
		}
		return f.FieldDelete(st.File, st.Field, old)

	case OpSetArt:
		old := r.store.Artwork(st.File)
		if err := r.store.WriteArtwork(ctx, st.File, []byte(st.Art)); err != nil {
			return nil, errclass.ErrWriteFailed.WithMessage(err.Error())
		}
		return f.ArtworkChange(st.File, old, []byte(st.Art))

	case OpRemoveArt:
		old := r.store.Artwork(st.File)
		if len(old) == 0 {
			return nil, errclass.ErrInvalidAction.WithMessagef("%s has no artwork", st.File)
		}
		if err := r.store.RemoveArtwork(ctx, st.File); err != nil {
			return nil, errclass.ErrWriteFailed.WithMessage(err.Error())
		}
		return f.ArtworkDelete(st.File, old)

	case OpBatchSet:
		var changes []action.Change
		for _, p := range r.filesIn(st.Folder) {
			old, _ := r.store.Field(p, st.Field)
			if r.write(ctx, p, st.Field, st.Value) == nil {
				changes = append(changes, action.Change{Target: p, Old: old, New: st.Value})
			}
		}
		if len(changes) == 0 {
			return nil, errclass.ErrWriteFailed.WithMessagef("no file in %s was updated", st.Folder)
		}
		return f.BatchValueChange(st.Folder, st.Field, st.Value, changes)

	case OpBatchArt:
		var changes []action.ArtChange
		for _, p := range r.filesIn(st.Folder) {
			old := r.store.Artwork(p)
			if r.store.WriteArtwork(ctx, p, []byte(st.Art)) == nil {
				changes = append(changes, action.ArtChange{Target: p, Old: old})
			}
		}
		if len(changes) == 0 {
			return nil, errclass.ErrWriteFailed.WithMessagef("no file in %s was updated", st.Folder)
		}
		return f.BatchArtworkChange(st.Folder, []byte(st.Art), changes)

	case OpBatchDelete:
		var changes []action.Change
		for _, p := range r.filesIn(st.Folder) {
			old, ok := r.store.Field(p, st.Field)
			if !ok {
				continue
			}
			if r.store.DeleteField(ctx, p, st.Field) == nil {
				changes = append(changes, action.Change{Target: p, Old: old})
			}
		}
		if len(changes) == 0 {
			return nil, errclass.ErrWriteFailed.WithMessagef("no file in %s had %s removed", st.Folder, st.Field)
		}
		return f.BatchFieldDelete(st.Folder, st.Field, changes)

	case OpBatchCreate:
		var changes []action.Change
		for _, p := range st.Files {
			if r.write(ctx, p, st.Field, st.Value) == nil {
				changes = append(changes, action.Change{Target: p, New: st.Value})
			}
		}
		if len(changes) == 0 {
			return nil, errclass.ErrWriteFailed.WithMessagef("no file was given %s", st.Field)
		}
		return f.BatchFieldCreate(st.Field, changes)
	}
	return nil, errclass.ErrInvalidAction.WithMessagef("unknown op %q", st.Op)
}

func (r *Runner) write(ctx context.Context, path, field, value string) error {
	if err := r.store.WriteField(ctx, path, field, value); err != nil {
		return errclass.ErrWriteFailed.WithMessage(err.Error())
	}
	return nil
}

// filesIn lists stored files anywhere below folder.
func (r *Runner) filesIn(folder string) []string {
	prefix := pathutil.DirPrefix(folder)
	var out []string
	for _, p := range r.store.Paths() {
		if strings.HasPrefix(pathutil.Normalize(p), prefix) {
			out = append(out, p)
		}
	}
	return out
}
