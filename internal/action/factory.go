// Package action builds history actions from the values a mutation handler
// observed before and after editing a file.
package action

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/pathutil"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/uuidutil"
)

// BlankSentinel is the single space some tag formats need to represent an
// intentionally empty value. It counts as empty for decisions and summaries.
const BlankSentinel = " "

// maxSummaryValue is the rune length above which summary values are cut.
const maxSummaryValue = 60

// BlobStore is the part of the blob cache the factory needs.
type BlobStore interface {
	Put(data []byte) (model.HashValue, error)
	Unpin(h model.HashValue)
}

// Change is one file's before/after text in a batch.
type Change struct {
	Target string
	Old    string
	New    string
}

// ArtChange is one file's previous artwork in a batch. Old is nil when the
// file had none.
type ArtChange struct {
	Target string
	Old    []byte
}

// Factory constructs actions. It is safe for concurrent use.
type Factory struct {
	blobs BlobStore
	newID func() string
	now   func() time.Time
}

// Option configures a Factory.
type Option func(*Factory)

// WithIDGenerator replaces the UUIDv7 generator.
func WithIDGenerator(fn func() string) Option {
	return func(f *Factory) { f.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(f *Factory) { f.now = fn }
}

// NewFactory creates a factory storing artwork in blobs.
func NewFactory(blobs BlobStore, opts ...Option) *Factory {
	f := &Factory{
		blobs: blobs,
		newID: uuidutil.NewV7,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ValueChange records a field edit. When the new value is blank and the old
// one is not, the action is recorded as a clear.
func (f *Factory) ValueChange(target, field, oldValue, newValue string) (*model.Action, error) {
	if blank(newValue) && !blank(oldValue) {
		return f.clearField(target, field, oldValue, newValue)
	}
	name := pathutil.DisplayName(target)
	summary := fmt.Sprintf("Changed %s in %s", field, quote(name))
	switch {
	case !blank(oldValue) && !blank(newValue):
		summary += fmt.Sprintf(" from %s to %s", quote(oldValue), quote(newValue))
	case !blank(newValue):
		summary += " to " + quote(newValue)
	}
	return f.single(target, field, summary, model.ValueChange{Old: oldValue, New: newValue})
}

// ClearField records emptying a field that held a value.
func (f *Factory) ClearField(target, field, oldValue string) (*model.Action, error) {
	return f.clearField(target, field, oldValue, "")
}

func (f *Factory) clearField(target, field, oldValue, newValue string) (*model.Action, error) {
	if blank(oldValue) {
		return nil, errclass.ErrInvalidAction.WithMessagef("clearing %s needs a previous value", field)
	}
	summary := fmt.Sprintf("Cleared %s in %s (was %s)", field, quote(pathutil.DisplayName(target)), quote(oldValue))
	return f.single(target, field, summary, model.ClearField{Old: oldValue, New: newValue})
}

// FieldDelete records removal of a field.
func (f *Factory) FieldDelete(target, field, oldValue string) (*model.Action, error) {
	summary := fmt.Sprintf("Deleted %s from %s", field, quote(pathutil.DisplayName(target)))
	if !blank(oldValue) {
		summary += fmt.Sprintf(" (was %s)", quote(oldValue))
	}
	return f.single(target, field, summary, model.FieldDelete{Old: oldValue})
}

// FieldCreate records creation of a new field.
func (f *Factory) FieldCreate(target, field, value string) (*model.Action, error) {
	summary := fmt.Sprintf("Created field '%s' in %s", field, quote(pathutil.DisplayName(target)))
	if !blank(value) {
		summary += " with value " + quote(value)
	}
	return f.single(target, field, summary, model.FieldCreate{New: value})
}

// ArtworkChange records replacing a file's artwork. Either side may be empty
// to mean "no artwork", but not both.
func (f *Factory) ArtworkChange(target string, oldArt, newArt []byte) (*model.Action, error) {
	if len(oldArt) == 0 && len(newArt) == 0 {
		return nil, errclass.ErrInvalidAction.WithMessage("artwork change needs old or new artwork")
	}
	refs := f.newRefs()
	oldRef, err := refs.put(oldArt)
	if err != nil {
		return nil, err
	}
	newRef, err := refs.put(newArt)
	if err != nil {
		refs.abort()
		return nil, err
	}
	summary := fmt.Sprintf("Changed album art in %s", quote(pathutil.DisplayName(target)))
	a, err := f.single(target, model.ArtworkField, summary, model.ArtworkChange{Old: oldRef, New: newRef})
	if err != nil {
		refs.abort()
	}
	return a, err
}

// ArtworkDelete records removing a file's artwork.
func (f *Factory) ArtworkDelete(target string, oldArt []byte) (*model.Action, error) {
	if len(oldArt) == 0 {
		return nil, errclass.ErrInvalidAction.WithMessage("artwork delete needs the removed artwork")
	}
	refs := f.newRefs()
	oldRef, err := refs.put(oldArt)
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("Deleted album art from %s", quote(pathutil.DisplayName(target)))
	a, err := f.single(target, model.ArtworkField, summary, model.ArtworkDelete{Old: oldRef})
	if err != nil {
		refs.abort()
	}
	return a, err
}

// BatchValueChange records setting field to value across a folder.
func (f *Factory) BatchValueChange(folder, field, value string, changes []Change) (*model.Action, error) {
	targets, err := changeTargets(changes)
	if err != nil {
		return nil, err
	}
	pairs := make(map[string]model.TextPair, len(changes))
	for _, c := range changes {
		pairs[c.Target] = model.TextPair{Old: c.Old, New: c.New}
	}
	summary := fmt.Sprintf("Changed %s to %s for %d files in %s",
		field, quote(value), len(changes), quote(pathutil.DisplayName(folder)))
	return f.build(targets, field, summary, model.BatchValueChange{Changes: pairs})
}

// BatchArtworkChange records applying art to every file in a folder.
func (f *Factory) BatchArtworkChange(folder string, art []byte, changes []ArtChange) (*model.Action, error) {
	if len(art) == 0 {
		return nil, errclass.ErrInvalidAction.WithMessage("batch artwork change needs new artwork")
	}
	targets := make([]string, 0, len(changes))
	for _, c := range changes {
		targets = append(targets, c.Target)
	}
	if err := validateTargets(targets); err != nil {
		return nil, err
	}

	refs := f.newRefs()
	newRef, err := refs.put(art)
	if err != nil {
		return nil, err
	}
	pairs := make(map[string]model.BlobPair, len(changes))
	for _, c := range changes {
		oldRef, err := refs.put(c.Old)
		if err != nil {
			refs.abort()
			return nil, err
		}
		pairs[c.Target] = model.BlobPair{Old: oldRef, New: newRef}
	}

	summary := fmt.Sprintf("Applied album art to %d files in %s", len(changes), quote(pathutil.DisplayName(folder)))
	a, err := f.build(targets, model.ArtworkField, summary, model.BatchArtworkChange{Changes: pairs})
	if err != nil {
		refs.abort()
	}
	return a, err
}

// BatchFieldDelete records removing field from several files. Only Old of
// each change is used.
func (f *Factory) BatchFieldDelete(folder, field string, changes []Change) (*model.Action, error) {
	targets, err := changeTargets(changes)
	if err != nil {
		return nil, err
	}
	old := make(map[string]string, len(changes))
	for _, c := range changes {
		old[c.Target] = c.Old
	}
	summary := fmt.Sprintf("Deleted field %s from %d files in %s", field, len(changes), quote(pathutil.DisplayName(folder)))
	return f.build(targets, field, summary, model.BatchFieldDelete{Old: old})
}

// BatchFieldCreate records creating field in several files. Only New of
// each change is used.
func (f *Factory) BatchFieldCreate(field string, changes []Change) (*model.Action, error) {
	targets, err := changeTargets(changes)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(changes))
	for _, c := range changes {
		values[c.Target] = c.New
	}
	summary := fmt.Sprintf("Created field '%s' in %d files", field, len(changes))
	return f.build(targets, field, summary, model.BatchFieldCreate{New: values})
}

func (f *Factory) single(target, field, summary string, p model.Payload) (*model.Action, error) {
	return f.build([]string{target}, field, summary, p)
}

func (f *Factory) build(targets []string, field, summary string, p model.Payload) (*model.Action, error) {
	if err := validateTargets(targets); err != nil {
		return nil, err
	}
	if !p.Kind().IsArtwork() && strings.TrimSpace(field) == "" {
		return nil, errclass.ErrInvalidAction.WithMessagef("%s requires a field name", p.Kind())
	}
	return model.NewAction(f.newID(), f.now().UTC(), targets, field, summary, p)
}

func changeTargets(changes []Change) ([]string, error) {
	targets := make([]string, 0, len(changes))
	for _, c := range changes {
		targets = append(targets, c.Target)
	}
	return targets, validateTargets(targets)
}

func validateTargets(targets []string) error {
	if len(targets) == 0 {
		return errclass.ErrInvalidAction.WithMessage("action must have at least one target")
	}
	for _, t := range targets {
		if err := pathutil.ValidateTarget(t); err != nil {
			return errclass.ErrInvalidAction.WithMessage(err.Error())
		}
	}
	return nil
}

// blobRefs stores artwork for one action, keeping exactly one pin per
// distinct hash so the log can release them symmetrically.
type blobRefs struct {
	store BlobStore
	seen  map[model.HashValue]struct{}
}

func (f *Factory) newRefs() *blobRefs {
	return &blobRefs{store: f.blobs, seen: make(map[model.HashValue]struct{})}
}

func (r *blobRefs) put(data []byte) (model.HashValue, error) {
	if len(data) == 0 {
		return "", nil
	}
	if r.store == nil {
		return "", errclass.ErrInvalidAction.WithMessage("factory has no blob store for artwork")
	}
	h, err := r.store.Put(data)
	if err != nil {
		return "", fmt.Errorf("store artwork: %w", err)
	}
	if _, dup := r.seen[h]; dup {
		r.store.Unpin(h)
	} else {
		r.seen[h] = struct{}{}
	}
	return h, nil
}

func (r *blobRefs) abort() {
	for h := range r.seen {
		r.store.Unpin(h)
	}
	r.seen = map[model.HashValue]struct{}{}
}

func blank(v string) bool {
	return v == "" || v == BlankSentinel
}

// quote renders v for a summary: blank sentinel as empty, long values cut.
func quote(v string) string {
	if v == BlankSentinel {
		v = ""
	}
	if utf8.RuneCountInString(v) > maxSummaryValue {
		v = string([]rune(v)[:maxSummaryValue]) + "..."
	}
	return `"` + v + `"`
}
