package actionlog_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/action"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/actionlog"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/audit"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/blob"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/logging"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
)

type fixture struct {
	log     *actionlog.Log
	cache   *blob.Cache
	factory *action.Factory
}

func newFixture(t testing.TB, opts ...actionlog.Option) *fixture {
	t.Helper()
	cache, err := blob.Open(t.TempDir(), blob.WithLogger(logging.Discard()))
	require.NoError(t, err)

	var n atomic.Int64
	factory := action.NewFactory(cache, action.WithIDGenerator(func() string {
		return fmt.Sprintf("act-%04d", n.Add(1))
	}))
	opts = append([]actionlog.Option{actionlog.WithLogger(logging.Discard())}, opts...)
	l := actionlog.New(cache, opts...)
	t.Cleanup(func() { l.Close() })
	return &fixture{log: l, cache: cache, factory: factory}
}

func (f *fixture) record(t testing.TB, target string) *model.Action {
	t.Helper()
	a, err := f.factory.ValueChange(target, "title", "old", "new")
	require.NoError(t, err)
	require.NoError(t, f.log.Add(a))
	return a
}

func ids(summaries []model.ActionSummary) []string {
	out := make([]string, len(summaries))
	for i, s := range summaries {
		out[i] = s.ID
	}
	return out
}

func TestAdd_GetAndList(t *testing.T) {
	f := newFixture(t)
	a1 := f.record(t, "/m/1.mp3")
	a2 := f.record(t, "/m/2.mp3")

	got, err := f.log.Get(a1.ID())
	require.NoError(t, err)
	assert.Same(t, a1, got)

	assert.Equal(t, 2, f.log.Len())
	assert.Equal(t, []string{a1.ID(), a2.ID()}, ids(f.log.List()))
	assert.Equal(t, []string{a2.ID(), a1.ID()}, ids(f.log.Recent()))
	assert.Equal(t, []*model.Action{a1, a2}, f.log.Actions())
}

func TestAdd_Rejects(t *testing.T) {
	f := newFixture(t)
	a := f.record(t, "/m/1.mp3")

	err := f.log.Add(a)
	assert.True(t, errors.Is(err, errclass.ErrInvalidAction))
	err = f.log.Add(nil)
	assert.True(t, errors.Is(err, errclass.ErrInvalidAction))
	assert.Equal(t, 1, f.log.Len())
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.log.Get("missing")
	assert.True(t, errors.Is(err, errclass.ErrActionNotFound))
}

func TestBoundedSize(t *testing.T) {
	f := newFixture(t, actionlog.WithMaxItems(5))
	for i := 0; i < 12; i++ {
		f.record(t, fmt.Sprintf("/m/%d.mp3", i))
		assert.LessOrEqual(t, f.log.Len(), 5)
	}
	assert.Equal(t, 5, f.log.Len())
}

func TestFIFOEviction(t *testing.T) {
	f := newFixture(t, actionlog.WithMaxItems(3))
	var all []*model.Action
	for i := 0; i < 4; i++ {
		all = append(all, f.record(t, fmt.Sprintf("/m/%d.mp3", i)))
	}

	_, err := f.log.Get(all[0].ID())
	assert.True(t, errors.Is(err, errclass.ErrActionNotFound), "oldest must be evicted")
	assert.Equal(t, []string{all[1].ID(), all[2].ID(), all[3].ID()}, ids(f.log.List()))
}

func TestDefaultCapacity(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 1000, f.log.MaxItems())
}

func TestEviction_ReleasesUnsharedBlobs(t *testing.T) {
	f := newFixture(t, actionlog.WithMaxItems(2))
	shared := []byte("shared-cover")

	first, err := f.factory.ArtworkChange("/m/1.mp3", []byte("only-first"), shared)
	require.NoError(t, err)
	require.NoError(t, f.log.Add(first))
	second, err := f.factory.ArtworkChange("/m/2.mp3", nil, shared)
	require.NoError(t, err)
	require.NoError(t, f.log.Add(second))
	require.Equal(t, 2, f.cache.Len())

	before, _ := first.Before("/m/1.mp3")
	after, _ := first.After("/m/1.mp3")
	assert.Equal(t, 2, f.log.RefCount(after.Blob))

	f.record(t, "/m/3.mp3") // evicts first

	assert.False(t, f.cache.Has(before.Blob), "blob referenced only by the evicted action is released")
	assert.True(t, f.cache.Has(after.Blob), "blob still referenced by a live action survives")
	assert.Equal(t, 1, f.log.RefCount(after.Blob))

	data, err := f.cache.Get(after.Blob)
	require.NoError(t, err)
	assert.Equal(t, shared, data)
}

func TestEviction_PendingBlobSurvives(t *testing.T) {
	f := newFixture(t, actionlog.WithMaxItems(1))
	art := []byte("cover")

	first, err := f.factory.ArtworkDelete("/m/1.mp3", art)
	require.NoError(t, err)
	require.NoError(t, f.log.Add(first))

	// Built but not yet recorded: its Put pinned the same blob.
	pending, err := f.factory.ArtworkDelete("/m/2.mp3", art)
	require.NoError(t, err)

	f.record(t, "/m/3.mp3") // evicts first, refcount drops to zero
	before, _ := pending.Before("/m/2.mp3")
	assert.True(t, f.cache.Has(before.Blob))

	require.NoError(t, f.log.Add(pending))
	_, err = f.cache.Get(before.Blob)
	assert.NoError(t, err)
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	f.record(t, "/m/1.mp3")
	art, err := f.factory.ArtworkDelete("/m/1.mp3", []byte("art"))
	require.NoError(t, err)
	require.NoError(t, f.log.Add(art))

	require.NoError(t, f.log.Clear())
	assert.Equal(t, 0, f.log.Len())
	assert.Empty(t, f.log.List())
	assert.Equal(t, 0, f.cache.Len())
	_, err = f.log.Get(art.ID())
	assert.True(t, errors.Is(err, errclass.ErrActionNotFound))

	f.record(t, "/m/2.mp3")
	assert.Equal(t, 1, f.log.Len())
}

func TestRebind_File(t *testing.T) {
	f := newFixture(t)
	a := f.record(t, "/m/a.mp3")
	other := f.record(t, "/m/b.mp3")

	n, err := f.log.Rebind("/m/a.mp3", "/m/renamed.mp3")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.log.Get(a.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"/m/renamed.mp3"}, got.Targets())
	assert.Equal(t, []string{"/m/a.mp3"}, a.Targets(), "previously loaded action is not mutated")

	unchanged, err := f.log.Get(other.ID())
	require.NoError(t, err)
	assert.Same(t, other, unchanged)
	assert.Equal(t, []string{a.ID(), other.ID()}, ids(f.log.List()), "order preserved")
}

func TestRebind_OntoSiblingKeepsMovedValues(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t)
		batch, err := f.factory.BatchValueChange("/m", "title", "X", []action.Change{
			{Target: "/m/a.mp3", Old: "A-old", New: "X"},
			{Target: "/m/b.mp3", Old: "B-old", New: "X"},
		})
		require.NoError(t, err)
		require.NoError(t, f.log.Add(batch))

		_, err = f.log.Rebind("/m/a.mp3", "/m/b.mp3")
		require.NoError(t, err)

		got, err := f.log.Get(batch.ID())
		require.NoError(t, err)
		require.Equal(t, []string{"/m/b.mp3"}, got.Targets())
		before, ok := got.Before("/m/b.mp3")
		require.True(t, ok)
		require.Equal(t, "A-old", before.Text, "run %d", i)
	}
}

func TestRebind_FolderAndChain(t *testing.T) {
	f := newFixture(t)
	batch, err := f.factory.BatchValueChange("/m/Album", "album", "X", []action.Change{
		{Target: "/m/Album/1.mp3", Old: "a", New: "X"},
		{Target: "/m/Album/Disc 2/2.mp3", Old: "b", New: "X"},
	})
	require.NoError(t, err)
	require.NoError(t, f.log.Add(batch))
	sibling := f.record(t, "/m/Album2/1.mp3")

	n, err := f.log.Rebind("/m/Album", "/m/Album (2020)")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.log.Get(batch.ID())
	assert.Equal(t, []string{"/m/Album (2020)/1.mp3", "/m/Album (2020)/Disc 2/2.mp3"}, got.Targets())
	sib, _ := f.log.Get(sibling.ID())
	assert.Equal(t, []string{"/m/Album2/1.mp3"}, sib.Targets())

	// A second rename must find the rewritten paths through the index.
	n, err = f.log.Rebind("/m/Album (2020)/1.mp3", "/m/Album (2020)/01.mp3")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, _ = f.log.Get(batch.ID())
	assert.Equal(t, "/m/Album (2020)/01.mp3", got.Targets()[0])
}

func TestRebind_Invalid(t *testing.T) {
	f := newFixture(t)
	_, err := f.log.Rebind("rel", "/x")
	assert.True(t, errors.Is(err, errclass.ErrPathInvalid))

	n, err := f.log.Rebind("/none", "/other")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRebind_AfterEviction(t *testing.T) {
	f := newFixture(t, actionlog.WithMaxItems(1))
	f.record(t, "/m/a.mp3")
	f.record(t, "/m/b.mp3")

	n, err := f.log.Rebind("/m/a.mp3", "/m/z.mp3")
	require.NoError(t, err)
	assert.Zero(t, n, "evicted actions are no longer indexed")
}

func TestJournal(t *testing.T) {
	journal := audit.NewFileAppender(filepath.Join(t.TempDir(), "audit.jsonl"))
	f := newFixture(t, actionlog.WithJournal(journal), actionlog.WithMaxItems(1))
	f.record(t, "/m/a.mp3")
	f.record(t, "/m/b.mp3")
	_, err := f.log.Rebind("/m", "/n")
	require.NoError(t, err)
	require.NoError(t, f.log.Clear())

	records, err := journal.Records()
	require.NoError(t, err)
	var events []model.AuditEventType
	for _, r := range records {
		events = append(events, r.EventType)
	}
	assert.Equal(t, []model.AuditEventType{
		model.EventTypeRecord,
		model.EventTypeRecord,
		model.EventTypeEvict,
		model.EventTypeRebind,
		model.EventTypeClear,
	}, events)
	_, err = journal.Verify()
	assert.NoError(t, err)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	f.record(t, "/m/a.mp3")
	require.NoError(t, f.log.Close())
	require.NoError(t, f.log.Close())

	assert.Equal(t, 0, f.log.Len())
	a, err := f.factory.ValueChange("/m/b.mp3", "title", "", "x")
	require.NoError(t, err)
	assert.Error(t, f.log.Add(a))
	assert.Error(t, f.log.Clear())
}

func TestSummariesCarryNoBlobBytes(t *testing.T) {
	f := newFixture(t)
	a, err := f.factory.ArtworkChange("/m/a.mp3", nil, []byte("jpeg"))
	require.NoError(t, err)
	require.NoError(t, f.log.Add(a))

	s := f.log.List()[0]
	assert.Equal(t, model.KindArtworkChange, s.Kind)
	assert.Equal(t, "art", s.Field)
	assert.WithinDuration(t, time.Now(), s.Timestamp, time.Minute)
}
