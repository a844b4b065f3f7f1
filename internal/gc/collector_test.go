package gc_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/action"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/actionlog"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/blob"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/gc"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/integrity"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/logging"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func setup(t *testing.T, dir string, clk *clock) (*actionlog.Log, *blob.Cache, *action.Factory) {
	t.Helper()
	cache, err := blob.Open(dir, blob.WithLogger(logging.Discard()), blob.WithClock(clk.now))
	require.NoError(t, err)
	l := actionlog.New(cache, actionlog.WithLogger(logging.Discard()))
	t.Cleanup(func() { l.Close() })
	return l, cache, action.NewFactory(cache)
}

func TestCollector_ProtectsReferencedAndFreshPins(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, cache, f := setup(t, t.TempDir(), clk)

	recorded, err := f.ArtworkDelete("/m/a.mp3", []byte("kept"))
	require.NoError(t, err)
	require.NoError(t, l.Add(recorded))

	_, err = f.ArtworkDelete("/m/b.mp3", []byte("pending"))
	require.NoError(t, err)

	c := gc.NewCollector(l, cache, 10*time.Minute, gc.WithClock(clk.now), gc.WithLogger(logging.Discard()))
	plan := c.Plan()
	assert.NotEmpty(t, plan.PlanID)
	assert.Empty(t, plan.ToDelete)
	assert.Equal(t, 2, plan.Protected)
}

func TestCollector_RemovesAbandonedPins(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, cache, f := setup(t, t.TempDir(), clk)

	_, err := f.ArtworkDelete("/m/b.mp3", []byte("abandoned"))
	require.NoError(t, err)
	abandoned := integrity.HashBytes([]byte("abandoned"))

	clk.t = clk.t.Add(time.Hour)
	c := gc.NewCollector(l, cache, 10*time.Minute, gc.WithClock(clk.now), gc.WithLogger(logging.Discard()))
	res := c.Collect()
	assert.Equal(t, []model.HashValue{abandoned}, res.Deleted)
	assert.Equal(t, int64(len("abandoned")), res.BytesReclaimed)
	assert.False(t, cache.Has(abandoned))
}

func TestCollector_RemovesStaleBlobsFromPreviousRun(t *testing.T) {
	dir := t.TempDir()
	stale := []byte("from last session")
	h := integrity.HashBytes(stale)
	require.NoError(t, os.WriteFile(filepath.Join(dir, string(h)+".blob"), stale, 0644))

	clk := &clock{t: time.Now()}
	l, cache, _ := setup(t, dir, clk)
	res := gc.NewCollector(l, cache, time.Minute, gc.WithLogger(logging.Discard())).Collect()
	assert.Equal(t, []model.HashValue{h}, res.Deleted)
}

func TestCollector_RunRevalidates(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, cache, f := setup(t, t.TempDir(), clk)

	pending, err := f.ArtworkDelete("/m/b.mp3", []byte("late"))
	require.NoError(t, err)
	clk.t = clk.t.Add(time.Hour)

	c := gc.NewCollector(l, cache, 10*time.Minute, gc.WithClock(clk.now), gc.WithLogger(logging.Discard()))
	plan := c.Plan()
	require.Len(t, plan.ToDelete, 1)

	// Recorded between plan and run.
	require.NoError(t, l.Add(pending))
	res := c.Run(plan)
	assert.Empty(t, res.Deleted)
	assert.Equal(t, plan.ToDelete, res.Skipped)
	assert.True(t, cache.Has(plan.ToDelete[0]))
}
