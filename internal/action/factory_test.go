package action_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/action"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/blob"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/integrity"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/logging"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newFactory(t *testing.T) (*action.Factory, *blob.Cache) {
	t.Helper()
	cache, err := blob.Open(t.TempDir(), blob.WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	n := 0
	f := action.NewFactory(cache,
		action.WithClock(func() time.Time { return fixedNow }),
		action.WithIDGenerator(func() string {
			n++
			return "act-" + string(rune('0'+n))
		}),
	)
	return f, cache
}

func pins(cache *blob.Cache) map[model.HashValue]int {
	out := make(map[model.HashValue]int)
	for _, e := range cache.Entries() {
		out[e.Hash] = e.Pins
	}
	return out
}

func TestValueChange(t *testing.T) {
	f, _ := newFactory(t)
	a, err := f.ValueChange("/music/a.mp3", "title", "Old", "New")
	require.NoError(t, err)

	assert.Equal(t, "act-1", a.ID())
	assert.Equal(t, fixedNow, a.Timestamp())
	assert.Equal(t, model.KindValueChange, a.Kind())
	assert.Equal(t, []string{"/music/a.mp3"}, a.Targets())
	assert.Equal(t, "title", a.Field())
	assert.Equal(t, `Changed title in "a.mp3" from "Old" to "New"`, a.Summary())
	before, _ := a.Before("/music/a.mp3")
	after, _ := a.After("/music/a.mp3")
	assert.Equal(t, "Old", before.Text)
	assert.Equal(t, "New", after.Text)
	assert.False(t, a.Reverted())
}

func TestValueChange_Summaries(t *testing.T) {
	f, _ := newFactory(t)
	tests := []struct {
		old, new string
		kind     model.Kind
		want     string
	}{
		{"", "New", model.KindValueChange, `Changed title in "a.mp3" to "New"`},
		{" ", "New", model.KindValueChange, `Changed title in "a.mp3" to "New"`},
		{"Old", "", model.KindClearField, `Cleared title in "a.mp3" (was "Old")`},
		{"Old", " ", model.KindClearField, `Cleared title in "a.mp3" (was "Old")`},
		{"", " ", model.KindValueChange, `Changed title in "a.mp3"`},
	}
	for _, tc := range tests {
		a, err := f.ValueChange("/music/a.mp3", "title", tc.old, tc.new)
		require.NoError(t, err)
		assert.Equal(t, tc.kind, a.Kind(), "old=%q new=%q", tc.old, tc.new)
		assert.Equal(t, tc.want, a.Summary())
	}
}

func TestClearField_RequiresPreviousValue(t *testing.T) {
	f, _ := newFactory(t)
	for _, old := range []string{"", " "} {
		_, err := f.ClearField("/music/a.mp3", "title", old)
		assert.True(t, errors.Is(err, errclass.ErrInvalidAction), "old=%q", old)
	}

	a, err := f.ClearField("/music/a.mp3", "title", "Old")
	require.NoError(t, err)
	after, _ := a.After("/music/a.mp3")
	assert.Equal(t, "", after.Text)
}

func TestValueChange_ClearKeepsRawBlank(t *testing.T) {
	f, _ := newFactory(t)
	a, err := f.ValueChange("/music/a.mp3", "title", "Old", " ")
	require.NoError(t, err)
	require.Equal(t, model.KindClearField, a.Kind())
	after, _ := a.After("/music/a.mp3")
	assert.Equal(t, " ", after.Text)
}

func TestValueChange_KeepsRawSentinel(t *testing.T) {
	f, _ := newFactory(t)
	a, err := f.ValueChange("/music/a.mp3", "album", " ", "X")
	require.NoError(t, err)
	before, _ := a.Before("/music/a.mp3")
	assert.Equal(t, " ", before.Text)
}

func TestSummary_TruncatesLongValues(t *testing.T) {
	f, _ := newFactory(t)
	long := strings.Repeat("é", 70)
	a, err := f.FieldCreate("/music/a.mp3", "comment", long)
	require.NoError(t, err)
	assert.Equal(t, `Created field 'comment' in "a.mp3" with value "`+strings.Repeat("é", 60)+`..."`, a.Summary())
	after, _ := a.After("/music/a.mp3")
	assert.Equal(t, long, after.Text, "stored value is not truncated")
}

func TestFieldDeleteAndCreate(t *testing.T) {
	f, _ := newFactory(t)

	del, err := f.FieldDelete("/music/a.flac", "mood", "happy")
	require.NoError(t, err)
	assert.Equal(t, model.KindFieldDelete, del.Kind())
	assert.Equal(t, `Deleted mood from "a.flac" (was "happy")`, del.Summary())
	after, _ := del.After("/music/a.flac")
	assert.True(t, after.Absent)

	cr, err := f.FieldCreate("/music/a.flac", "mood", " ")
	require.NoError(t, err)
	assert.Equal(t, `Created field 'mood' in "a.flac"`, cr.Summary())
	before, _ := cr.Before("/music/a.flac")
	assert.True(t, before.Absent)
}

func TestArtworkChange_StoresBlobs(t *testing.T) {
	f, cache := newFactory(t)
	oldArt, newArt := []byte("old-jpeg"), []byte("new-jpeg")

	a, err := f.ArtworkChange("/music/a.mp3", oldArt, newArt)
	require.NoError(t, err)
	assert.Equal(t, model.KindArtworkChange, a.Kind())
	assert.Equal(t, model.ArtworkField, a.Field())
	assert.Equal(t, `Changed album art in "a.mp3"`, a.Summary())

	before, _ := a.Before("/music/a.mp3")
	assert.Equal(t, integrity.HashBytes(oldArt), before.Blob)
	data, err := cache.Get(before.Blob)
	require.NoError(t, err)
	assert.Equal(t, oldArt, data)
	assert.Equal(t, 2, cache.Len())
}

func TestArtworkChange_NoPreviousArt(t *testing.T) {
	f, cache := newFactory(t)
	a, err := f.ArtworkChange("/music/a.mp3", nil, []byte("new"))
	require.NoError(t, err)
	before, _ := a.Before("/music/a.mp3")
	assert.True(t, before.Absent)
	assert.Equal(t, 1, cache.Len())

	_, err = f.ArtworkChange("/music/a.mp3", nil, nil)
	assert.True(t, errors.Is(err, errclass.ErrInvalidAction))
}

func TestArtworkDelete(t *testing.T) {
	f, _ := newFactory(t)
	a, err := f.ArtworkDelete("/music/a.mp3", []byte("art"))
	require.NoError(t, err)
	assert.Equal(t, `Deleted album art from "a.mp3"`, a.Summary())
	after, _ := a.After("/music/a.mp3")
	assert.True(t, after.Absent)

	_, err = f.ArtworkDelete("/music/a.mp3", nil)
	assert.True(t, errors.Is(err, errclass.ErrInvalidAction))
}

func TestBatchValueChange(t *testing.T) {
	f, _ := newFactory(t)
	a, err := f.BatchValueChange("/music/Album", "album", "New", []action.Change{
		{Target: "/music/Album/1.mp3", Old: "A", New: "New"},
		{Target: "/music/Album/2.mp3", Old: "B", New: "New"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.KindBatchValueChange, a.Kind())
	assert.Equal(t, `Changed album to "New" for 2 files in "Album"`, a.Summary())
	before, _ := a.Before("/music/Album/2.mp3")
	assert.Equal(t, "B", before.Text)
}

func TestBatchValueChange_RootFolder(t *testing.T) {
	f, _ := newFactory(t)
	a, err := f.BatchValueChange("", "genre", "Jazz", []action.Change{{Target: "/a.mp3", Old: "", New: "Jazz"}})
	require.NoError(t, err)
	assert.Equal(t, `Changed genre to "Jazz" for 1 files in "root"`, a.Summary())
}

func TestBatchArtworkChange_OnePinPerHash(t *testing.T) {
	f, cache := newFactory(t)
	shared := []byte("shared-old")
	a, err := f.BatchArtworkChange("/music/Album", []byte("cover"), []action.ArtChange{
		{Target: "/music/Album/1.mp3", Old: shared},
		{Target: "/music/Album/2.mp3", Old: shared},
		{Target: "/music/Album/3.mp3"},
	})
	require.NoError(t, err)
	assert.Equal(t, `Applied album art to 3 files in "Album"`, a.Summary())
	assert.Len(t, a.BlobRefs(), 2)

	for h, n := range pins(cache) {
		assert.Equal(t, 1, n, "hash %s", h)
	}
	before, _ := a.Before("/music/Album/3.mp3")
	assert.True(t, before.Absent)
}

func TestBatchArtworkChange_InvalidReleasesPins(t *testing.T) {
	f, cache := newFactory(t)
	_, err := f.BatchArtworkChange("/music", []byte("cover"), []action.ArtChange{
		{Target: "/music/1.mp3", Old: []byte("x")},
		{Target: "/music/1.mp3", Old: []byte("y")},
	})
	require.True(t, errors.Is(err, errclass.ErrInvalidAction))
	for _, n := range pins(cache) {
		assert.Zero(t, n)
	}
}

func TestBatchFieldDeleteAndCreate(t *testing.T) {
	f, _ := newFactory(t)
	changes := []action.Change{
		{Target: "/m/1.flac", Old: "x", New: "y"},
		{Target: "/m/2.flac", Old: "z", New: "y"},
	}

	del, err := f.BatchFieldDelete("/m", "mood", changes)
	require.NoError(t, err)
	assert.Equal(t, `Deleted field mood from 2 files in "m"`, del.Summary())
	after, _ := del.After("/m/2.flac")
	assert.True(t, after.Absent)

	cr, err := f.BatchFieldCreate("mood", changes)
	require.NoError(t, err)
	assert.Equal(t, `Created field 'mood' in 2 files`, cr.Summary())
	before, _ := cr.Before("/m/1.flac")
	assert.True(t, before.Absent)
	after, _ = cr.After("/m/1.flac")
	assert.Equal(t, "y", after.Text)
}

func TestInvalidInputs(t *testing.T) {
	f, _ := newFactory(t)
	cases := map[string]func() error{
		"relative target": func() error {
			_, err := f.ValueChange("a.mp3", "title", "a", "b")
			return err
		},
		"empty field": func() error {
			_, err := f.FieldCreate("/a.mp3", "", "v")
			return err
		},
		"empty batch": func() error {
			_, err := f.BatchValueChange("/m", "title", "v", nil)
			return err
		},
		"duplicate batch target": func() error {
			_, err := f.BatchFieldCreate("mood", []action.Change{{Target: "/a"}, {Target: "/a"}})
			return err
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(fn(), errclass.ErrInvalidAction))
		})
	}
}

func TestArtworkWithoutStore(t *testing.T) {
	f := action.NewFactory(nil)
	_, err := f.ArtworkDelete("/a.mp3", []byte("x"))
	assert.True(t, errors.Is(err, errclass.ErrInvalidAction))

	a, err := f.ValueChange("/a.mp3", "title", "a", "b")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID())
}
