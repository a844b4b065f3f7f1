package memtags_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/memtags"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
)

func TestStore_WriteAndDelete(t *testing.T) {
	ctx := context.Background()
	s := memtags.New()
	s.Put("/m/a.mp3", map[string]string{"title": "Old"}, nil)

	require.NoError(t, s.WriteField(ctx, "/m/a.mp3", "title", "New"))
	v, ok := s.Field("/m/a.mp3", "title")
	assert.True(t, ok)
	assert.Equal(t, "New", v)

	require.NoError(t, s.DeleteField(ctx, "/m/a.mp3", "title"))
	_, ok = s.Field("/m/a.mp3", "title")
	assert.False(t, ok)
	assert.Error(t, s.DeleteField(ctx, "/m/a.mp3", "title"))

	assert.Error(t, s.WriteField(ctx, "/m/missing.mp3", "title", "x"))
	assert.Equal(t, 2, s.Writes())
}

func TestStore_Artwork(t *testing.T) {
	ctx := context.Background()
	s := memtags.New()
	s.Put("/m/a.mp3", nil, []byte("old"))

	require.NoError(t, s.WriteArtwork(ctx, "/m/a.mp3", []byte("new")))
	assert.Equal(t, []byte("new"), s.Artwork("/m/a.mp3"))
	require.NoError(t, s.RemoveArtwork(ctx, "/m/a.mp3"))
	assert.Nil(t, s.Artwork("/m/a.mp3"))
}

func TestStore_FailureInjection(t *testing.T) {
	ctx := context.Background()
	s := memtags.New()
	s.Put("/m/a.mp3", nil, nil)
	boom := errors.New("disk full")

	s.FailOn("/m/a.mp3", boom)
	assert.ErrorIs(t, s.WriteField(ctx, "/m/a.mp3", "title", "x"), boom)
	s.Recover("/m/a.mp3")
	assert.NoError(t, s.WriteField(ctx, "/m/a.mp3", "title", "x"))
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := memtags.New()
	s.Put("/m/a.mp3", nil, nil)
	assert.ErrorIs(t, s.WriteField(ctx, "/m/a.mp3", "title", "x"), context.Canceled)
}

func TestStore_Rename(t *testing.T) {
	s := memtags.New()
	s.Put("/m/A/1.mp3", map[string]string{"title": "one"}, nil)
	s.Put("/m/A/2.mp3", nil, nil)
	s.Put("/m/B/3.mp3", nil, nil)

	n, err := s.Rename("/m/A", "/m/C")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"/m/B/3.mp3", "/m/C/1.mp3", "/m/C/2.mp3"}, s.Paths())
	v, _ := s.Field("/m/C/1.mp3", "title")
	assert.Equal(t, "one", v)

	_, err = s.Rename("/m/none", "/m/x")
	assert.True(t, errors.Is(err, errclass.ErrPathInvalid))
	_, err = s.Rename("/m/B/3.mp3", "/m/C/1.mp3")
	assert.True(t, errors.Is(err, errclass.ErrPathInvalid))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := memtags.New()
	s.Put("/m/a.mp3", map[string]string{"title": "x"}, []byte("art"))
	f, ok := s.Get("/m/a.mp3")
	require.True(t, ok)
	f.Fields["title"] = "changed"
	f.Art[0] = 'X'

	v, _ := s.Field("/m/a.mp3", "title")
	assert.Equal(t, "x", v)
	assert.Equal(t, []byte("art"), s.Artwork("/m/a.mp3"))
}
