// Package memtags is an in-memory tag store. It implements the executor's
// TagWriter over a map of files so sessions can be replayed and tested
// without touching real audio files.
package memtags

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/pathutil"
)

// File is the tag state of one file.
type File struct {
	Fields map[string]string `json:"fields" yaml:"fields"`
	Art    []byte            `json:"art,omitempty" yaml:"art,omitempty"`
}

func (f *File) clone() *File {
	return &File{Fields: maps.Clone(f.Fields), Art: slices.Clone(f.Art)}
}

// Store holds files keyed by path.
type Store struct {
	mu       sync.Mutex
	files    map[string]*File
	failures map[string]error
	writes   int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		files:    make(map[string]*File),
		failures: make(map[string]error),
	}
}

// Put creates or replaces a file.
func (s *Store) Put(path string, fields map[string]string, art []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fields == nil {
		fields = map[string]string{}
	}
	s.files[path] = &File{Fields: maps.Clone(fields), Art: slices.Clone(art)}
}

// Get returns a copy of a file's state.
func (s *Store) Get(path string) (*File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	if !ok {
		return nil, false
	}
	return f.clone(), true
}

// Field returns one field value.
func (s *Store) Field(path, field string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	if !ok {
		return "", false
	}
	v, ok := f.Fields[field]
	return v, ok
}

// Artwork returns a file's artwork, or nil.
func (s *Store) Artwork(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[path]; ok {
		return slices.Clone(f.Art)
	}
	return nil
}

// Paths returns every stored path in lexical order.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.files))
}

// Writes returns the number of successful tag writes.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// FailOn makes every write to path return err until Recover is called.
func (s *Store) FailOn(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = err
}

// Recover clears an injected failure.
func (s *Store) Recover(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, path)
}

// Rename moves a file, or every file inside a folder, to a new path.
func (s *Store) Rename(oldPath, newPath string) (int, error) {
	if err := pathutil.ValidateTarget(oldPath); err != nil {
		return 0, err
	}
	if err := pathutil.ValidateTarget(newPath); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	moved := make(map[string]string)
	for p := range s.files {
		if np, ok := pathutil.Rebase(p, oldPath, newPath); ok {
			if _, exists := s.files[np]; exists && np != p {
				return 0, errclass.ErrPathInvalid.WithMessagef("destination exists: %s", np)
			}
			moved[p] = np
		}
	}
	if len(moved) == 0 {
		return 0, errclass.ErrPathInvalid.WithMessagef("no such file or folder: %s", oldPath)
	}
	for p, np := range moved {
		f := s.files[p]
		delete(s.files, p)
		s.files[np] = f
		if err, ok := s.failures[p]; ok {
			delete(s.failures, p)
			s.failures[np] = err
		}
	}
	return len(moved), nil
}

// edit runs fn against the file at path under the store lock.
func (s *Store) edit(ctx context.Context, path string, fn func(f *File) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[path]; ok {
		return err
	}
	f, ok := s.files[path]
	if !ok {
		return fmt.Errorf("file not found: %s", path)
	}
	if err := fn(f); err != nil {
		return err
	}
	s.writes++
	return nil
}

// WriteField sets field on path.
func (s *Store) WriteField(ctx context.Context, path, field, value string) error {
	return s.edit(ctx, path, func(f *File) error {
		f.Fields[field] = value
		return nil
	})
}

// DeleteField removes field from path.
func (s *Store) DeleteField(ctx context.Context, path, field string) error {
	return s.edit(ctx, path, func(f *File) error {
		if _, ok := f.Fields[field]; !ok {
			return fmt.Errorf("field %s not present", field)
		}
		delete(f.Fields, field)
		return nil
	})
}

// WriteArtwork embeds data as path's artwork.
func (s *Store) WriteArtwork(ctx context.Context, path string, data []byte) error {
	return s.edit(ctx, path, func(f *File) error {
		f.Art = slices.Clone(data)
		return nil
	})
}

// RemoveArtwork strips path's artwork.
func (s *Store) RemoveArtwork(ctx context.Context, path string) error {
	return s.edit(ctx, path, func(f *File) error {
		f.Art = nil
		return nil
	})
}
