// Package rebind rewrites the file references held by recorded actions after
// a file or folder is renamed or moved.
package rebind

import (
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/pathutil"
)

// Rebinder maps paths under one rename.
type Rebinder struct {
	oldPath string
	newPath string
}

// New validates a rename notification. Both paths must be absolute.
func New(oldPath, newPath string) (*Rebinder, error) {
	if err := pathutil.ValidateTarget(oldPath); err != nil {
		return nil, err
	}
	if err := pathutil.ValidateTarget(newPath); err != nil {
		return nil, err
	}
	return &Rebinder{
		oldPath: pathutil.Normalize(oldPath),
		newPath: pathutil.Normalize(newPath),
	}, nil
}

// From returns the normalized source path.
func (r *Rebinder) From() string { return r.oldPath }

// To returns the normalized destination path.
func (r *Rebinder) To() string { return r.newPath }

// Noop reports whether the rename maps a path onto itself.
func (r *Rebinder) Noop() bool { return r.oldPath == r.newPath }

// FolderPrefix is the key prefix shared by every path inside the renamed
// folder.
func (r *Rebinder) FolderPrefix() string { return pathutil.DirPrefix(r.oldPath) }

// Rewrite maps the old path itself, or any path inside it when it is a
// folder, to its new location.
func (r *Rebinder) Rewrite(p string) (string, bool) {
	return pathutil.Rebase(p, r.oldPath, r.newPath)
}

// Apply returns a rebound copy of a that shares its reverted flag, or a
// itself with ok false when no target moved. Values, including blob
// references, are never touched.
func (r *Rebinder) Apply(a *model.Action) (*model.Action, bool) {
	if r.Noop() {
		return a, false
	}
	return a.Rebind(r.Rewrite)
}
