// Package pathutil normalizes and rewrites the file identifiers tracked by
// history actions.
package pathutil

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
)

// Normalize returns the NFC form of p with filepath.Clean applied. Music
// libraries synced from macOS often carry NFD names; without this a rename
// notification could miss the stored spelling of the same path.
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(norm.NFC.String(p))
}

// ValidateTarget checks that p can identify a tracked file.
func ValidateTarget(p string) error {
	if strings.TrimSpace(p) == "" {
		return errclass.ErrPathInvalid.WithMessage("path must not be empty")
	}
	if !filepath.IsAbs(p) {
		return errclass.ErrPathInvalid.WithMessagef("path must be absolute: %s", p)
	}
	return nil
}

// DirPrefix returns dir with exactly one trailing separator, the form used
// for "everything inside dir" comparisons.
func DirPrefix(dir string) string {
	dir = Normalize(dir)
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}

// Rebase rewrites p when it equals oldPath or lies inside the oldPath folder,
// substituting newPath for that prefix. All three arguments are compared in
// normalized form. When p is unaffected it is returned unchanged with ok
// false.
func Rebase(p, oldPath, newPath string) (string, bool) {
	np := Normalize(p)
	oldPath = Normalize(oldPath)
	newPath = Normalize(newPath)
	if oldPath == "" {
		return p, false
	}

	if np == oldPath {
		return newPath, true
	}
	prefix := DirPrefix(oldPath)
	if strings.HasPrefix(np, prefix) {
		return filepath.Join(newPath, np[len(prefix):]), true
	}
	return p, false
}

// DisplayName is the base name used in human-readable summaries. The empty
// path and the filesystem root render as "root".
func DisplayName(p string) string {
	p = Normalize(p)
	if p == "" || p == "." || p == string(filepath.Separator) {
		return "root"
	}
	return filepath.Base(p)
}
