// Package replay drives a scripted editing session against an in-memory tag
// store. Each mutating step edits the store the way a request handler
// edits a file, then records the matching action in the history engine.
package replay

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
)

// Step operations.
const (
	OpSet          = "set"
	OpClear        = "clear"
	OpCreateField  = "create-field"
	OpDeleteField  = "delete-field"
	OpSetArt       = "set-art"
	OpRemoveArt    = "remove-art"
	OpBatchSet     = "batch-set"
	OpBatchArt     = "batch-art"
	OpBatchDelete  = "batch-delete"
	OpBatchCreate  = "batch-create"
	OpUndo         = "undo"
	OpRedo         = "redo"
	OpRename       = "rename"
	OpFail         = "fail"
	OpRecover      = "recover"
	OpGC           = "gc"
	OpClearHistory = "clear-history"
)

// FileSpec seeds one file. Art is stored as the raw bytes of the string.
type FileSpec struct {
	Fields map[string]string `yaml:"fields"`
	Art    string            `yaml:"art"`
}

// Step is one scripted operation. Which fields apply depends on Op.
type Step struct {
	Op     string   `yaml:"op"`
	File   string   `yaml:"file,omitempty"`
	Files  []string `yaml:"files,omitempty"`
	Folder string   `yaml:"folder,omitempty"`
	Field  string   `yaml:"field,omitempty"`
	Value  string   `yaml:"value,omitempty"`
	Art    string   `yaml:"art,omitempty"`
	// Ref names the step whose action undo or redo targets, 1-based.
	Ref     int    `yaml:"ref,omitempty"`
	From    string `yaml:"from,omitempty"`
	To      string `yaml:"to,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// Script is a session: initial files and the steps to run in order.
type Script struct {
	Files map[string]FileSpec `yaml:"files"`
	Steps []Step              `yaml:"steps"`
}

// Load reads a script from path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every step carries the arguments its op needs.
func (s *Script) Validate() error {
	for i, st := range s.Steps {
		if err := st.validate(i + 1); err != nil {
			return errclass.ErrInvalidAction.WithMessagef("step %d (%s): %v", i+1, st.Op, err)
		}
	}
	return nil
}

func (st Step) validate(index int) error {
	var missing []string
	need := func(name, v string) {
		if v == "" {
			missing = append(missing, name)
		}
	}
	switch st.Op {
	case OpSet, OpCreateField, OpClear, OpDeleteField:
		need("file", st.File)
		need("field", st.Field)
	case OpSetArt:
		need("file", st.File)
		need("art", st.Art)
	case OpRemoveArt, OpFail, OpRecover:
		need("file", st.File)
	case OpBatchSet, OpBatchDelete:
		need("folder", st.Folder)
		need("field", st.Field)
	case OpBatchArt:
		need("folder", st.Folder)
		need("art", st.Art)
	case OpBatchCreate:
		need("field", st.Field)
		if len(st.Files) == 0 {
			missing = append(missing, "files")
		}
	case OpUndo, OpRedo:
		if st.Ref < 1 || st.Ref >= index {
			return fmt.Errorf("ref must name an earlier step (got %d)", st.Ref)
		}
	case OpRename:
		need("from", st.From)
		need("to", st.To)
	case OpGC, OpClearHistory:
	default:
		return fmt.Errorf("unknown op")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
