package errclass

import (
	"errors"
	"fmt"
)

// HistoryError is a stable, machine-readable error class.
type HistoryError struct {
	Code    string
	Message string
}

func (e *HistoryError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HistoryError) Is(target error) bool {
	t, ok := target.(*HistoryError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new HistoryError with the same Code but a specific message.
func (e *HistoryError) WithMessage(msg string) *HistoryError {
	return &HistoryError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new HistoryError with a formatted message.
func (e *HistoryError) WithMessagef(format string, args ...any) *HistoryError {
	return &HistoryError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Stable error classes.
var (
	ErrActionNotFound   = &HistoryError{Code: "E_ACTION_NOT_FOUND"}
	ErrAlreadyReverted  = &HistoryError{Code: "E_ALREADY_REVERTED"}
	ErrNotReverted      = &HistoryError{Code: "E_NOT_REVERTED"}
	ErrActionBusy       = &HistoryError{Code: "E_ACTION_BUSY"}
	ErrInvalidAction    = &HistoryError{Code: "E_INVALID_ACTION"}
	ErrWriteFailed      = &HistoryError{Code: "E_WRITE_FAILED"}
	ErrBlobMissing      = &HistoryError{Code: "E_BLOB_MISSING"}
	ErrPathInvalid      = &HistoryError{Code: "E_PATH_INVALID"}
	ErrConfigInvalid    = &HistoryError{Code: "E_CONFIG_INVALID"}
	ErrAuditChainBroken = &HistoryError{Code: "E_AUDIT_CHAIN_BROKEN"}
)

// IsInvalidState reports whether err rejects an undo or redo because of the
// action's current state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrAlreadyReverted) ||
		errors.Is(err, ErrNotReverted) ||
		errors.Is(err, ErrActionBusy)
}

// Code extracts the class code from err, or "" when err carries none.
func Code(err error) string {
	var he *HistoryError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}
