package model

// Status is the overall outcome of an undo or redo.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// FileError reports one target that could not be written.
type FileError struct {
	Target  string `json:"target"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is returned by undo and redo. Per-file failures never abort the
// batch; they are collected in Errors.
type Result struct {
	Status       Status        `json:"status"`
	FilesUpdated int           `json:"files_updated"`
	Errors       []FileError   `json:"errors,omitempty"`
	Action       ActionSummary `json:"action"`
}

// DeriveStatus maps a success count and failure count to a Status: error when
// nothing succeeded, partial when some targets failed, success otherwise.
func DeriveStatus(updated, failed int) Status {
	switch {
	case failed == 0:
		return StatusSuccess
	case updated == 0:
		return StatusError
	default:
		return StatusPartial
	}
}
