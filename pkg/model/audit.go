package model

import "time"

// AuditEventType identifies the type of auditable event.
type AuditEventType string

const (
	EventTypeRecord AuditEventType = "record"
	EventTypeEvict  AuditEventType = "evict"
	EventTypeUndo   AuditEventType = "undo"
	EventTypeRedo   AuditEventType = "redo"
	EventTypeClear  AuditEventType = "clear"
	EventTypeRebind AuditEventType = "rebind"
)

// AuditRecord is a single line in the audit journal (JSONL format).
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event_type"`
	ActionID   string         `json:"action_id,omitempty"`
	Kind       Kind           `json:"kind,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   HashValue      `json:"prev_hash"`
	RecordHash HashValue      `json:"record_hash"`
}
