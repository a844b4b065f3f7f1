// Package audit keeps an optional append-only journal of history events. Each
// JSONL record carries the hash of its predecessor, so edits to the file are
// detectable with Verify.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/integrity"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
)

// FileAppender appends audit records to a JSONL file with hash chain.
type FileAppender struct {
	path string
	now  func() time.Time

	mu       sync.Mutex
	lastHash model.HashValue
	loaded   bool
}

// NewFileAppender creates a new FileAppender. The file is created on the
// first Append.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path, now: time.Now}
}

// Path returns the journal location.
func (a *FileAppender) Path() string { return a.path }

// Append adds a record for one event. details must be JSON-encodable.
func (a *FileAppender) Append(eventType model.AuditEventType, actionID string, kind model.Kind, details map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		last, err := a.readLastHash()
		if err != nil {
			return fmt.Errorf("get last record hash: %w", err)
		}
		a.lastHash = last
		a.loaded = true
	}

	fields := make(map[string]any, len(details)+1)
	for k, v := range details {
		fields[k] = v
	}
	fields["event_id"] = uuid.NewString()

	record := model.AuditRecord{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		ActionID:  actionID,
		Kind:      kind,
		Details:   fields,
		PrevHash:  a.lastHash,
	}
	recordHash, err := integrity.ComputeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	record.RecordHash = recordHash

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}

	a.lastHash = recordHash
	return nil
}

// LastRecordHash returns the hash of the last record in the journal.
func (a *FileAppender) LastRecordHash() (model.HashValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return a.lastHash, nil
	}
	return a.readLastHash()
}

func (a *FileAppender) readLastHash() (model.HashValue, error) {
	records, err := a.readAll()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[len(records)-1].RecordHash, nil
}

// Records returns every record in file order.
func (a *FileAppender) Records() ([]model.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readAll()
}

func (a *FileAppender) readAll() ([]model.AuditRecord, error) {
	file, err := os.Open(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var records []model.AuditRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		var rec model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, errclass.ErrAuditChainBroken.WithMessagef("line %d: malformed record: %v", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return records, nil
}

// Verify walks the chain and reports the first record whose links or hash
// do not match.
func (a *FileAppender) Verify() (int, error) {
	records, err := a.Records()
	if err != nil {
		return 0, err
	}
	var prev model.HashValue
	for i, rec := range records {
		if rec.PrevHash != prev {
			return i, errclass.ErrAuditChainBroken.WithMessagef("record %d: prev_hash does not match previous record", i+1)
		}
		want, err := integrity.ComputeRecordHash(rec)
		if err != nil {
			return i, fmt.Errorf("compute record hash: %w", err)
		}
		if want != rec.RecordHash {
			return i, errclass.ErrAuditChainBroken.WithMessagef("record %d: record_hash mismatch", i+1)
		}
		prev = rec.RecordHash
	}
	return len(records), nil
}
