package audit_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/audit"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
)

func TestFileAppender_AppendCreatesJSONL(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	appender := audit.NewFileAppender(logPath)

	details := map[string]any{"files": 2}
	require.NoError(t, appender.Append(model.EventTypeRecord, "a1", model.KindBatchValueChange, details))
	assert.NotContains(t, details, "event_id", "caller map must not be modified")

	records, err := appender.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.EventTypeRecord, records[0].EventType)
	assert.Equal(t, "a1", records[0].ActionID)
	assert.Equal(t, model.KindBatchValueChange, records[0].Kind)
	assert.Equal(t, float64(2), records[0].Details["files"])
	assert.NotEmpty(t, records[0].Details["event_id"])
}

func TestFileAppender_HashChain(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)

	require.NoError(t, appender.Append(model.EventTypeRecord, "a1", model.KindValueChange, nil))
	require.NoError(t, appender.Append(model.EventTypeUndo, "a1", model.KindValueChange, map[string]any{"status": "success"}))

	records, err := appender.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.HashValue(""), records[0].PrevHash)
	assert.Equal(t, records[0].RecordHash, records[1].PrevHash)

	last, err := appender.LastRecordHash()
	require.NoError(t, err)
	assert.Equal(t, records[1].RecordHash, last)

	n, err := appender.Verify()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFileAppender_ResumesChain(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, audit.NewFileAppender(logPath).Append(model.EventTypeClear, "", "", nil))

	second := audit.NewFileAppender(logPath)
	require.NoError(t, second.Append(model.EventTypeRebind, "", "", map[string]any{"old": "/a", "new": "/b"}))

	n, err := second.Verify()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFileAppender_ConcurrentAppends(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, appender.Append(model.EventTypeRecord, "", model.KindValueChange, nil))
		}()
	}
	wg.Wait()

	n, err := appender.Verify()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestFileAppender_VerifyDetectsTampering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)
	require.NoError(t, appender.Append(model.EventTypeRecord, "a1", model.KindValueChange, nil))
	require.NoError(t, appender.Append(model.EventTypeEvict, "a1", model.KindValueChange, nil))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"action_id":"a1"`, `"action_id":"zz"`, 1)
	require.NoError(t, os.WriteFile(logPath, []byte(tampered), 0644))

	idx, err := audit.NewFileAppender(logPath).Verify()
	assert.True(t, errors.Is(err, errclass.ErrAuditChainBroken))
	assert.Equal(t, 0, idx)
}

func TestFileAppender_MissingFile(t *testing.T) {
	appender := audit.NewFileAppender(filepath.Join(t.TempDir(), "none.jsonl"))
	records, err := appender.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
	n, err := appender.Verify()
	require.NoError(t, err)
	assert.Zero(t, n)
}
