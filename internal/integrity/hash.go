// Package integrity computes the content hashes used for blob addressing and
// the audit hash chain.
package integrity

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
)

// HashBytes returns the hex BLAKE2b-256 digest of data.
func HashBytes(data []byte) model.HashValue {
	sum := blake2b.Sum256(data)
	return model.HashValue(hex.EncodeToString(sum[:]))
}

// HashReader streams r through BLAKE2b-256.
func HashReader(r io.Reader) (model.HashValue, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("init blake2b: %w", err)
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return model.HashValue(hex.EncodeToString(h.Sum(nil))), nil
}

// ValidHash reports whether h looks like a digest produced by HashBytes.
func ValidHash(h model.HashValue) bool {
	if len(h) != 2*blake2b.Size256 {
		return false
	}
	_, err := hex.DecodeString(string(h))
	return err == nil
}

// ComputeRecordHash hashes the canonical JSON of an audit record with its
// RecordHash field cleared.
func ComputeRecordHash(rec model.AuditRecord) (model.HashValue, error) {
	rec.RecordHash = ""
	data, err := canonicalJSON(rec)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	return HashBytes(data), nil
}

// canonicalJSON round-trips v through a generic tree so that every object,
// including struct-derived ones, is emitted with sorted keys.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}
