// Package uuidutil generates identifiers for actions and journal records.
package uuidutil

import "github.com/google/uuid"

// NewV7 returns a time-ordered RFC 9562 UUID v7 string.
func NewV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
