// Package store provides the persistence/search collaborator used to keep
// consultation patterns, rollback requests, and notification history across
// restarts. Payloads are free text: loaders re-parse them on startup and
// skip individually malformed records, treating the store as eventually
// consistent.
package store

import (
	"context"
	"time"
)

// Record is one stored free-text payload with search metadata.
type Record struct {
	Category string            `json:"category"`
	Key      string            `json:"key"`
	Payload  string            `json:"payload"`
	Metadata map[string]string `json:"metadata,omitempty"`
	StoredAt time.Time         `json:"storedAt"`
}

// Query selects records by category and an optional keyword matched against
// key and payload. A zero Limit means unlimited.
type Query struct {
	Category string
	Keyword  string
	Limit    int
}

// RecordStore is the keyed store with keyword search. Storing an existing
// (category, key) pair replaces the record.
type RecordStore interface {
	Store(ctx context.Context, rec Record) error
	Search(ctx context.Context, q Query) ([]Record, error)
}
