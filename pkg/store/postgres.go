package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PGStore persists records into Postgres.
//
// Expected schema:
//
//	CREATE TABLE governance_records (
//	    category  TEXT NOT NULL,
//	    key       TEXT NOT NULL,
//	    payload   TEXT NOT NULL,
//	    metadata  JSONB,
//	    stored_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (category, key)
//	);
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed store over an existing connection.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Open connects to Postgres with the given DSN and verifies connectivity.
func Open(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGStore{db: db}, nil
}

// Ping verifies connectivity.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (p *PGStore) Close() error {
	return p.db.Close()
}

// Store upserts the record for (category, key).
func (p *PGStore) Store(ctx context.Context, rec Record) error {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	q := `
		INSERT INTO governance_records (category, key, payload, metadata, stored_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (category, key)
		DO UPDATE SET payload = EXCLUDED.payload, metadata = EXCLUDED.metadata, stored_at = EXCLUDED.stored_at
	`
	if _, err := p.db.ExecContext(ctx, q, rec.Category, rec.Key, rec.Payload, metaJSON, rec.StoredAt); err != nil {
		return fmt.Errorf("store record %s/%s: %w", rec.Category, rec.Key, err)
	}
	return nil
}

// Search returns records matching the query, ordered by (category, key).
// Rows whose metadata cannot be decoded are returned with nil metadata
// rather than failing the whole search.
func (p *PGStore) Search(ctx context.Context, q Query) ([]Record, error) {
	query := `
		SELECT category, key, payload, metadata, stored_at
		FROM governance_records
		WHERE ($1 = '' OR category = $1)
		  AND ($2 = '' OR key ILIKE '%' || $2 || '%' OR payload ILIKE '%' || $2 || '%')
		ORDER BY category, key
	`
	args := []any{q.Category, q.Keyword}
	if q.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, q.Limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var metaJSON []byte
		if err := rows.Scan(&rec.Category, &rec.Key, &rec.Payload, &metaJSON, &rec.StoredAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if len(metaJSON) > 0 {
			// Tolerate malformed metadata; the payload is still usable.
			_ = json.Unmarshal(metaJSON, &rec.Metadata)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
