// Package storage persists scraped records into a SQL table so repeated runs
// can be loaded idempotently. Backends register themselves by kind.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "scraped_records"

// Columns is the fixed column order of the record table.
var Columns = []string{"natural_key", "kind", "run_id", "payload", "scraped_at"}

// Config selects and configures a backend.
//
// Kind must match a registered backend ("sqlite", "postgres", "mssql").
// DSN is passed through unchanged; validation is backend-specific.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// Row is one stored record. NaturalKey is unique across the table; a second
// insert with the same key is ignored.
type Row struct {
	NaturalKey string
	Kind       string
	RunID      string
	Payload    []byte
	ScrapedAt  time.Time
}

// Values returns the row in Columns order. Timestamps are stored as UTC
// RFC 3339 text so every backend round-trips them the same way.
func (r Row) Values() []any {
	return []any{r.NaturalKey, r.Kind, r.RunID, string(r.Payload), r.ScrapedAt.UTC().Format(time.RFC3339Nano)}
}

// Repository is the record sink every backend implements in its own dialect
// (SQLite OR IGNORE, Postgres ON CONFLICT, SQL Server NOT EXISTS).
type Repository interface {
	// Close releases backend resources. Call once.
	Close()
	// EnsureTable creates the record table if it does not exist.
	EnsureTable(ctx context.Context) error
	// InsertRecords inserts rows, skipping keys already stored, and returns
	// the number of rows actually inserted.
	InsertRecords(ctx context.Context, rows []Row) (int64, error)
}

// Factory builds a Repository for a Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It is meant to be called
// from a backend package's init.
//
// Panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists registered backends, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds the Repository registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// UniqueRows keeps the first row per NaturalKey, preserving order. Backends
// whose insert does not collapse duplicates inside one statement use it.
func UniqueRows(rows []Row) []Row {
	seen := make(map[string]struct{}, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.NaturalKey]; ok {
			continue
		}
		seen[r.NaturalKey] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Chunks splits rows into batches of at most size rows.
func Chunks(rows []Row, size int) [][]Row {
	if size < 1 {
		size = 1
	}
	var out [][]Row
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
