package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"harvest/internal/storage"
)

// 5 columns per row keeps a batch well under the 65535 parameter limit.
const batchRows = 1000

// Repo implements storage.Repository for Postgres. Payloads are JSONB and
// scraped_at is TIMESTAMPTZ.
type Repo struct {
	pool  *pgxpool.Pool
	table string
}

func init() {
	storage.Register("postgres", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool, table: cfg.Table}, nil
}

func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) EnsureTable(ctx context.Context) error {
	schemaSQL, tableSQL := buildCreateSQL(r.table)
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", r.table, err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// InsertRecords uses ON CONFLICT (natural_key) DO NOTHING, which also
// collapses duplicate keys inside one batch.
func (r *Repo) InsertRecords(ctx context.Context, rows []storage.Row) (int64, error) {
	var total int64
	for _, part := range storage.Chunks(storage.UniqueRows(rows), batchRows) {
		q, args := buildInsertSQL(r.table, part)
		cmd, err := r.pool.Exec(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", r.table, err)
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

func buildCreateSQL(table string) (schemaSQL, tableSQL string) {
	if schema, _ := splitQualifiedName(table); schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema)
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	natural_key TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	run_id UUID NOT NULL,
	payload JSONB NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL
)`, pgTableIdent(table))
	return schemaSQL, tableSQL
}

// buildInsertSQL is pure so placeholder numbering can be tested without a
// database.
func buildInsertSQL(table string, rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")
	for i, c := range storage.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(storage.Columns))
	p := 1
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range storage.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			p++
		}
		b.WriteString(")")
		args = append(args, r.NaturalKey, r.Kind, r.RunID, r.Payload, r.ScrapedAt.UTC())
	}
	b.WriteString(" ON CONFLICT (")
	b.WriteString(pgIdent("natural_key"))
	b.WriteString(") DO NOTHING")
	return b.String(), args
}

func splitQualifiedName(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}
