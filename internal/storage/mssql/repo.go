package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"harvest/internal/storage"
)

// SQL Server allows 2100 parameters per statement.
const batchRows = 2000 / 5

// Repo implements storage.Repository for SQL Server using
// INSERT ... SELECT ... WHERE NOT EXISTS for idempotence.
type Repo struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, table: cfg.Table}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", r.table, err)
	}
	return nil
}

// InsertRecords keeps the first row per key within the input; NOT EXISTS
// only guards against rows already in the table.
func (r *Repo) InsertRecords(ctx context.Context, rows []storage.Row) (int64, error) {
	var total int64
	for _, part := range storage.Chunks(storage.UniqueRows(rows), batchRows) {
		q, args := buildInsertNotExistsSQL(r.table, part)
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("mssql: insert into %s: %w", r.table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func buildCreateSQL(table string) string {
	return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	natural_key NVARCHAR(450) NOT NULL PRIMARY KEY,
	kind NVARCHAR(64) NOT NULL,
	run_id NVARCHAR(64) NOT NULL,
	payload NVARCHAR(MAX) NOT NULL,
	scraped_at NVARCHAR(40) NOT NULL
)`, strings.ReplaceAll(table, "'", "''"), mssqlTableIdent(table))
}

func buildInsertNotExistsSQL(table string, rows []storage.Row) (string, []any) {
	var b strings.Builder
	cols := storage.Columns

	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") SELECT ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("v.")
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(" FROM (VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	p := 1
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			p++
		}
		b.WriteString(")")
		args = append(args, r.Values()...)
	}

	b.WriteString(") AS v(")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" t WHERE t.[natural_key] = v.[natural_key])")
	return b.String(), args
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part of a schema-qualified name:
// "dbo.records" -> [dbo].[records].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
