package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"harvest/internal/storage"
)

// SQLite allows 999 host parameters in older builds; 5 columns per row.
const batchRows = 150

// Repo implements storage.Repository for SQLite.
//
// Timestamps are stored as RFC 3339 text; SQLite has no native time type.
type Repo struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, table: cfg.Table}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// InsertRecords relies on the natural_key primary key and INSERT OR IGNORE.
func (r *Repo) InsertRecords(ctx context.Context, rows []storage.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, part := range storage.Chunks(rows, batchRows) {
		q, args := buildInsertSQL(r.table, part)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", r.table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func buildCreateSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	natural_key TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	run_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	scraped_at TEXT NOT NULL
)`, sqlIdent(table))
}

func buildInsertSQL(table string, rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range storage.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	row := "(" + strings.TrimRight(strings.Repeat("?, ", len(storage.Columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(storage.Columns))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		args = append(args, r.Values()...)
	}
	return b.String(), args
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
