package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	inserted [][]Row
	err      error
}

func (f *fakeRepo) Close()                            {}
func (f *fakeRepo) EnsureTable(context.Context) error { return nil }
func (f *fakeRepo) InsertRecords(_ context.Context, rows []Row) (int64, error) {
	f.inserted = append(f.inserted, rows)
	return int64(len(rows)), f.err
}

func TestRegistry(t *testing.T) {
	// mutates package registry; not parallel
	var got Config
	Register("fake-test", func(_ context.Context, cfg Config) (Repository, error) {
		got = cfg
		return &fakeRepo{}, nil
	})

	_, err := New(context.Background(), Config{Kind: "fake-test", DSN: "x"})
	require.NoError(t, err)
	assert.Equal(t, Config{Kind: "fake-test", DSN: "x", Table: DefaultTable}, got)
	assert.Contains(t, Kinds(), "fake-test")

	_, err = New(context.Background(), Config{})
	assert.Error(t, err)
	_, err = New(context.Background(), Config{Kind: "nope"})
	assert.Error(t, err)

	assert.Panics(t, func() { Register("fake-test", func(context.Context, Config) (Repository, error) { return nil, nil }) })
	assert.Panics(t, func() { Register("", func(context.Context, Config) (Repository, error) { return nil, nil }) })
	assert.Panics(t, func() { Register("nil-factory", nil) })
}

func TestUniqueRowsAndChunks(t *testing.T) {
	t.Parallel()

	rows := []Row{{NaturalKey: "a", RunID: "1"}, {NaturalKey: "b"}, {NaturalKey: "a", RunID: "2"}, {NaturalKey: "c"}}
	u := UniqueRows(rows)
	require.Len(t, u, 3)
	assert.Equal(t, "1", u[0].RunID)

	chunks := Chunks(u, 2)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 1)
	assert.Empty(t, Chunks(nil, 10))
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	rec := NewRecorder(repo, "course")
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, rec.Add(NaturalKey(" CS 6313 ", "https://X"), map[string]string{"id": "CS 6313"}, at))
	n, err := rec.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.Len(t, repo.inserted, 1)
	row := repo.inserted[0][0]
	assert.Equal(t, "cs 6313|https://x", row.NaturalKey)
	assert.Equal(t, "course", row.Kind)
	assert.Equal(t, rec.RunID(), row.RunID)
	assert.JSONEq(t, `{"id":"CS 6313"}`, string(row.Payload))
	assert.Equal(t, []any{"cs 6313|https://x", "course", rec.RunID(), `{"id":"CS 6313"}`, "2025-01-01T00:00:00Z"}, row.Values())

	n, err = rec.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "queue cleared after flush")

	repo.err = errors.New("boom")
	require.NoError(t, rec.Add("k", 1, at))
	_, err = rec.Flush(context.Background())
	assert.ErrorContains(t, err, "insert course records")
}
