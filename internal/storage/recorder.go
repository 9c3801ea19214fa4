package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NaturalKey joins trimmed, lower-cased parts with "|".
func NaturalKey(parts ...string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(out, "|")
}

// Recorder buffers rows of one kind for a single run and writes them on
// Flush. All rows share a generated run id.
type Recorder struct {
	repo  Repository
	kind  string
	runID string

	mu   sync.Mutex
	rows []Row
}

func NewRecorder(repo Repository, kind string) *Recorder {
	return &Recorder{repo: repo, kind: kind, runID: uuid.NewString()}
}

func (r *Recorder) RunID() string { return r.runID }

// Add queues v under key. v is stored as JSON. A nil Recorder discards v.
func (r *Recorder) Add(key string, v any, at time.Time) error {
	if r == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, Row{
		NaturalKey: key,
		Kind:       r.kind,
		RunID:      r.runID,
		Payload:    b,
		ScrapedAt:  at,
	})
	return nil
}

// Flush inserts queued rows and clears the queue.
func (r *Recorder) Flush(ctx context.Context) (int64, error) {
	if r == nil {
		return 0, nil
	}
	r.mu.Lock()
	rows := r.rows
	r.rows = nil
	r.mu.Unlock()

	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.repo.InsertRecords(ctx, rows)
	if err != nil {
		return n, fmt.Errorf("insert %s records: %w", r.kind, err)
	}
	return n, nil
}
