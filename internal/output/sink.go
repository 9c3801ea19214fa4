// Package output writes scraper results to a local directory or an S3 bucket
// under a shared key layout.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink stores objects addressed by slash-separated keys.
type Sink interface {
	// AppendLine adds one line (a newline is added) to the object at key.
	AppendLine(ctx context.Context, key string, line []byte) error
	// Write replaces the object at key.
	Write(ctx context.Context, key string, data []byte) error
	// Close flushes buffered data.
	Close(ctx context.Context) error
}

// LocalSink writes under Root, creating directories as needed.
type LocalSink struct {
	Root string

	mu sync.Mutex
}

func NewLocalSink(root string) *LocalSink { return &LocalSink{Root: root} }

// Path returns the file path for key.
func (s *LocalSink) Path(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

func (s *LocalSink) AppendLine(_ context.Context, key string, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(bytes.TrimRight(line, "\n"), '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write replaces key atomically (temp file + rename).
func (s *LocalSink) Write(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.Path(key)
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *LocalSink) Close(context.Context) error { return nil }

// WriteJSONL replaces key with one JSON line per record.
func WriteJSONL[T any](ctx context.Context, sink Sink, key string, records []T) error {
	var buf bytes.Buffer
	for i, r := range records {
		b, err := marshal(r, false)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	if err := sink.Write(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// WriteJSON writes v indented, without HTML escaping.
func WriteJSON(ctx context.Context, sink Sink, key string, v any) error {
	b, err := marshal(v, true)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := sink.Write(ctx, key, b); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// AppendJSON appends v as a single JSON line.
func AppendJSON(ctx context.Context, sink Sink, key string, v any) error {
	b, err := marshal(v, false)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return sink.AppendLine(ctx, key, b)
}

func marshal(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DateStamp formats t as UTC YYYYMMDD.
func DateStamp(t time.Time) string { return t.UTC().Format("20060102") }

// ISOTime formats t as UTC RFC 3339 with second precision.
func ISOTime(t time.Time) string { return t.UTC().Truncate(time.Second).Format(time.RFC3339) }
