// Package metrics is the small metrics facade used by the scrapers.
//
// Components call the Record* helpers; the process picks a Backend once at
// startup with SetBackend. The default backend discards everything.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names understood by backends.
const (
	StepTotal           = "scrape_step_total"
	StepDurationSeconds = "scrape_step_duration_seconds"
	RecordsTotal        = "scrape_records_total"
	DocumentsTotal      = "scrape_documents_total"
	HTTPRequestsTotal   = "scrape_http_requests_total"
	HTTPErrorsTotal     = "scrape_http_errors_total"
	HTTPRequestSeconds  = "scrape_http_request_duration_seconds"
	HTTPResponseSeconds = "scrape_http_response_duration_seconds"
	HTTPDownloadBytes   = "scrape_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b process-wide. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend.
func Flush() error {
	return current().Flush()
}

// RecordHTTP records one HTTP attempt. status is 0 when no response arrived.
// Negative durations or sizes mean "not measured" and are skipped.
func RecordHTTP(job string, status int, err error, request, response time.Duration, size int64) {
	b := current()
	st := "error"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	l := Labels{"job": job, "status": st}

	b.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status == 0 || status >= 400 {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	if request >= 0 {
		b.ObserveHistogram(HTTPRequestSeconds, request.Seconds(), l)
	}
	if response >= 0 {
		b.ObserveHistogram(HTTPResponseSeconds, response.Seconds(), l)
	}
	if size >= 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(size), l)
	}
}

// RecordDocument counts a document outcome ("ok", "skipped", "failed").
func RecordDocument(job, outcome string) {
	current().IncCounter(DocumentsTotal, 1, Labels{"job": job, "outcome": outcome})
}

// RecordRecords counts produced records of a kind.
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordStep records a pipeline step's outcome and duration.
func RecordStep(step string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}
