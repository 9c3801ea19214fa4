// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Scrape runs range from a few seconds (one program page) to hours (a full
// CourseBook pass behind a manual login), so the backend:
//   - buffers counters and histogram samples in memory under a mutex
//   - flushes on a ticker (default once per minute)
//   - flushes one final time on Close
//
// Histograms are submitted as percentile gauges (p50, p90, p95, p99, max,
// samples). Unknown metric names are ignored.
//
// If the process is killed with SIGKILL/OOM, Close won't run and the tail of
// the buffer is lost.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"harvest/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "harvest".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "team:data"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend needs.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// metricSpec maps a facade metric name to its Datadog name and the labels
// that become tags.
type metricSpec struct {
	ddName string
	tags   []string
}

var counterSpecs = map[string]metricSpec{
	metrics.StepTotal:         {"harvest.step.total", []string{"step", "status"}},
	metrics.RecordsTotal:      {"harvest.records.total", []string{"kind"}},
	metrics.DocumentsTotal:    {"harvest.documents.total", []string{"job", "outcome"}},
	metrics.HTTPRequestsTotal: {"harvest.http.requests.total", []string{"job", "status"}},
	metrics.HTTPErrorsTotal:   {"harvest.http.errors.total", []string{"job", "status"}},
}

var histogramSpecs = map[string]metricSpec{
	metrics.StepDurationSeconds: {"harvest.step.duration_seconds", []string{"step", "status"}},
	metrics.HTTPRequestSeconds:  {"harvest.http.request_duration_seconds", []string{"status"}},
	metrics.HTTPResponseSeconds: {"harvest.http.response_duration_seconds", []string{"status"}},
	metrics.HTTPDownloadBytes:   {"harvest.http.download_bytes", []string{"status"}},
}

// seriesKey identifies one buffered series: Datadog name plus its extra tags
// joined with "\x00".
type seriesKey struct {
	metric string
	tags   string
}

func newSeriesKey(spec metricSpec, labels metrics.Labels) seriesKey {
	parts := make([]string, 0, len(spec.tags))
	for _, name := range spec.tags {
		v := strings.TrimSpace(labels[name])
		if v == "" {
			v = "unknown"
		}
		parts = append(parts, name+":"+v)
	}
	return seriesKey{metric: spec.ddName, tags: strings.Join(parts, "\x00")}
}

func (k seriesKey) tagList() []string {
	if k.tags == "" {
		return nil
	}
	return strings.Split(k.tags, "\x00")
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu       sync.Mutex
	counters map[seriesKey]float64
	samples  map[seriesKey][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
// Credentials come from DD_API_KEY / DD_SITE as read by the client.
//
// Network errors surface from Flush, not from NewBackend.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, wrapInitErr(fmt.Errorf("nil context"))
	}

	job := opts.JobName
	if job == "" {
		job = "harvest"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counters:   make(map[seriesKey]float64),
		samples:    make(map[seriesKey][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush.
// Calling Close twice panics.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	spec, ok := counterSpecs[name]
	if !ok {
		return
	}
	if name == metrics.RecordsTotal && labels["kind"] == "" {
		return
	}
	k := newSeriesKey(spec, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[k] += delta
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	spec, ok := histogramSpecs[name]
	if !ok {
		return
	}
	k := newSeriesKey(spec, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples[k] = append(b.samples[k], value)
}

// snapshotAndReset detaches the current buffers under the lock.
func (b *Backend) snapshotAndReset() (map[seriesKey]float64, map[seriesKey][]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, s := b.counters, b.samples
	b.counters = make(map[seriesKey]float64)
	b.samples = make(map[seriesKey][]float64)
	return c, s
}

// Flush submits buffered metrics and resets local buffers. Buffers are reset
// even when submission fails. Returns nil when there is nothing to submit.
func (b *Backend) Flush() error {
	counters, samples := b.snapshotAndReset()
	if len(counters) == 0 && len(samples) == 0 {
		return nil
	}

	series := b.buildSeries(counters, samples, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries is pure; output is sorted by metric name then tags so payloads
// are stable.
func (b *Backend) buildSeries(counters map[seriesKey]float64, samples map[seriesKey][]float64, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(counters)+6*len(samples))

	for _, k := range sortedKeys(counters) {
		v := counters[k]
		if v == 0 {
			continue
		}
		series = append(series, countSeries(k.metric, v, withTags(b.baseTags, k.tagList()...), nowUnix))
	}
	for _, k := range sortedKeys(samples) {
		addPercentiles(&series, withTags(b.baseTags, k.tagList()...), k.metric, samples[k], nowUnix)
	}

	sort.SliceStable(series, func(i, j int) bool {
		if series[i].Metric != series[j].Metric {
			return series[i].Metric < series[j].Metric
		}
		return strings.Join(series[i].Tags, ",") < strings.Join(series[j].Tags, ",")
	})
	return series
}

func sortedKeys[V any](m map[seriesKey]V) []seriesKey {
	keys := make([]seriesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].metric != keys[j].metric {
			return keys[i].metric < keys[j].metric
		}
		return keys[i].tags < keys[j].tags
	})
	return keys
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges. It sorts a copy
// and does nothing for an empty sample set.
func addPercentiles(series *[]datadogV2.MetricSeries, tags []string, metricPrefix string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	return s[min(max(idx, 0), n-1)]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:data".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
