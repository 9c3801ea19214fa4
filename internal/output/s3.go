package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of the S3 client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes objects to Bucket under Prefix. Appended lines are buffered
// per key and uploaded on Close; Write uploads immediately.
type S3Sink struct {
	api    PutObjectAPI
	Bucket string
	Prefix string

	mu    sync.Mutex
	lines map[string]*bytes.Buffer
}

// NewS3Sink uses the default AWS credential chain for region.
func NewS3Sink(ctx context.Context, bucket, prefix, region string) (*S3Sink, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3SinkWithAPI(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func NewS3SinkWithAPI(api PutObjectAPI, bucket, prefix string) *S3Sink {
	return &S3Sink{
		api:    api,
		Bucket: bucket,
		Prefix: strings.Trim(prefix, "/"),
		lines:  make(map[string]*bytes.Buffer),
	}
}

func (s *S3Sink) key(k string) string {
	if s.Prefix == "" {
		return k
	}
	return path.Join(s.Prefix, k)
}

func (s *S3Sink) AppendLine(_ context.Context, key string, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.lines[key]
	if !ok {
		buf = &bytes.Buffer{}
		s.lines[key] = buf
	}
	buf.Write(bytes.TrimRight(line, "\n"))
	buf.WriteByte('\n')
	return nil
}

func (s *S3Sink) Write(ctx context.Context, key string, data []byte) error {
	return s.put(ctx, key, data)
}

// Close uploads every buffered key, in key order, and reports all failures.
func (s *S3Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	pending := s.lines
	s.lines = make(map[string]*bytes.Buffer)
	s.mu.Unlock()

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := s.put(ctx, k, pending[k].Bytes()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *S3Sink) put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(s.key(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.Bucket, s.key(key), err)
	}
	return nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Upload maps a local file to its destination key.
type Upload struct {
	File string
	Key  string
}

// Mirror copies local files to dst. Missing files are skipped and reported
// together with other failures after all uploads were attempted.
func Mirror(ctx context.Context, dst Sink, files []Upload) error {
	var errs []error
	for _, u := range files {
		b, err := os.ReadFile(u.File)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", u.File, err))
			continue
		}
		if err := dst.Write(ctx, u.Key, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
