// Package app holds the setup every command shares: configuration,
// logging, the metrics backend, output sinks and the optional record store.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"harvest/internal/config"
	"harvest/internal/logging"
	"harvest/internal/metrics"
	"harvest/internal/metrics/datadog"
	"harvest/internal/output"
	"harvest/internal/storage"

	// register all backends with the storage factory.
	_ "harvest/internal/storage/all"
)

// Flags are the options common to all commands. Empty values leave the
// resolved configuration unchanged.
type Flags struct {
	ConfigFile     string
	EnvFile        string
	OutDir         string
	LogLevel       string
	LogFormat      string
	MetricsBackend string
	StorageKind    string
	StorageDSN     string
	// S3 mirrors written outputs to the configured bucket.
	S3 bool
}

// Register binds the common flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.ConfigFile, "config", "", "optional YAML config file")
	fs.StringVar(&f.EnvFile, "env-file", ".env", "optional .env file")
	fs.StringVar(&f.OutDir, "out", "", "output directory (default from config, \"data\")")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFormat, "log-format", "", "log format (text, json)")
	fs.StringVar(&f.MetricsBackend, "metrics-backend", "", "metrics backend to use (datadog, none)")
	fs.StringVar(&f.StorageKind, "storage-kind", "", "record store (sqlite, postgres, mssql); empty disables it")
	fs.StringVar(&f.StorageDSN, "storage-dsn", "", "record store DSN")
	fs.BoolVar(&f.S3, "s3", false, "mirror outputs to S3")
}

// LoadConfig resolves the configuration and applies f on top. Any error
// here is a usage error.
func LoadConfig(f Flags, getenv func(string) string) (config.Config, error) {
	if f.EnvFile != "" {
		if err := config.LoadDotEnv(f.EnvFile); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load(f.ConfigFile, getenv)
	if err != nil {
		return cfg, err
	}

	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.OutDir, f.OutDir)
	set(&cfg.Log.Level, f.LogLevel)
	set(&cfg.Log.Format, f.LogFormat)
	set(&cfg.Metrics.Backend, f.MetricsBackend)
	set(&cfg.Storage.Kind, f.StorageKind)
	set(&cfg.Storage.DSN, f.StorageDSN)

	return cfg, cfg.Validate()
}

// Env is the running state of one command.
type Env struct {
	Config config.Config
	Log    *logrus.Logger
	// Local always receives the outputs.
	Local *output.LocalSink
	// Remote is the S3 mirror, nil unless requested.
	Remote output.Sink
	// Store is the record store, nil when disabled.
	Store storage.Repository

	closers []func()
}

// Start builds the logger, selects the metrics backend and opens the sinks
// and record store for job. Call Close when done.
func Start(ctx context.Context, job string, cfg config.Config, s3 bool, logOut io.Writer) (*Env, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return nil, err
	}
	e := &Env{Config: cfg, Log: log, Local: output.NewLocalSink(cfg.OutDir)}

	e.startMetrics(ctx, job)

	if s3 {
		sink, err := output.NewS3Sink(ctx, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Remote = sink
		e.closers = append(e.closers, func() {
			if err := sink.Close(context.Background()); err != nil {
				log.WithError(err).Error("s3: flush failed")
			}
		})
	}

	if cfg.Storage.Kind != "" {
		repo, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN, Table: cfg.Storage.Table})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Kind, err)
		}
		if err := repo.EnsureTable(ctx); err != nil {
			repo.Close()
			e.Close()
			return nil, fmt.Errorf("ensure record table: %w", err)
		}
		e.Store = repo
		e.closers = append(e.closers, repo.Close)
	}

	return e, nil
}

func (e *Env) startMetrics(ctx context.Context, job string) {
	switch name := e.Config.Metrics.Backend; name {
	case "datadog":
		tags := datadog.ParseTagsCSV(e.Config.Metrics.Tags)
		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			e.Log.WithError(err).Warn("metrics: failed to init datadog backend; using nop")
			return
		}
		e.Log.WithFields(logrus.Fields{"backend": name, "job_name": job, "tags": tags}).Debug("metrics enabled")
		metrics.SetBackend(b)
		e.closers = append(e.closers, func() {
			if err := b.Close(); err != nil {
				e.Log.WithError(err).Warn("metrics: datadog close/flush error")
			}
		})

	case "", "none":
		e.Log.WithField("backend", name).Debug("metrics disabled")

	default:
		e.Log.WithField("backend", name).Warn("metrics: unknown backend; metrics disabled")
	}
}

// Recorder returns a recorder for kind, or nil when no store is open.
// A nil recorder accepts and drops rows.
func (e *Env) Recorder(kind string) *storage.Recorder {
	if e.Store == nil {
		return nil
	}
	return storage.NewRecorder(e.Store, kind)
}

// Flush writes rec's rows and logs how many were new.
func (e *Env) Flush(ctx context.Context, rec *storage.Recorder) error {
	if rec == nil {
		return nil
	}
	n, err := rec.Flush(ctx)
	if err != nil {
		return err
	}
	e.Log.WithFields(logrus.Fields{"run_id": rec.RunID(), "inserted": n}).Info("stored records")
	return nil
}

// Publish copies the local objects at keys to the S3 mirror, if any.
func (e *Env) Publish(ctx context.Context, keys ...string) error {
	if e.Remote == nil || len(keys) == 0 {
		return nil
	}
	files := make([]output.Upload, 0, len(keys))
	for _, k := range keys {
		files = append(files, output.Upload{File: e.Local.Path(k), Key: k})
	}
	if err := output.Mirror(ctx, e.Remote, files); err != nil {
		return fmt.Errorf("mirror to s3: %w", err)
	}
	e.Log.WithField("objects", len(files)).Info("mirrored outputs to s3")
	return nil
}

// Close releases everything Start opened, newest first.
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// Interrupted reports whether err only means the run was cancelled.
func Interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
