// Package config resolves scraper settings from defaults, an optional YAML
// file, a .env file and the environment, in increasing priority. Command
// flags are applied by the commands on top of the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration shared by all commands.
type Config struct {
	UserAgent           string        `yaml:"user_agent"`
	CourseBookUserAgent string        `yaml:"coursebook_user_agent"`
	PolitenessDelay     time.Duration `yaml:"politeness_delay"`
	HTTPTimeout         time.Duration `yaml:"http_timeout"`
	MaxBytes            int64         `yaml:"max_bytes"`
	OutDir              string        `yaml:"out_dir"`

	S3      S3Config      `yaml:"s3"`
	Metrics MetricsConfig `yaml:"metrics"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Gemini  GeminiConfig  `yaml:"gemini"`

	Catalog    CatalogConfig    `yaml:"catalog"`
	CourseBook CourseBookConfig `yaml:"coursebook"`
	Trends     TrendsConfig     `yaml:"trends"`
}

type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

type MetricsConfig struct {
	// Backend is "none" or "datadog".
	Backend string `yaml:"backend"`
	// Tags is a comma separated list of extra Datadog tags.
	Tags string `yaml:"tags"`
}

type StorageConfig struct {
	// Kind is empty (disabled), "sqlite", "postgres" or "mssql".
	Kind  string `yaml:"kind"`
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type CatalogConfig struct {
	ProgramURLs []string `yaml:"program_urls"`
}

type CourseBookConfig struct {
	BaseURL    string `yaml:"base_url"`
	ProfileDir string `yaml:"profile_dir"`
	Limit      int    `yaml:"limit"`
}

type TrendsConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		UserAgent:           "UTD-CatalogBot/1.0 (+mailto:team@example.com)",
		CourseBookUserAgent: "UTD-CourseBookBot/1.0 (+mailto:team@example.com)",
		PolitenessDelay:     1200 * time.Millisecond,
		HTTPTimeout:         20 * time.Second,
		MaxBytes:            10 << 20,
		OutDir:              "data",
		S3: S3Config{
			Bucket: "nexai-course-catalog",
			Region: "us-east-1",
		},
		Metrics: MetricsConfig{Backend: "none"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Gemini:  GeminiConfig{Model: "gemini-2.5-flash"},
		Catalog: CatalogConfig{ProgramURLs: []string{
			"https://catalog.utdallas.edu/2023/graduate/programs/jsom/information-technology-management",
			"https://catalog.utdallas.edu/2024/graduate/programs/jsom/business-analytics",
			"https://catalog.utdallas.edu/2025/graduate/programs/ecs/computer-science",
		}},
		CourseBook: CourseBookConfig{
			BaseURL:    "https://coursebook.utdallas.edu/search",
			ProfileDir: ".pw-user",
			Limit:      50,
		},
		Trends: TrendsConfig{BaseURL: "https://trends.utdnebula.com/dashboard"},
	}
}

// LoadDotEnv loads the first existing .env-style file among paths into the
// process environment. Variables already set are kept. Missing files are
// not an error.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
		return nil
	}
	return nil
}

// Load resolves defaults, then file (if non-empty), then getenv.
// A nil getenv means os.Getenv.
func Load(file string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if file != "" {
		fc, err := readFile(file)
		if err != nil {
			return cfg, err
		}
		if err := mergo.Merge(&cfg, fc, mergo.WithOverride); err != nil {
			return cfg, fmt.Errorf("merge %s: %w", file, err)
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readFile(path string) (Config, error) {
	var fc Config
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("USER_AGENT", &cfg.UserAgent)
	str("CB_USER_AGENT", &cfg.CourseBookUserAgent)
	str("OUT_DIR", &cfg.OutDir)
	str("S3_BUCKET", &cfg.S3.Bucket)
	str("AWS_REGION", &cfg.S3.Region)
	str("S3_PREFIX", &cfg.S3.Prefix)
	str("METRICS_BACKEND", &cfg.Metrics.Backend)
	str("METRICS_TAGS", &cfg.Metrics.Tags)
	str("STORAGE_KIND", &cfg.Storage.Kind)
	str("STORAGE_DSN", &cfg.Storage.DSN)
	str("STORAGE_TABLE", &cfg.Storage.Table)
	str("GEMINI_API_KEY", &cfg.Gemini.APIKey)
	str("GEMINI_MODEL", &cfg.Gemini.Model)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	var errs []error
	if v := strings.TrimSpace(getenv("POLITENESS_DELAY")); v != "" {
		d, err := ParseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("POLITENESS_DELAY: %w", err))
		} else {
			cfg.PolitenessDelay = d
		}
	}
	if v := strings.TrimSpace(getenv("HTTP_TIMEOUT")); v != "" {
		d, err := ParseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("HTTP_TIMEOUT: %w", err))
		} else {
			cfg.HTTPTimeout = d
		}
	}
	if v := strings.TrimSpace(getenv("MAX_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_BYTES: %w", err))
		} else {
			cfg.MaxBytes = n
		}
	}
	return errors.Join(errs...)
}

// ParseSeconds accepts a plain number of seconds ("1.2") or a Go duration
// ("1200ms").
func ParseSeconds(s string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.UserAgent) == "" {
		errs = append(errs, errors.New("user_agent is empty"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http_timeout must be > 0"))
	}
	if c.MaxBytes <= 0 {
		errs = append(errs, errors.New("max_bytes must be > 0"))
	}
	if c.PolitenessDelay < 0 {
		errs = append(errs, errors.New("politeness_delay must be >= 0"))
	}
	switch c.Metrics.Backend {
	case "", "none", "datadog":
	default:
		errs = append(errs, fmt.Errorf("unknown metrics backend %q", c.Metrics.Backend))
	}
	switch c.Storage.Kind {
	case "":
	case "sqlite", "postgres", "mssql":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage kind %q needs a dsn", c.Storage.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage kind %q", c.Storage.Kind))
	}
	if c.CourseBook.Limit < 0 {
		errs = append(errs, errors.New("coursebook.limit must be >= 0"))
	}
	return errors.Join(errs...)
}
