// Package config loads fetcher settings from a YAML file overlaid with
// GOES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/goes-fetcher/internal/query"
	"github.com/withObsrvr/goes-fetcher/internal/source"
	"github.com/withObsrvr/goes-fetcher/internal/transform"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	Query      QueryConfig      `yaml:"query"`
	Source     source.Config    `yaml:"source"`
	Processing ProcessingConfig `yaml:"processing"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type QueryConfig struct {
	Satellite  string    `yaml:"satellite"`
	Product    string    `yaml:"product"`
	Sector     string    `yaml:"sector"`
	StagingDir string    `yaml:"staging_dir"`
	Start      time.Time `yaml:"start"`
	End        time.Time `yaml:"end"`
	Verbose    bool      `yaml:"verbose"`
}

type ProcessingConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Transform string            `yaml:"transform"`
	Args      map[string]string `yaml:"args"`
	Prefix    string            `yaml:"prefix"`
	OutputDir string            `yaml:"output_dir"`
	RetainRaw bool              `yaml:"retain_raw"`
}

type ExecutionConfig struct {
	Workers               int    `yaml:"workers"`
	Isolation             string `yaml:"isolation"` // "process" | "scoped"
	SampleSize            int    `yaml:"sample_size"`
	RunLog                string `yaml:"run_log"`
	Label                 string `yaml:"label"`
	RaiseOnTransformError bool   `yaml:"raise_on_transform_error"`
}

type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	Namespace   string `yaml:"namespace"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Query: QueryConfig{
			Satellite:  "16",
			Product:    "ABI-L2-AOD",
			Sector:     "C",
			StagingDir: "./data/raw",
		},
		Source: source.Config{
			Backend: "s3",
			Region:  source.DefaultRegion,
		},
		Processing: ProcessingConfig{
			Transform: "copy",
			OutputDir: "./data/processed",
		},
		Execution: ExecutionConfig{
			Workers:    3,
			Isolation:  "process",
			SampleSize: 10,
		},
		Catalog: CatalogConfig{
			Namespace: "goes",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}
}

// LoadDotEnv loads .env from the working directory if present. Variables
// already set in the environment win.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file", "error", err)
	}
}

// Load reads path (optional) over the defaults and applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Query.Satellite = getenvDefault("GOES_SATELLITE", c.Query.Satellite)
	c.Query.Product = getenvDefault("GOES_PRODUCT", c.Query.Product)
	c.Query.Sector = getenvDefault("GOES_SECTOR", c.Query.Sector)
	c.Query.StagingDir = getenvDefault("GOES_STAGING_DIR", c.Query.StagingDir)

	var err error
	if c.Query.Start, err = getenvTime("GOES_START", c.Query.Start); err != nil {
		return err
	}
	if c.Query.End, err = getenvTime("GOES_END", c.Query.End); err != nil {
		return err
	}

	c.Source.Backend = getenvDefault("GOES_SOURCE_BACKEND", c.Source.Backend)
	c.Source.Region = getenvDefault("GOES_SOURCE_REGION", c.Source.Region)
	c.Source.Endpoint = getenvDefault("GOES_SOURCE_ENDPOINT", c.Source.Endpoint)
	c.Source.Root = getenvDefault("GOES_SOURCE_ROOT", c.Source.Root)
	if c.Source.MaxOps, err = getenvInt("GOES_SOURCE_MAX_OPS", c.Source.MaxOps); err != nil {
		return err
	}

	if v := os.Getenv("GOES_PROCESSING_ENABLED"); v != "" {
		c.Processing.Enabled = v == "true"
	}
	c.Processing.Transform = getenvDefault("GOES_TRANSFORM", c.Processing.Transform)
	c.Processing.Prefix = getenvDefault("GOES_OUTPUT_PREFIX", c.Processing.Prefix)
	c.Processing.OutputDir = getenvDefault("GOES_OUTPUT_DIR", c.Processing.OutputDir)
	if v := os.Getenv("GOES_RETAIN_RAW"); v != "" {
		c.Processing.RetainRaw = v == "true"
	}

	if c.Execution.Workers, err = getenvInt("GOES_WORKERS", c.Execution.Workers); err != nil {
		return err
	}
	c.Execution.Isolation = getenvDefault("GOES_ISOLATION", c.Execution.Isolation)
	if c.Execution.SampleSize, err = getenvInt("GOES_SAMPLE_SIZE", c.Execution.SampleSize); err != nil {
		return err
	}
	c.Execution.RunLog = getenvDefault("GOES_RUN_LOG", c.Execution.RunLog)
	c.Execution.Label = getenvDefault("GOES_RUN_LABEL", c.Execution.Label)

	c.Catalog.PostgresDSN = getenvDefault("GOES_CATALOG_DSN", c.Catalog.PostgresDSN)
	c.Catalog.Namespace = getenvDefault("GOES_CATALOG_NAMESPACE", c.Catalog.Namespace)

	c.Logging.Format = getenvDefault("GOES_LOG_FORMAT", c.Logging.Format)
	c.Logging.Level = getenvDefault("GOES_LOG_LEVEL", c.Logging.Level)

	if v := os.Getenv("GOES_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = v == "true"
	}
	c.Metrics.Address = getenvDefault("GOES_METRICS_ADDR", c.Metrics.Address)
	return nil
}

// Validate checks settings that are not covered by query validation,
// including the query time window.
func (c *Config) Validate() error {
	if c.Query.Start.IsZero() || c.Query.End.IsZero() {
		return fmt.Errorf("%w: query start and end", ErrMissingRequired)
	}
	return c.ValidateSettings()
}

// ValidateSettings is Validate without the time window, for commands that
// only look at the product layout.
func (c *Config) ValidateSettings() error {
	switch c.Execution.Isolation {
	case "process", "scoped":
	default:
		return fmt.Errorf("invalid isolation %q: must be process or scoped", c.Execution.Isolation)
	}
	if c.Execution.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Execution.Workers)
	}
	if c.Processing.Enabled && c.Processing.Transform == "" {
		return fmt.Errorf("%w: processing.transform", ErrMissingRequired)
	}
	return nil
}

// SessionQuery builds the session query. Processing transforms are resolved from
// the transform registry.
func (c *Config) SessionQuery() (query.Query, error) {
	q := query.Query{
		Satellite:  c.Query.Satellite,
		Product:    c.Query.Product,
		Sector:     c.Query.Sector,
		StagingDir: c.Query.StagingDir,
		Start:      c.Query.Start.UTC(),
		End:        c.Query.End.UTC(),
		Processing: query.Disabled{},
		Verbose:    c.Query.Verbose,
	}

	if c.Processing.Enabled {
		fn, err := transform.Bind(c.Processing.Transform, c.Processing.Args)
		if err != nil {
			return query.Query{}, err
		}
		q.Processing = query.Enabled{
			Transform: fn,
			Prefix:    c.Processing.Prefix,
			OutputDir: c.Processing.OutputDir,
			RetainRaw: c.Processing.RetainRaw,
		}
	}

	if err := q.Validate(); err != nil {
		return query.Query{}, err
	}
	return q, nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getenvTime(key string, def time.Time) (time.Time, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", key, err)
	}
	return t, nil
}

// ParseTime accepts RFC 3339 or "2006-01-02 15:04[:05]", read as UTC.
func ParseTime(v string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", v)
}
