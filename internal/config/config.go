// Package config provides the configuration of an enginebench run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/enginebench/internal/errors"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "ENGINEBENCH_"

// Config holds the configuration of a benchmark run.
type Config struct {
	// Libraries are the engine names, in registration order
	Libraries []string `json:"libraries" yaml:"libraries"`

	// DataRoot holds tpch_<size>MB directories; either a local path or s3://bucket/prefix
	DataRoot string `json:"data_root" yaml:"data_root"`

	// CacheDir receives data files fetched from object storage
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// CacheMaxBytes bounds CacheDir; 0 leaves it unbounded
	CacheMaxBytes int64 `json:"cache_max_bytes" yaml:"cache_max_bytes"`

	// LogLevel is a logrus level name
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Benchmark loop configuration
	Bench BenchConfig `json:"bench" yaml:"bench"`

	// Suite selection and sweep parameters
	Suites SuitesConfig `json:"suites" yaml:"suites"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Results persistence configuration
	Results ResultsConfig `json:"results" yaml:"results"`
}

// BenchConfig holds the measurement loop configuration.
type BenchConfig struct {
	// WarmupIterations are run before measuring (default 3)
	WarmupIterations int `json:"warmup_iterations" yaml:"warmup_iterations"`

	// Iterations is the minimum number of measured iterations
	Iterations int `json:"iterations" yaml:"iterations"`

	// MinTime keeps measuring until it has elapsed
	MinTime time.Duration `json:"min_time" yaml:"min_time"`

	VerboseOutput     bool `json:"verbose_output" yaml:"verbose_output"`
	VeryVerboseOutput bool `json:"very_verbose_output" yaml:"very_verbose_output"`

	// EnableConstraints adds TPC-H primary and foreign keys after loading
	EnableConstraints bool `json:"enable_constraints" yaml:"enable_constraints"`
}

// SuitesConfig selects the cases to run.
type SuitesConfig struct {
	TPCH              bool `json:"tpch" yaml:"tpch"`
	TPCHClustered     bool `json:"tpch_clustered" yaml:"tpch_clustered"`
	SelectSelectivity bool `json:"select_selectivity" yaml:"select_selectivity"`
	SelectRandomness  bool `json:"select_randomness" yaml:"select_randomness"`
	LiteralQ6         bool `json:"literal_q6" yaml:"literal_q6"`

	// TPCHSizes are the dataset sizes in MB
	TPCHSizes []int `json:"tpch_sizes" yaml:"tpch_sizes"`

	// SweepRows is the row count of generated sweep tables
	SweepRows int `json:"sweep_rows" yaml:"sweep_rows"`

	// SweepPoints is the number of log-scale points of each sweep
	SweepPoints int `json:"sweep_points" yaml:"sweep_points"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`
}

// ResultsConfig controls where measurements are persisted.
type ResultsConfig struct {
	// DatabasePath is the SQLite results catalog; empty disables it
	DatabasePath string `json:"database_path" yaml:"database_path"`

	// MetricsFile receives the Prometheus text exposition; empty disables it
	MetricsFile string `json:"metrics_file" yaml:"metrics_file"`

	// Upload copies the results catalog to object storage after the run
	Upload bool `json:"upload" yaml:"upload"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataRoot: "../data",
		LogLevel: "info",
		Bench: BenchConfig{
			WarmupIterations: 3,
			Iterations:       10,
			MinTime:          0,
		},
		Suites: SuitesConfig{
			TPCHSizes:   []int{1, 10, 100},
			SweepRows:   10_000_000,
			SweepPoints: 32,
		},
		Storage: StorageConfig{
			Type: "local",
		},
	}
}

// Resolve fills derived paths.
func (c *Config) Resolve() {
	if c.DataRoot == "" {
		c.DataRoot = "../data"
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(os.TempDir(), "enginebench-cache")
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "local"
	}
	if c.Storage.Type == "local" && c.Storage.Path == "" {
		if _, _, remote := c.RemoteDataRoot(); remote {
			c.Storage.Path = filepath.Join(c.CacheDir, "objects")
		} else {
			c.Storage.Path = c.DataRoot
		}
	}
	if c.Bench.VeryVerboseOutput {
		c.Bench.VerboseOutput = true
	}
}

// AnySuiteSelected reports whether at least one suite flag is set.
func (c *Config) AnySuiteSelected() bool {
	s := c.Suites
	return s.TPCH || s.TPCHClustered || s.SelectSelectivity || s.SelectRandomness || s.LiteralQ6
}

// RemoteDataRoot reports whether the data root names an S3 location and
// returns its bucket and prefix.
func (c *Config) RemoteDataRoot() (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(c.DataRoot, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, strings.TrimSuffix(prefix, "/"), true
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Libraries) == 0 {
		return errors.NewConfigError(errors.CodeNoEngines, "at least one --library is required")
	}
	for _, l := range c.Libraries {
		if strings.TrimSpace(l) == "" {
			return errors.NewConfigError(errors.CodeInvalidConfig, "library name must not be empty")
		}
	}

	if c.DataRoot == "" {
		return errors.NewConfigError(errors.CodeInvalidConfig, "data_root is required")
	}
	if bucket, _, ok := c.RemoteDataRoot(); ok && bucket == "" {
		return errors.NewConfigError(errors.CodeInvalidConfig, "data_root s3:// location lacks a bucket")
	}

	if c.CacheMaxBytes < 0 {
		return errors.NewConfigError(errors.CodeInvalidConfig, "cache_max_bytes must not be negative")
	}

	if c.Bench.WarmupIterations < 0 {
		return errors.NewConfigError(errors.CodeInvalidConfig,
			fmt.Sprintf("bench.warmup_iterations must be >= 0, got %d", c.Bench.WarmupIterations))
	}
	if c.Bench.Iterations < 1 {
		return errors.NewConfigError(errors.CodeInvalidConfig,
			fmt.Sprintf("bench.iterations must be >= 1, got %d", c.Bench.Iterations))
	}
	if c.Bench.MinTime < 0 {
		return errors.NewConfigError(errors.CodeInvalidConfig, "bench.min_time must not be negative")
	}

	for _, size := range c.Suites.TPCHSizes {
		if size <= 0 {
			return errors.NewConfigError(errors.CodeInvalidConfig,
				fmt.Sprintf("suites.tpch_sizes must be positive, got %d", size))
		}
	}
	if c.Suites.SweepRows < 1 {
		return errors.NewConfigError(errors.CodeInvalidConfig,
			fmt.Sprintf("suites.sweep_rows must be >= 1, got %d", c.Suites.SweepRows))
	}
	if c.Suites.SweepPoints < 1 {
		return errors.NewConfigError(errors.CodeInvalidConfig,
			fmt.Sprintf("suites.sweep_points must be >= 1, got %d", c.Suites.SweepPoints))
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return errors.NewConfigError(errors.CodeInvalidConfig,
			fmt.Sprintf("invalid storage type: %s (must be local or s3)", c.Storage.Type))
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return errors.NewConfigError(errors.CodeInvalidConfig, "s3.bucket is required when storage type is s3")
	}
	if c.Results.Upload && c.Results.DatabasePath == "" {
		return errors.NewConfigError(errors.CodeInvalidConfig, "results.upload requires results.database_path")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the ENGINEBENCH_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := getenv("LIBRARIES"); v != "" {
		cfg.Libraries = splitList(v)
	}
	if v := getenv("DATA_ROOT"); v != "" {
		cfg.DataRoot = v
	}
	if v := getenv("CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := getenv("CACHE_MAX_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.CacheMaxBytes)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Benchmark loop
	if v := getenv("WARMUP_ITERATIONS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Bench.WarmupIterations)
	}
	if v := getenv("ITERATIONS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Bench.Iterations)
	}
	if v := getenv("MIN_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Bench.MinTime = d
		}
	}
	if v := getenv("ENABLE_CONSTRAINTS"); v != "" {
		cfg.Bench.EnableConstraints = parseBool(v)
	}

	// Suites
	if v := getenv("TPCH_SIZES"); v != "" {
		sizes := make([]int, 0)
		for _, s := range splitList(v) {
			if n, err := strconv.Atoi(s); err == nil {
				sizes = append(sizes, n)
			}
		}
		cfg.Suites.TPCHSizes = sizes
	}
	if v := getenv("SWEEP_ROWS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Suites.SweepRows)
	}
	if v := getenv("SWEEP_POINTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Suites.SweepPoints)
	}

	// Storage configuration
	if v := getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := getenv("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := getenv("S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := getenv("S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := getenv("S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}

	// Results
	if v := getenv("RESULTS_DB"); v != "" {
		cfg.Results.DatabasePath = v
	}
	if v := getenv("METRICS_FILE"); v != "" {
		cfg.Results.MetricsFile = v
	}
	if v := getenv("RESULTS_UPLOAD"); v != "" {
		cfg.Results.Upload = parseBool(v)
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.CacheDir}
	if c.Results.DatabasePath != "" {
		dirs = append(dirs, filepath.Dir(c.Results.DatabasePath))
	}
	if c.Results.MetricsFile != "" {
		dirs = append(dirs, filepath.Dir(c.Results.MetricsFile))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
