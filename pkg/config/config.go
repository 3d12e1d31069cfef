// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all behaviorflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Extraction ExtractionConfig `yaml:"extraction"`
	Input      InputConfig      `yaml:"input"`
	Output     OutputConfig     `yaml:"output"`
	Store      StoreConfig      `yaml:"store"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

// ExtractionConfig controls model extraction.
type ExtractionConfig struct {
	Workers  int    `yaml:"workers"`   // 0 = one per CPU
	TimeUnit string `yaml:"time_unit"` // ns | us | ms | s
	Defaults string `yaml:"defaults"`  // path to default use case catalog
}

// InputConfig describes session files.
type InputConfig struct {
	Format          string `yaml:"format"` // auto | csv | jsonl | xlsx
	SessionColumn   string `yaml:"session_column"`
	UseCaseColumn   string `yaml:"use_case_column"`
	NameColumn      string `yaml:"name_column"`
	StartColumn     string `yaml:"start_column"`
	EndColumn       string `yaml:"end_column"`
	TimestampLayout string `yaml:"timestamp_layout"` // empty = integer or RFC3339
	Delimiter       string `yaml:"delimiter"`
	Sheet           string `yaml:"sheet"`
}

// OutputConfig controls model export.
type OutputConfig struct {
	Format      string `yaml:"format"`      // auto | json | parquet | duckdb | xlsx
	Compression string `yaml:"compression"` // snappy | zstd | gzip | none
	BatchSize   int    `yaml:"batch_size"`
	Dir         string `yaml:"dir"`
}

// StoreConfig selects and configures the model store.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // local | redis | s3
	Local   LocalConfig `yaml:"local"`
	Redis   RedisConfig `yaml:"redis"`
	S3      S3Config    `yaml:"s3"`

	// Secondary, when set, receives a best-effort copy of every saved
	// model and serves loads the primary cannot.
	Secondary *StoreConfig `yaml:"secondary,omitempty"`
}

// LocalConfig for the filesystem store.
type LocalConfig struct {
	Dir string `yaml:"dir"`
}

// RedisConfig for the Redis store.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// S3Config for the S3 store.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// TelemetryConfig for OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// LogConfig for the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// SlogLevel converts the configured level. Unknown levels map to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".behaviorflow")

	return &Config{
		Version: 1,
		Extraction: ExtractionConfig{
			Workers:  0, // auto
			TimeUnit: "ms",
		},
		Input: InputConfig{
			Format:        "auto",
			SessionColumn: "session_id",
			UseCaseColumn: "use_case_id",
			NameColumn:    "use_case_name",
			StartColumn:   "start_time",
			EndColumn:     "end_time",
			Delimiter:     ",",
		},
		Output: OutputConfig{
			Format:      "auto",
			Compression: "snappy",
			BatchSize:   8192,
		},
		Store: StoreConfig{
			Backend: "local",
			Local: LocalConfig{
				Dir: filepath.Join(baseDir, "models"),
			},
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "behaviorflow:models:",
			},
			S3: S3Config{
				Prefix: "models/",
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "behaviorflow",
			Insecure:    true,
			SampleRate:  1.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks values that cannot be recovered from at run time.
func (c *Config) Validate() error {
	switch c.Extraction.TimeUnit {
	case "ns", "us", "ms", "s":
	default:
		return fmt.Errorf("extraction.time_unit: unsupported unit %q", c.Extraction.TimeUnit)
	}
	if c.Extraction.Workers < 0 {
		return fmt.Errorf("extraction.workers: must not be negative")
	}
	if err := c.Store.validate("store"); err != nil {
		return err
	}
	if sec := c.Store.Secondary; sec != nil {
		if err := sec.validate("store.secondary"); err != nil {
			return err
		}
		if sec.Secondary != nil {
			return fmt.Errorf("store.secondary.secondary: stores cannot be chained")
		}
	}
	if len(c.Input.Delimiter) != 1 {
		return fmt.Errorf("input.delimiter: must be a single character")
	}
	return nil
}

func (s *StoreConfig) validate(prefix string) error {
	switch s.Backend {
	case "local", "redis", "s3":
	default:
		return fmt.Errorf("%s.backend: unsupported backend %q", prefix, s.Backend)
	}
	if s.Backend == "s3" && s.S3.Bucket == "" {
		return fmt.Errorf("%s.s3.bucket: required for s3 backend", prefix)
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	search []string // Candidate files, lowest priority first
	paths  []string // Paths that were loaded
}

// NewManager creates a configuration manager searching the standard locations.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
		search: defaultConfigPaths(),
	}
}

// NewManagerWithPaths creates a manager that only considers the given files.
func NewManagerWithPaths(paths ...string) *Manager {
	return &Manager{
		config: Default(),
		search: paths,
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	// Load from paths in order (later overrides earlier)
	for _, path := range m.search {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but fail on broken ones
			if !os.IsNotExist(err) {
				return fmt.Errorf("load %s: %w", path, err)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()

	return m.config.Validate()
}

// LoadFile merges an explicit config file on top of what is loaded.
// Unlike the search paths, the file must exist.
func (m *Manager) LoadFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadFile(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	m.paths = append(m.paths, path)
	return m.config.Validate()
}

// defaultConfigPaths returns config file paths in priority order.
func defaultConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/behaviorflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".behaviorflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".behaviorflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	dst := m.config

	// Extraction
	if src.Extraction.Workers != 0 {
		dst.Extraction.Workers = src.Extraction.Workers
	}
	if src.Extraction.TimeUnit != "" {
		dst.Extraction.TimeUnit = src.Extraction.TimeUnit
	}
	if src.Extraction.Defaults != "" {
		dst.Extraction.Defaults = src.Extraction.Defaults
	}

	// Input
	mergeString(&dst.Input.Format, src.Input.Format)
	mergeString(&dst.Input.SessionColumn, src.Input.SessionColumn)
	mergeString(&dst.Input.UseCaseColumn, src.Input.UseCaseColumn)
	mergeString(&dst.Input.NameColumn, src.Input.NameColumn)
	mergeString(&dst.Input.StartColumn, src.Input.StartColumn)
	mergeString(&dst.Input.EndColumn, src.Input.EndColumn)
	mergeString(&dst.Input.TimestampLayout, src.Input.TimestampLayout)
	mergeString(&dst.Input.Delimiter, src.Input.Delimiter)
	mergeString(&dst.Input.Sheet, src.Input.Sheet)

	// Output
	mergeString(&dst.Output.Format, src.Output.Format)
	mergeString(&dst.Output.Compression, src.Output.Compression)
	mergeString(&dst.Output.Dir, src.Output.Dir)
	if src.Output.BatchSize != 0 {
		dst.Output.BatchSize = src.Output.BatchSize
	}

	// Store
	mergeString(&dst.Store.Backend, src.Store.Backend)
	mergeString(&dst.Store.Local.Dir, src.Store.Local.Dir)
	mergeString(&dst.Store.Redis.Address, src.Store.Redis.Address)
	mergeString(&dst.Store.Redis.Password, src.Store.Redis.Password)
	mergeString(&dst.Store.Redis.Prefix, src.Store.Redis.Prefix)
	if src.Store.Redis.Database != 0 {
		dst.Store.Redis.Database = src.Store.Redis.Database
	}
	if src.Store.Redis.TTL != 0 {
		dst.Store.Redis.TTL = src.Store.Redis.TTL
	}
	mergeString(&dst.Store.S3.Bucket, src.Store.S3.Bucket)
	mergeString(&dst.Store.S3.Prefix, src.Store.S3.Prefix)
	mergeString(&dst.Store.S3.Region, src.Store.S3.Region)
	mergeString(&dst.Store.S3.Endpoint, src.Store.S3.Endpoint)
	if src.Store.S3.UsePathStyle {
		dst.Store.S3.UsePathStyle = true
	}
	if src.Store.Secondary != nil {
		sec := *src.Store.Secondary
		dst.Store.Secondary = &sec
	}

	// Telemetry
	if src.Telemetry.Enabled {
		dst.Telemetry.Enabled = true
	}
	mergeString(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
	mergeString(&dst.Telemetry.ServiceName, src.Telemetry.ServiceName)
	if src.Telemetry.SampleRate != 0 {
		dst.Telemetry.SampleRate = src.Telemetry.SampleRate
	}

	// Log
	mergeString(&dst.Log.Level, src.Log.Level)
	mergeString(&dst.Log.Format, src.Log.Format)
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("BEHAVIORFLOW_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.config.Extraction.Workers = n
		}
	}
	mergeString(&m.config.Extraction.TimeUnit, os.Getenv("BEHAVIORFLOW_TIME_UNIT"))
	mergeString(&m.config.Extraction.Defaults, os.Getenv("BEHAVIORFLOW_DEFAULTS"))
	mergeString(&m.config.Output.Format, os.Getenv("BEHAVIORFLOW_OUTPUT_FORMAT"))
	mergeString(&m.config.Store.Backend, os.Getenv("BEHAVIORFLOW_STORE_BACKEND"))
	mergeString(&m.config.Store.Local.Dir, os.Getenv("BEHAVIORFLOW_STORE_DIR"))
	mergeString(&m.config.Store.Redis.Address, os.Getenv("BEHAVIORFLOW_REDIS_ADDR"))
	mergeString(&m.config.Store.Redis.Password, os.Getenv("BEHAVIORFLOW_REDIS_PASSWORD"))
	mergeString(&m.config.Store.S3.Bucket, os.Getenv("BEHAVIORFLOW_S3_BUCKET"))
	mergeString(&m.config.Store.S3.Region, os.Getenv("BEHAVIORFLOW_S3_REGION"))
	mergeString(&m.config.Store.S3.Endpoint, os.Getenv("BEHAVIORFLOW_S3_ENDPOINT"))

	if v := os.Getenv("BEHAVIORFLOW_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Endpoint = v
		m.config.Telemetry.Enabled = true
	}
	mergeString(&m.config.Log.Level, os.Getenv("BEHAVIORFLOW_LOG_LEVEL"))
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to path, creating parent directories.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
