// Package config loads and validates the runtime configuration for the
// remote file handle: part sizing, worker counts, retry schedule, and
// linear-query defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration is the complete tunable configuration for a Handle.
type Configuration struct {
	Global      GlobalConfig      `yaml:"global"`
	Upload      UploadConfig      `yaml:"upload"`
	Download    DownloadConfig    `yaml:"download"`
	Network     NetworkConfig     `yaml:"network"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
}

// GlobalConfig carries settings that apply to every handle.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
	Project     string `yaml:"project"`
}

// UploadConfig controls buffered, parallel multipart upload (C3).
type UploadConfig struct {
	// MaxPartBytes is the buffer threshold that triggers enqueueing a part.
	MaxPartBytes int64 `yaml:"max_part_bytes"`

	// MaxWriteThreads bounds the upload worker pool and the queue depth.
	MaxWriteThreads int `yaml:"max_write_threads"`
}

// DownloadConfig controls the ordered parallel range download (C4).
type DownloadConfig struct {
	DefaultChunkSize   int64 `yaml:"default_chunk_size"`
	DefaultMaxChunks   int   `yaml:"default_max_chunks"`
	DefaultThreadCount int   `yaml:"default_thread_count"`
}

// NetworkConfig holds retry settings for the HTTP caller (C1). The caller
// always uses retry.FixedBackoffConfig and does not read these values.
type NetworkConfig struct {
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig mirrors retry.Config for the parts of it that are
// user-tunable; MaxAttempts/InitialDelay/Multiplier/Jitter map directly
// onto retry.FixedBackoffConfig's fields when left at their defaults.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// MonitoringConfig controls the Prometheus metrics surface.
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig controls metric emission.
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Prometheus   bool              `yaml:"prometheus"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// LoggingConfig controls the slog sink.
type LoggingConfig struct {
	Structured bool   `yaml:"structured"`
	Format     string `yaml:"format"`
}

// NewDefault returns the constants named in the configuration table:
// 100MiB parts, 5 write threads, 5 HTTP attempts with a 2s doubling
// schedule, 16MiB/8-chunk/5-thread linear query defaults.
func NewDefault() *Configuration {
	const mib = 1 << 20
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			MetricsPort: 8080,
		},
		Upload: UploadConfig{
			MaxPartBytes:    100 * mib,
			MaxWriteThreads: 5,
		},
		Download: DownloadConfig{
			DefaultChunkSize:   16 * mib,
			DefaultMaxChunks:   8,
			DefaultThreadCount: 5,
		},
		Network: NetworkConfig{
			Retry: RetryConfig{
				MaxAttempts:  5,
				InitialDelay: 2 * time.Second,
				MaxDelay:     32 * time.Second,
				Multiplier:   2.0,
				Jitter:       false,
			},
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:    true,
				Prometheus: true,
				CustomLabels: map[string]string{
					"service": "rfile",
				},
			},
			Logging: LoggingConfig{
				Structured: true,
				Format:     "json",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file, leaving any field
// absent from the file at its current (default) value.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overlays configuration from environment variables.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("RFILE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("RFILE_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("RFILE_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}
	if val := os.Getenv("RFILE_PROJECT"); val != "" {
		c.Global.Project = val
	}

	if val := os.Getenv("RFILE_MAX_PART_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Upload.MaxPartBytes = n
		}
	}
	if val := os.Getenv("RFILE_MAX_WRITE_THREADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Upload.MaxWriteThreads = n
		}
	}

	if val := os.Getenv("RFILE_DEFAULT_CHUNK_SIZE"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Download.DefaultChunkSize = n
		}
	}
	if val := os.Getenv("RFILE_DEFAULT_MAX_CHUNKS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Download.DefaultMaxChunks = n
		}
	}
	if val := os.Getenv("RFILE_DEFAULT_THREAD_COUNT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Download.DefaultThreadCount = n
		}
	}

	if val := os.Getenv("RFILE_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile persists the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for internally inconsistent values.
func (c *Configuration) Validate() error {
	if c.Upload.MaxPartBytes <= 0 {
		return fmt.Errorf("upload.max_part_bytes must be greater than 0")
	}
	if c.Upload.MaxWriteThreads <= 0 {
		return fmt.Errorf("upload.max_write_threads must be greater than 0")
	}
	if c.Download.DefaultChunkSize <= 0 {
		return fmt.Errorf("download.default_chunk_size must be greater than 0")
	}
	if c.Download.DefaultMaxChunks <= 0 {
		return fmt.Errorf("download.default_max_chunks must be greater than 0")
	}
	if c.Download.DefaultThreadCount <= 0 {
		return fmt.Errorf("download.default_thread_count must be greater than 0")
	}
	if c.Network.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("network.retry.max_attempts must be greater than 0")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}
