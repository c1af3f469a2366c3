// Package config provides configuration structs and utilities for scribesync.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
)

// Config represents the root configuration for scribesync.
type Config struct {
	Storage     StorageConfig          `yaml:"storage"`
	Remote      RemoteConfig           `yaml:"remote"`
	Network     NetworkConfig          `yaml:"network"`
	Coordinator CoordinatorConfig      `yaml:"coordinator"`
	Queues      map[string]QueueConfig `yaml:"queues"`
	Spool       SpoolConfig            `yaml:"spool"`
	Logging     LoggingConfig          `yaml:"logging"`
	Tracing     TracingConfig          `yaml:"tracing"`
}

// StorageConfig holds configuration for the local outbox database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig holds configuration for the upload service.
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TokenEncrypted string        `yaml:"token_encrypted,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxUploadRate  float64       `yaml:"max_uploads_per_second,omitempty"` // 0 is unlimited
}

// NetworkConfig holds configuration for connectivity detection.
type NetworkConfig struct {
	ProbeURL        string        `yaml:"probe_url,omitempty"` // Defaults to remote.base_url
	ProbeInterval   time.Duration `yaml:"probe_interval"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	DegradedLatency time.Duration `yaml:"degraded_latency"`
	AssumeOnline    bool          `yaml:"assume_online"` // Skip probing and always report online
}

// CoordinatorConfig holds configuration for periodic syncing.
type CoordinatorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// QueueConfig holds configuration for one work type.
type QueueConfig struct {
	Endpoint             string        `yaml:"endpoint"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	Concurrency          int           `yaml:"concurrency"`
	MinConnectionQuality string        `yaml:"min_connection_quality"` // offline, degraded, online
}

// SpoolConfig holds configuration for the drop-folder watcher.
type SpoolConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Directory string        `yaml:"directory"`
	Debounce  time.Duration `yaml:"debounce"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`       // Whether tracing is enabled
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // OTLP collector endpoint
	SampleRate   float64 `yaml:"sample_rate"`   // Sampling rate (0.0 to 1.0)
	ServiceName  string  `yaml:"service_name"`  // Service name for traces
}

// Default configuration values.
const (
	DefaultStoragePath    = "~/.scribesync/outbox.db"
	DefaultRemoteURL      = "http://localhost:8080"
	DefaultRemoteTimeout  = 5 * time.Minute
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultSpoolDirectory = "~/.scribesync/spool"
	DefaultSpoolDebounce  = 2 * time.Second

	// Network defaults
	DefaultProbeInterval   = 15 * time.Second
	DefaultProbeTimeout    = 5 * time.Second
	DefaultDegradedLatency = 2 * time.Second

	// Coordinator defaults
	DefaultSyncInterval = 30 * time.Second

	// Queue defaults
	DefaultMaxRetries           = 3
	DefaultRetryDelay           = time.Second
	DefaultConcurrency          = 2
	DefaultMinConnectionQuality = "online"

	// Tracing defaults
	DefaultTracingEnabled      = false
	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "scribesync"
)

// Built-in queue names.
const (
	QueueRecordings = "recordings"
	QueueDocuments  = "documents"
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

// DefaultQueue returns the default settings for a queue posting to endpoint.
func DefaultQueue(endpoint string) QueueConfig {
	return QueueConfig{
		Endpoint:             endpoint,
		MaxRetries:           DefaultMaxRetries,
		RetryDelay:           DefaultRetryDelay,
		Concurrency:          DefaultConcurrency,
		MinConnectionQuality: DefaultMinConnectionQuality,
	}
}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path: DefaultStoragePath,
		},
		Remote: RemoteConfig{
			BaseURL: DefaultRemoteURL,
			Timeout: DefaultRemoteTimeout,
		},
		Network: NetworkConfig{
			ProbeInterval:   DefaultProbeInterval,
			ProbeTimeout:    DefaultProbeTimeout,
			DegradedLatency: DefaultDegradedLatency,
		},
		Coordinator: CoordinatorConfig{
			Interval: DefaultSyncInterval,
		},
		Queues: map[string]QueueConfig{
			QueueRecordings: DefaultQueue("/api/recordings"),
			QueueDocuments:  DefaultQueue("/api/documents"),
		},
		Spool: SpoolConfig{
			Enabled:   false,
			Directory: DefaultSpoolDirectory,
			Debounce:  DefaultSpoolDebounce,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Tracing: TracingConfig{
			Enabled:      DefaultTracingEnabled,
			ExporterType: DefaultTracingExporterType,
			SampleRate:   DefaultTracingSampleRate,
			ServiceName:  DefaultTracingServiceName,
		},
	}
}

// QueueNames returns the configured queue names in sorted order.
func (c *Config) QueueNames() []string {
	names := make([]string, 0, len(c.Queues))
	for name := range c.Queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProbeURL returns the URL used for connectivity probes.
func (c *Config) ProbeURL() string {
	if c.Network.ProbeURL != "" {
		return c.Network.ProbeURL
	}
	return c.Remote.BaseURL
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage: path is required"))
	}

	if err := c.Remote.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}

	if err := c.Network.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("network: %w", err))
	}

	if c.Coordinator.Interval <= 0 {
		errs = append(errs, errors.New("coordinator: interval must be positive"))
	}

	if len(c.Queues) == 0 {
		errs = append(errs, errors.New("queues: at least one queue is required"))
	}
	for _, name := range c.QueueNames() {
		q := c.Queues[name]
		if err := q.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("queues.%s: %w", name, err))
		}
	}

	if err := c.Spool.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("spool: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the RemoteConfig is valid.
func (r *RemoteConfig) Validate() error {
	var errs []error

	if err := validateHTTPURL(r.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	}

	if r.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}
	if r.MaxUploadRate < 0 {
		errs = append(errs, errors.New("max_uploads_per_second must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the NetworkConfig is valid.
func (n *NetworkConfig) Validate() error {
	var errs []error

	if n.ProbeURL != "" {
		if err := validateHTTPURL(n.ProbeURL); err != nil {
			errs = append(errs, fmt.Errorf("probe_url: %w", err))
		}
	}
	if !n.AssumeOnline {
		if n.ProbeInterval <= 0 {
			errs = append(errs, errors.New("probe_interval must be positive"))
		}
		if n.ProbeTimeout <= 0 {
			errs = append(errs, errors.New("probe_timeout must be positive"))
		}
		if n.DegradedLatency <= 0 {
			errs = append(errs, errors.New("degraded_latency must be positive"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the QueueConfig is valid.
func (q *QueueConfig) Validate() error {
	var errs []error

	if q.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if q.MaxRetries < 1 {
		errs = append(errs, errors.New("max_retries must be at least 1"))
	}
	if q.RetryDelay < 0 {
		errs = append(errs, errors.New("retry_delay must be non-negative"))
	}
	if q.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be at least 1"))
	}
	if _, err := q.ConnectionQuality(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ConnectionQuality parses MinConnectionQuality, defaulting to online.
func (q *QueueConfig) ConnectionQuality() (outbox.ConnectionStatus, error) {
	if q.MinConnectionQuality == "" {
		return outbox.StatusOnline, nil
	}
	return outbox.ParseConnectionStatus(q.MinConnectionQuality)
}

// Validate checks if the SpoolConfig is valid.
func (s *SpoolConfig) Validate() error {
	var errs []error

	if s.Enabled {
		if s.Directory == "" {
			errs = append(errs, errors.New("directory is required when spool is enabled"))
		}
		if s.Debounce <= 0 {
			errs = append(errs, errors.New("debounce must be positive when spool is enabled"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}

	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("must use http or https scheme")
	}
	if parsedURL.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
