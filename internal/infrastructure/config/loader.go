package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultDirName is the configuration directory under the user's home.
const DefaultDirName = ".scribesync"

// FileName is the configuration file inside the config directory.
const FileName = "config.yaml"

const fileHeader = `# scribesync configuration
#
# Each entry under queues is a work type with its own local outbox and sync engine.
#
`

// Environment variables applied over the loaded file.
const (
	EnvBaseURL      = "SCRIBESYNC_BASE_URL"
	EnvDBPath       = "SCRIBESYNC_DB_PATH"
	EnvSpoolDir     = "SCRIBESYNC_SPOOL_DIR"
	EnvLogLevel     = "SCRIBESYNC_LOG_LEVEL"
	EnvLogFormat    = "SCRIBESYNC_LOG_FORMAT"
	EnvAssumeOnline = "SCRIBESYNC_ASSUME_ONLINE"
)

// Loader reads and writes config files under one directory.
type Loader struct {
	dir    string
	lookup func(string) (string, bool)
}

// NewLoader returns a loader rooted at dir, or at ~/.scribesync when dir is empty.
func NewLoader(dir string) (*Loader, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDirName)
	}
	return &Loader{dir: dir, lookup: os.LookupEnv}, nil
}

// ConfigDir returns the configuration directory.
func (l *Loader) ConfigDir() string { return l.dir }

// DefaultConfigPath returns the config file path inside ConfigDir.
func (l *Loader) DefaultConfigPath() string { return filepath.Join(l.dir, FileName) }

// Load reads path (DefaultConfigPath when empty) and applies environment
// overrides. A missing file yields the defaults.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		path = l.DefaultConfigPath()
	}

	cfg, err := l.LoadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = NewDefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile parses exactly the file at path, without environment overrides.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file not found: %s: %w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// applyEnv overlays the SCRIBESYNC_* variables that are set.
func (l *Loader) applyEnv(cfg *Config) error {
	strs := map[string]*string{
		EnvBaseURL:   &cfg.Remote.BaseURL,
		EnvDBPath:    &cfg.Storage.Path,
		EnvSpoolDir:  &cfg.Spool.Directory,
		EnvLogLevel:  &cfg.Logging.Level,
		EnvLogFormat: &cfg.Logging.Format,
	}
	for name, dst := range strs {
		if v, ok := l.lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := l.lookup(EnvAssumeOnline); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAssumeOnline, err)
		}
		cfg.Network.AssumeOnline = b
	}
	return nil
}

// Parse decodes YAML over the defaults. Queues named in the document replace
// the default queue set; fields omitted inside a queue take the queue defaults.
func Parse(data []byte) (*Config, error) {
	var doc struct {
		Queues map[string]yaml.Node `yaml:"queues"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := NewDefaultConfig()
	defaults := cfg.Queues
	cfg.Queues = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if doc.Queues == nil {
		cfg.Queues = defaults
		return cfg, nil
	}

	cfg.Queues = make(map[string]QueueConfig, len(doc.Queues))
	for name, node := range doc.Queues {
		q := DefaultQueue("")
		if err := node.Decode(&q); err != nil {
			return nil, fmt.Errorf("failed to parse queue %q: %w", name, err)
		}
		cfg.Queues[name] = q
	}
	return cfg, nil
}

// Save writes cfg to path (DefaultConfigPath when empty) readable only by
// the owner.
func (l *Loader) Save(cfg *Config, path string) error {
	if path == "" {
		path = l.DefaultConfigPath()
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(fileHeader), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
