package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	APIBind string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on mutating API routes.
	APIToken string `toml:"api_token"`
}

// Engine contains configuration for the lifecycle engine tick loop.
type Engine struct {
	TickInterval        int `toml:"tick_interval"`
	BatchSize           int `toml:"batch_size"`
	StalenessSeconds    int `toml:"staleness_seconds"`
	LockTTL             int `toml:"lock_ttl"`
	HoldFallbackMinutes int `toml:"hold_fallback_minutes"`
	RecentTransitions   int `toml:"recent_transitions"`
	ErrorRetryInterval  int `toml:"error_retry_interval"`
}

// Locks selects the distributed lock backend.
type Locks struct {
	Backend string `toml:"backend"` // "sqlite" or "file"
	Dir     string `toml:"dir"`     // lock file directory for the file backend
}

// Queue contains settings shared by every work queue.
type Queue struct {
	LeaseTimeout    int `toml:"lease_timeout"`
	ReclaimInterval int `toml:"reclaim_interval"`
}

// QueueSettings tunes one named work queue and the dispatcher draining it.
type QueueSettings struct {
	Workers        int     `toml:"workers"`
	BatchSize      int     `toml:"batch_size"`
	PollIntervalMS int     `toml:"poll_interval_ms"`
	MaxAttempts    int     `toml:"max_attempts"`
	BaseDelayMS    int     `toml:"base_delay_ms"`
	MaxDelayMS     int     `toml:"max_delay_ms"`
	BackoffFactor  float64 `toml:"backoff_factor"`
	Jitter         float64 `toml:"jitter"`
	HandlerTimeout int     `toml:"handler_timeout"`
}

// PollInterval returns the idle wait between empty lease attempts.
func (q QueueSettings) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMS) * time.Millisecond
}

// BaseDelay returns the first retry delay.
func (q QueueSettings) BaseDelay() time.Duration {
	return time.Duration(q.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the retry delay ceiling.
func (q QueueSettings) MaxDelay() time.Duration {
	return time.Duration(q.MaxDelayMS) * time.Millisecond
}

// Timeout returns the per-handler deadline.
func (q QueueSettings) Timeout() time.Duration {
	return time.Duration(q.HandlerTimeout) * time.Second
}

// Queues holds the per-queue settings.
type Queues struct {
	Events        QueueSettings `toml:"events"`
	Hydration     QueueSettings `toml:"hydration"`
	ExternalWrite QueueSettings `toml:"external_write"`
}

// ByName returns the settings for a queue name.
func (q Queues) ByName(name string) (QueueSettings, bool) {
	switch name {
	case "events":
		return q.Events, true
	case "hydration":
		return q.Hydration, true
	case "external_write":
		return q.ExternalWrite, true
	}
	return QueueSettings{}, false
}

// ExternalWrite contains the carrier system request budget.
type ExternalWrite struct {
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

// Services contains collaborator endpoints. An empty URL selects a no-op client.
type Services struct {
	CatalogURL     string `toml:"catalog_url"`
	RatesURL       string `toml:"rates_url"`
	SessionsURL    string `toml:"sessions_url"`
	CarrierURL     string `toml:"carrier_url"`
	CarrierAPIKey  string `toml:"carrier_api_key"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Catalog points at the kit, category, and packaging catalog file.
type Catalog struct {
	Path string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Telemetry toggles OpenTelemetry instrumentation.
type Telemetry struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

// Config encapsulates all configuration values for shipflow.
//
// Configuration sections by subsystem:
//   - Paths: data directory and API bind address
//   - Engine: lifecycle tick cadence, batch size, and gating fallback
//   - Locks: distributed lock backend
//   - Queue / Queues: lease visibility and per-queue retry policy
//   - ExternalWrite: carrier system rate limit
//   - Services: collaborator endpoints
//   - Catalog: kit and packaging rules
//   - Logging / Telemetry: observability
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	Locks         Locks         `toml:"locks"`
	Queue         Queue         `toml:"queue"`
	Queues        Queues        `toml:"queues"`
	ExternalWrite ExternalWrite `toml:"external_write"`
	Services      Services      `toml:"services"`
	Catalog       Catalog       `toml:"catalog"`
	Logging       Logging       `toml:"logging"`
	Telemetry     Telemetry     `toml:"telemetry"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shipflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shipflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// DatabasePath returns the SQLite database location inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "shipflow.db")
}

// LogDir returns the directory that receives daemon log files.
func (c *Config) LogDir() string {
	return filepath.Join(c.Paths.DataDir, "logs")
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.LogDir()}
	if c.Locks.Backend == LockBackendFile {
		dirs = append(dirs, c.Locks.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
