package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateLocks(); err != nil {
		return err
	}
	if err := c.validateQueues(); err != nil {
		return err
	}
	if err := c.validateExternalWrite(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if err := ensurePositiveMap(map[string]int{
		"engine.tick_interval":         c.Engine.TickInterval,
		"engine.batch_size":            c.Engine.BatchSize,
		"engine.staleness_seconds":     c.Engine.StalenessSeconds,
		"engine.lock_ttl":              c.Engine.LockTTL,
		"engine.hold_fallback_minutes": c.Engine.HoldFallbackMinutes,
		"engine.error_retry_interval":  c.Engine.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Engine.RecentTransitions < 0 {
		return errors.New("engine.recent_transitions must not be negative")
	}
	return nil
}

func (c *Config) validateLocks() error {
	switch c.Locks.Backend {
	case LockBackendSQLite:
		return nil
	case LockBackendFile:
		if strings.TrimSpace(c.Locks.Dir) == "" {
			return errors.New("locks.dir must be set when locks.backend is file")
		}
		return nil
	default:
		return fmt.Errorf("locks.backend: unsupported value %q (want sqlite or file)", c.Locks.Backend)
	}
}

func (c *Config) validateQueues() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.lease_timeout":    c.Queue.LeaseTimeout,
		"queue.reclaim_interval": c.Queue.ReclaimInterval,
	}); err != nil {
		return err
	}
	for name, settings := range map[string]QueueSettings{
		"queues.events":         c.Queues.Events,
		"queues.hydration":      c.Queues.Hydration,
		"queues.external_write": c.Queues.ExternalWrite,
	} {
		if err := validateQueueSettings(name, settings); err != nil {
			return err
		}
		if settings.HandlerTimeout >= c.Queue.LeaseTimeout {
			return fmt.Errorf("%s.handler_timeout must be less than queue.lease_timeout", name)
		}
	}
	return nil
}

func validateQueueSettings(prefix string, q QueueSettings) error {
	if err := ensurePositiveMap(map[string]int{
		prefix + ".workers":          q.Workers,
		prefix + ".batch_size":       q.BatchSize,
		prefix + ".poll_interval_ms": q.PollIntervalMS,
		prefix + ".max_attempts":     q.MaxAttempts,
		prefix + ".base_delay_ms":    q.BaseDelayMS,
		prefix + ".max_delay_ms":     q.MaxDelayMS,
		prefix + ".handler_timeout":  q.HandlerTimeout,
	}); err != nil {
		return err
	}
	if q.MaxDelayMS < q.BaseDelayMS {
		return fmt.Errorf("%s.max_delay_ms must be at least %s.base_delay_ms", prefix, prefix)
	}
	if q.BackoffFactor < 1 {
		return fmt.Errorf("%s.backoff_factor must be at least 1", prefix)
	}
	if q.Jitter < 0 || q.Jitter > 1 {
		return fmt.Errorf("%s.jitter must be between 0 and 1", prefix)
	}
	return nil
}

func (c *Config) validateExternalWrite() error {
	if c.ExternalWrite.RatePerSecond <= 0 {
		return errors.New("external_write.rate_per_second must be positive")
	}
	if c.ExternalWrite.Burst <= 0 {
		return errors.New("external_write.burst must be positive")
	}
	return nil
}

func (c *Config) validateServices() error {
	if c.Services.RequestTimeout <= 0 {
		return errors.New("services.request_timeout must be positive (seconds)")
	}
	for key, value := range map[string]string{
		"services.catalog_url":  c.Services.CatalogURL,
		"services.rates_url":    c.Services.RatesURL,
		"services.sessions_url": c.Services.SessionsURL,
		"services.carrier_url":  c.Services.CarrierURL,
	} {
		if value == "" {
			continue
		}
		parsed, err := url.Parse(value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", key, value)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
