package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLocks(); err != nil {
		return err
	}
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeServices()
	c.normalizeLogging()
	c.normalizeTelemetry()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("SHIPFLOW_DATA_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DataDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if value, ok := os.LookupEnv("SHIPFLOW_API_TOKEN"); ok {
		c.Paths.APIToken = value
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeLocks() error {
	c.Locks.Backend = strings.ToLower(strings.TrimSpace(c.Locks.Backend))
	if c.Locks.Backend == "" {
		c.Locks.Backend = LockBackendSQLite
	}
	if strings.TrimSpace(c.Locks.Dir) == "" {
		c.Locks.Dir = filepath.Join(c.Paths.DataDir, defaultLockDirName)
	}
	var err error
	if c.Locks.Dir, err = expandPath(c.Locks.Dir); err != nil {
		return fmt.Errorf("locks.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() error {
	c.Catalog.Path = strings.TrimSpace(c.Catalog.Path)
	if c.Catalog.Path == "" {
		return nil
	}
	var err error
	if c.Catalog.Path, err = expandPath(c.Catalog.Path); err != nil {
		return fmt.Errorf("catalog.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeServices() {
	c.Services.CatalogURL = trimURL(c.Services.CatalogURL)
	c.Services.RatesURL = trimURL(c.Services.RatesURL)
	c.Services.SessionsURL = trimURL(c.Services.SessionsURL)
	c.Services.CarrierURL = trimURL(c.Services.CarrierURL)
	c.Services.CarrierAPIKey = strings.TrimSpace(c.Services.CarrierAPIKey)
	if c.Services.CarrierAPIKey == "" {
		if value, ok := os.LookupEnv("SHIPFLOW_CARRIER_API_KEY"); ok {
			c.Services.CarrierAPIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeTelemetry() {
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultTelemetryServiceName
	}
}

func trimURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}
