package testsupport

import (
	"path/filepath"
	"testing"

	"shipflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Collaborator URLs stay empty so handlers run against no-op clients, and the
// queue timings are shortened so dispatcher tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Locks.Dir = filepath.Join(base, "data", "locks")
	cfgVal.Catalog.Path = filepath.Join(base, "catalog.yaml")
	cfgVal.Logging.Level = "debug"
	for _, q := range []*config.QueueSettings{&cfgVal.Queues.Events, &cfgVal.Queues.Hydration, &cfgVal.Queues.ExternalWrite} {
		q.PollIntervalMS = 10
		q.BaseDelayMS = 1
		q.MaxDelayMS = 5
		q.Jitter = 0
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLockBackend selects the distributed lock backend.
func WithLockBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Locks.Backend = backend
	}
}

// WithMaxAttempts sets max_attempts on every queue.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queues.Events.MaxAttempts = n
		b.cfg.Queues.Hydration.MaxAttempts = n
		b.cfg.Queues.ExternalWrite.MaxAttempts = n
	}
}

// WithEventsConcurrency sets workers and batch_size on the events queue.
func WithEventsConcurrency(workers, batchSize int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queues.Events.Workers = workers
		b.cfg.Queues.Events.BatchSize = batchSize
	}
}

// WithCatalog writes content to the configured catalog path.
func WithCatalog(content string) ConfigOption {
	return func(b *configBuilder) {
		WriteFile(b.t, b.cfg.Catalog.Path, content)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
