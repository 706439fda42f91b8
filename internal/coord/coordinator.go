package coord

import (
	"context"
	"log/slog"
	"time"

	"shipflow/internal/logging"
)

const releaseTimeout = 5 * time.Second

// Coordinator runs functions under a DistributedLock.
type Coordinator struct {
	lock   DistributedLock
	logger *slog.Logger
}

// NewCoordinator wraps lock. A nil logger discards output.
func NewCoordinator(lock DistributedLock, logger *slog.Logger) *Coordinator {
	return &Coordinator{lock: lock, logger: logging.NewComponentLogger(logger, "coord")}
}

// WithLock runs fn while holding scope. Contention skips fn and returns
// (false, nil). The lock is released on every exit path, including a panic in
// fn, which propagates after release.
func (c *Coordinator) WithLock(ctx context.Context, scope string, ttl time.Duration, fn func(context.Context) error) (ran bool, err error) {
	h, ok, err := c.lock.TryAcquire(ctx, scope, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		c.logger.Debug("lock busy", logging.String("scope", scope))
		return false, nil
	}
	defer c.release(ctx, h)
	return true, fn(ctx)
}

func (c *Coordinator) release(ctx context.Context, h Handle) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := c.lock.Release(releaseCtx, h); err != nil {
		logging.WarnWithContext(c.logger, "lock release failed", "lock_release_failed",
			logging.String("scope", h.Scope),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the lock expires after its ttl"),
			logging.String(logging.FieldImpact, "other workers skip this scope until expiry"),
		)
	}
}
