package coord

import (
	"context"
	"fmt"
	"time"

	"shipflow/internal/config"
	"shipflow/internal/database"
)

// Handle identifies a held lock. Token distinguishes this acquisition from any
// later one on the same scope.
type Handle struct {
	Scope     string
	Holder    string
	Token     string
	ExpiresAt time.Time
}

// DistributedLock is a non-blocking, expiring mutual-exclusion lock keyed by scope.
type DistributedLock interface {
	// TryAcquire returns ok=false without error when another holder has an
	// unexpired lock on scope.
	TryAcquire(ctx context.Context, scope string, ttl time.Duration) (Handle, bool, error)
	Release(ctx context.Context, h Handle) error
}

// ShipmentScope is the lock scope for evaluating one shipment.
func ShipmentScope(id string) string {
	return "shipment:" + id
}

// MaintenanceScope is the lock scope for lease reclaim on one queue.
func MaintenanceScope(queueName string) string {
	return "queue:" + queueName + ":maintenance"
}

// NewFromConfig selects the configured lock backend.
func NewFromConfig(cfg *config.Config, db *database.DB, holder string) (DistributedLock, error) {
	switch cfg.Locks.Backend {
	case config.LockBackendSQLite, "":
		return NewSQLiteLock(db, holder), nil
	case config.LockBackendFile:
		return NewFileLock(cfg.Locks.Dir, holder)
	default:
		return nil, fmt.Errorf("unsupported lock backend %q", cfg.Locks.Backend)
	}
}
