package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shipflow/internal/database"
)

// SQLiteLock stores locks in the shared database so every process using the
// same file sees them.
type SQLiteLock struct {
	db     *database.DB
	holder string
	now    func() time.Time
}

// SQLiteOption customizes a SQLiteLock.
type SQLiteOption func(*SQLiteLock)

// WithLockClock overrides the lock clock.
func WithLockClock(now func() time.Time) SQLiteOption {
	return func(l *SQLiteLock) {
		if now != nil {
			l.now = now
		}
	}
}

// NewSQLiteLock returns a lock backend that records holder on every acquisition.
func NewSQLiteLock(db *database.DB, holder string, opts ...SQLiteOption) *SQLiteLock {
	l := &SQLiteLock{db: db, holder: holder, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire inserts the lock row, or takes over an existing row only when it
// has expired.
func (l *SQLiteLock) TryAcquire(ctx context.Context, scope string, ttl time.Duration) (Handle, bool, error) {
	now := l.now()
	h := Handle{
		Scope:     scope,
		Holder:    l.holder,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(ttl),
	}
	res, err := l.db.Exec(ctx, `
        INSERT INTO locks (scope, holder, token, acquired_at, expires_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(scope) DO UPDATE SET
            holder = excluded.holder,
            token = excluded.token,
            acquired_at = excluded.acquired_at,
            expires_at = excluded.expires_at
        WHERE locks.expires_at <= excluded.acquired_at`,
		scope, h.Holder, h.Token, database.Millis(now), database.Millis(h.ExpiresAt),
	)
	if err != nil {
		return Handle{}, false, fmt.Errorf("acquire lock %s: %w", scope, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Handle{}, false, fmt.Errorf("acquire lock %s rows: %w", scope, err)
	}
	if n == 0 {
		return Handle{}, false, nil
	}
	return h, true, nil
}

// Release deletes the lock only if it still carries h's token.
func (l *SQLiteLock) Release(ctx context.Context, h Handle) error {
	if _, err := l.db.Exec(ctx, `DELETE FROM locks WHERE scope = ? AND token = ?`, h.Scope, h.Token); err != nil {
		return fmt.Errorf("release lock %s: %w", h.Scope, err)
	}
	return nil
}
