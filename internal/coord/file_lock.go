package coord

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// FileLock uses one flock(2) lock file per scope. It only coordinates
// processes on the same host; the kernel drops the lock when the holder
// exits, so ttl is recorded but never enforced.
type FileLock struct {
	dir    string
	holder string

	mu   sync.Mutex
	held map[string]*flock.Flock
}

// NewFileLock creates dir when needed.
func NewFileLock(dir, holder string) (*FileLock, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file lock directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &FileLock{dir: dir, holder: holder, held: make(map[string]*flock.Flock)}, nil
}

func (l *FileLock) path(scope string) string {
	name := strings.NewReplacer(":", "_", "/", "_", string(os.PathSeparator), "_").Replace(scope)
	return filepath.Join(l.dir, name+".lock")
}

// TryAcquire takes a non-blocking exclusive lock on the scope's file.
func (l *FileLock) TryAcquire(_ context.Context, scope string, ttl time.Duration) (Handle, bool, error) {
	fl := flock.New(l.path(scope))
	ok, err := fl.TryLock()
	if err != nil {
		return Handle{}, false, fmt.Errorf("acquire lock %s: %w", scope, err)
	}
	if !ok {
		return Handle{}, false, nil
	}
	h := Handle{
		Scope:     scope,
		Holder:    l.holder,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(ttl),
	}
	l.mu.Lock()
	l.held[h.Token] = fl
	l.mu.Unlock()
	return h, true, nil
}

// Release unlocks the file acquired under h.
func (l *FileLock) Release(_ context.Context, h Handle) error {
	l.mu.Lock()
	fl, ok := l.held[h.Token]
	delete(l.held, h.Token)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := fl.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", h.Scope, err)
	}
	return nil
}
