package testsupport

import (
	"testing"

	"shipflow/internal/config"
	"shipflow/internal/database"
	"shipflow/internal/queue"
)

// MustQueues binds every named queue to db with the configured retry policy.
// Jitter is pinned to the midpoint so backoff delays are exact.
func MustQueues(t testing.TB, cfg *config.Config, db *database.DB, clock *Clock) map[string]*queue.Queue {
	t.Helper()

	out := make(map[string]*queue.Queue, len(queue.Names))
	for _, name := range queue.Names {
		settings, ok := cfg.Queues.ByName(name)
		if !ok {
			t.Fatalf("no settings for queue %q", name)
		}
		opts := []queue.Option{queue.WithJitterSource(func() float64 { return 0.5 })}
		if clock != nil {
			opts = append(opts, queue.WithClock(clock.Now))
		}
		out[name] = queue.New(db, name, queue.PolicyFromSettings(settings), opts...)
	}
	return out
}
