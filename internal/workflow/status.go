package workflow

import (
	"context"
	"time"

	"shipflow/internal/logging"
	"shipflow/internal/queue"
)

// StatusSummary represents lightweight engine diagnostics.
type StatusSummary struct {
	Running    bool
	LastError  string
	LastTickAt time.Time
	LastTick   TickResult
	Queues     map[string]queue.Stats
}

// Status returns the latest engine information.
func (e *Engine) Status(ctx context.Context) StatusSummary {
	e.mu.RLock()
	summary := StatusSummary{
		Running:    e.running,
		LastTickAt: e.lastTickAt,
		LastTick:   e.lastResult,
	}
	if e.lastErr != nil {
		summary.LastError = e.lastErr.Error()
	}
	e.mu.RUnlock()

	summary.Queues = make(map[string]queue.Stats, len(e.queues))
	for name, q := range e.queues {
		stats, err := q.Stats(ctx)
		if err != nil {
			e.logger.Warn("failed to read queue stats", logging.Queue(name), logging.Error(err))
			continue
		}
		summary.Queues[name] = stats
	}
	return summary
}
