package workflow

import (
	"context"
	"errors"
	"time"

	"shipflow/internal/logging"
	"shipflow/internal/queue"
)

// Start begins the tick loop in the background.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	if e.coordinator == nil {
		e.mu.Unlock()
		return errors.New("engine coordinator not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.wg.Add(1)
	e.mu.Unlock()

	e.stats.SetRunning(true)
	go e.run(runCtx)
	return nil
}

// Stop terminates the tick loop and waits for the current tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	e.stats.SetRunning(false)
}

// Run ticks until ctx is cancelled. It is the blocking form of Start.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	e.Stop()
	return nil
}

// Wake marks a shipment for evaluation on the next tick and triggers that
// tick early when the loop is running in this process.
func (e *Engine) Wake(ctx context.Context, id string) error {
	if err := e.store.RequestWake(ctx, id); err != nil {
		return err
	}
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	e.logger.Info("engine started",
		logging.Duration("tick_interval", e.tickInterval),
		logging.Int("batch_size", e.batchSize),
	)
	defer e.logger.Info("engine stopped")

	ticker := time.NewTicker(max(e.tickInterval, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		if _, err := e.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.handleTickError(ctx, err)
		}
		e.sampleQueues(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.wake:
		}
	}
}

func (e *Engine) handleTickError(ctx context.Context, err error) {
	e.setLastError(err)
	logging.ErrorWithContext(e.logger, "engine tick failed", "tick_failed",
		logging.Error(err),
		logging.ErrorHint("check shipment database access"),
	)
	if e.retryDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.retryDelay):
	}
}

// sampleQueues refreshes the queue length gauge shown by the status API.
func (e *Engine) sampleQueues(ctx context.Context) {
	var live int64
	for _, name := range queue.Names {
		q, ok := e.queues[name]
		if !ok {
			continue
		}
		stats, err := q.Stats(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Warn("failed to read queue stats", logging.Queue(name), logging.Error(err))
			}
			continue
		}
		live += int64(stats.Live())
		e.recorder.RecordQueueDepth(ctx, name, stats.Pending, stats.Leased, stats.Dead)
	}
	e.stats.SetQueueLength(live)
}
