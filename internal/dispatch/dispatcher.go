package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"shipflow/internal/config"
	"shipflow/internal/coord"
	"shipflow/internal/lifecycle"
	"shipflow/internal/logging"
	"shipflow/internal/observability"
	"shipflow/internal/queue"
	"shipflow/internal/services"
)

const (
	settleTimeout    = 5 * time.Second
	minErrorBackoff  = time.Second
	defaultBatchSize = 16
)

// Waker asks the lifecycle engine to re-evaluate a shipment soon.
type Waker interface {
	Wake(ctx context.Context, shipmentID string) error
}

// Dispatcher drains one queue, running each entry's handler and settling the
// entry as acked, retried, dead-lettered, or released.
type Dispatcher struct {
	queue           *queue.Queue
	registry        *Registry
	routes          Routes
	settings        config.QueueSettings
	leaseTimeout    time.Duration
	reclaimInterval time.Duration
	owner           string

	limiter     *rate.Limiter
	coordinator *coord.Coordinator
	waker       Waker
	stats       *observability.Stats
	recorder    observability.Recorder
	tracer      observability.Tracer
	logger      *slog.Logger
	now         func() time.Time

	lastReclaim time.Time
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLimiter waits on limiter before every handler call.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = limiter }
}

// WithCoordinator runs lease reclaim under the queue's maintenance lock.
func WithCoordinator(c *coord.Coordinator) Option {
	return func(d *Dispatcher) { d.coordinator = c }
}

// WithWaker wakes the engine after handlers whose route asks for it.
func WithWaker(w Waker) Option {
	return func(d *Dispatcher) { d.waker = w }
}

// WithStats records inflight, processed, and error counts.
func WithStats(stats *observability.Stats) Option {
	return func(d *Dispatcher) { d.stats = stats }
}

// WithTelemetry sets the metrics recorder and tracer.
func WithTelemetry(recorder observability.Recorder, tracer observability.Tracer) Option {
	return func(d *Dispatcher) {
		if recorder != nil {
			d.recorder = recorder
		}
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithOwner sets the lease owner name. It must be unique per process.
func WithOwner(owner string) Option {
	return func(d *Dispatcher) {
		if owner != "" {
			d.owner = owner
		}
	}
}

// WithClock overrides the clock used for reclaim scheduling and latency.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New builds a dispatcher for q. settings tunes this queue; shared carries the
// lease visibility and reclaim cadence common to every queue.
func New(q *queue.Queue, registry *Registry, routes Routes, settings config.QueueSettings, shared config.Queue, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:           q,
		registry:        registry,
		routes:          routes,
		settings:        settings,
		leaseTimeout:    time.Duration(shared.LeaseTimeout) * time.Second,
		reclaimInterval: time.Duration(shared.ReclaimInterval) * time.Second,
		owner:           q.Name() + "-" + uuid.NewString(),
		recorder:        observability.NoopRecorder{},
		tracer:          observability.NoopTracer{},
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.stats == nil {
		d.stats = observability.NewStats(0)
	}
	d.logger = logging.NewComponentLogger(d.logger, "dispatch").With(logging.Queue(q.Name()))
	return d
}

// NewLimiter builds the token bucket shared by every external write.
// A non-positive rate disables limiting.
func NewLimiter(cfg config.ExternalWrite) *rate.Limiter {
	if cfg.RatePerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
}

// Queue returns the queue this dispatcher drains.
func (d *Dispatcher) Queue() *queue.Queue { return d.queue }

// Owner returns the lease owner name.
func (d *Dispatcher) Owner() string { return d.owner }

// Run leases and processes entries until ctx is cancelled. Leases still held
// on exit are released back to pending.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started",
		logging.Int("workers", d.workers()),
		logging.Int("batch_size", d.batchSize()),
		logging.String("owner", d.owner),
	)
	defer d.drain(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		d.maybeReclaim(ctx)

		n, err := d.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.ErrorWithContext(d.logger, "lease failed", "queue_lease_failed",
				logging.Error(err),
				logging.ErrorHint("check queue database access"),
			)
			if !d.wait(ctx, max(d.settings.PollInterval(), minErrorBackoff)) {
				return nil
			}
			continue
		}
		if n == 0 && !d.wait(ctx, d.settings.PollInterval()) {
			return nil
		}
	}
}

// RunOnce leases one batch and processes it with at most workers handlers in
// flight. It returns the number of entries leased.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	entries, err := d.queue.Lease(ctx, d.owner, d.batchSize(), d.leaseTimeout)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(d.workers())
	for _, entry := range entries {
		g.Go(func() error {
			d.process(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()
	return len(entries), nil
}

func (d *Dispatcher) process(ctx context.Context, entry queue.Entry) {
	ctx = services.WithShipmentID(ctx, entry.EntityID)
	ctx = services.WithReason(ctx, entry.Reason)
	ctx = services.WithQueue(ctx, d.queue.Name())
	logger := logging.WithContext(ctx, d.logger)

	reason, err := lifecycle.ParseReason(entry.Reason)
	if err != nil {
		d.settle(ctx, logger, entry, Route{}, services.Wrap(services.ErrValidation, "dispatch", "route", "unknown reason", err), 0)
		return
	}
	handler, ok := d.registry.Lookup(reason)
	if !ok {
		d.settle(ctx, logger, entry, Route{}, services.Wrap(services.ErrConfiguration, "dispatch", "route", "no handler for "+entry.Reason, nil), 0)
		return
	}
	route := d.routes[reason]

	if ctx.Err() != nil {
		d.release(ctx, logger, entry)
		return
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.release(ctx, logger, entry)
			return
		}
	}
	// The lease clock ran while the entry waited for a worker slot.
	if !d.renewLease(ctx, logger, entry) {
		return
	}

	done := d.stats.TrackInflight()
	defer done()

	task := Task{
		EntryID:    entry.ID,
		Queue:      d.queue.Name(),
		ShipmentID: entry.EntityID,
		Reason:     reason,
		Payload:    entry.Payload,
		Attempt:    entry.Attempts + 1,
	}
	start := d.now()
	handlerErr := d.invoke(ctx, handler, task)
	d.settle(ctx, logger, entry, route, handlerErr, d.now().Sub(start))
}

// renewLease extends the entry's lease so it covers the handler run. It
// reports false when the handler must not run.
func (d *Dispatcher) renewLease(ctx context.Context, logger *slog.Logger, entry queue.Entry) bool {
	_, err := d.queue.Extend(ctx, entry.ID, d.owner, d.leaseTimeout)
	if err == nil {
		return true
	}
	if errors.Is(err, queue.ErrLeaseLost) {
		d.recorder.RecordHandler(ctx, d.queue.Name(), entry.Reason, observability.OutcomeSkipped, 0)
		logging.WarnWithContext(logger, "lease lost before handler", "lease_lost",
			logging.Error(err),
			logging.String(logging.FieldImpact, "handler skipped; the current lease holder runs it"),
			logging.ErrorHint("raise queue.lease_timeout or lower batch_size for this queue"),
		)
		return false
	}
	logging.WarnWithContext(logger, "lease renewal failed", "lease_renew_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "entry returned to pending"),
	)
	d.release(ctx, logger, entry)
	return false
}

func (d *Dispatcher) invoke(ctx context.Context, handler Handler, task Task) (err error) {
	hctx := ctx
	if timeout := d.settings.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	hctx, span := d.tracer.StartHandler(hctx, task.Queue, string(task.Reason), task.ShipmentID, task.Attempt)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", task.Reason, r)
		}
		observability.EndSpan(span, err)
	}()
	return handler.Handle(hctx, task)
}

// settle records the handler outcome on the entry. Settlement outlives the
// run context so a handler that finished during shutdown is still acked.
func (d *Dispatcher) settle(ctx context.Context, logger *slog.Logger, entry queue.Entry, route Route, handlerErr error, elapsed time.Duration) {
	if handlerErr != nil && ctx.Err() != nil && services.IsCancellation(ctx, handlerErr) {
		d.release(ctx, logger, entry)
		d.recorder.RecordHandler(ctx, d.queue.Name(), entry.Reason, observability.OutcomeReleased, elapsed)
		return
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	var outcome string
	switch {
	case handlerErr == nil:
		outcome = d.ack(sctx, logger, entry, route)
	case services.IsPermanent(handlerErr):
		outcome = d.deadLetter(sctx, logger, entry, handlerErr)
	default:
		outcome = d.retry(sctx, logger, entry, handlerErr)
	}
	d.recorder.RecordHandler(sctx, d.queue.Name(), entry.Reason, outcome, elapsed)
}

func (d *Dispatcher) ack(ctx context.Context, logger *slog.Logger, entry queue.Entry, route Route) string {
	if err := d.queue.Ack(ctx, entry.ID, d.owner); err != nil {
		d.logSettleFailure(logger, "ack", err)
		return observability.OutcomeAcked
	}
	d.stats.AddProcessed()
	logger.Debug("handler succeeded", logging.Int("attempt", entry.Attempts+1))
	if route.Wake && d.waker != nil {
		if err := d.waker.Wake(ctx, entry.EntityID); err != nil {
			logging.WarnWithContext(logger, "engine wake failed", "engine_wake_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "shipment advances on the next staleness sweep"),
			)
		}
	}
	return observability.OutcomeAcked
}

func (d *Dispatcher) deadLetter(ctx context.Context, logger *slog.Logger, entry queue.Entry, cause error) string {
	d.stats.AddError()
	if _, err := d.queue.DeadLetter(ctx, entry.ID, d.owner, cause); err != nil {
		d.logSettleFailure(logger, "dead-letter", err)
		return observability.OutcomeDead
	}
	logging.ErrorWithContext(logger, "handler failed permanently", "handler_dead_lettered",
		logging.Error(cause),
		logging.Alert("dead_letter"),
		logging.ErrorHint("inspect with `shipflow queue dead` and replay once fixed"),
	)
	return observability.OutcomeDead
}

func (d *Dispatcher) retry(ctx context.Context, logger *slog.Logger, entry queue.Entry, cause error) string {
	d.stats.AddError()
	updated, err := d.queue.Retry(ctx, entry.ID, d.owner, cause)
	if err != nil {
		d.logSettleFailure(logger, "retry", err)
		return observability.OutcomeRetried
	}
	if updated.State == queue.StateDead {
		logging.ErrorWithContext(logger, "handler retries exhausted", "handler_retries_exhausted",
			logging.Error(cause),
			logging.Int("attempts", updated.Attempts),
			logging.Alert("dead_letter"),
			logging.ErrorHint("inspect with `shipflow queue dead` and replay once fixed"),
		)
		return observability.OutcomeDead
	}
	logging.WarnWithContext(logger, "handler failed, will retry", "handler_retry",
		logging.Error(cause),
		logging.Int("attempts", updated.Attempts),
		logging.Any("next_visible_at", updated.NextVisibleAt),
	)
	return observability.OutcomeRetried
}

func (d *Dispatcher) release(ctx context.Context, logger *slog.Logger, entry queue.Entry) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if _, err := d.queue.Release(rctx, d.owner, entry.ID); err != nil {
		d.logSettleFailure(logger, "release", err)
		return
	}
	logger.Debug("lease released on shutdown")
}

func (d *Dispatcher) logSettleFailure(logger *slog.Logger, op string, err error) {
	if errors.Is(err, queue.ErrLeaseLost) {
		logging.WarnWithContext(logger, "lease lost before "+op, "lease_lost",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the entry was reclaimed and will run again"),
		)
		return
	}
	logging.ErrorWithContext(logger, op+" failed", "queue_settle_failed",
		logging.Error(err),
		logging.ErrorHint("the lease expires and the entry is reclaimed"),
	)
}

func (d *Dispatcher) drain(ctx context.Context) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	n, err := d.queue.Release(rctx, d.owner)
	if err != nil {
		logging.WarnWithContext(d.logger, "lease drain failed", "lease_drain_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "held leases return after the visibility timeout"),
		)
		return
	}
	d.logger.Info("dispatcher stopped", logging.Int64("released", n))
}

func (d *Dispatcher) maybeReclaim(ctx context.Context) {
	now := d.now()
	if !d.lastReclaim.IsZero() && now.Sub(d.lastReclaim) < d.reclaimInterval {
		return
	}
	d.lastReclaim = now

	reclaim := func(ctx context.Context) error {
		n, err := d.queue.ReclaimExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			d.logger.Info("reclaimed expired leases",
				logging.Int64("count", n),
				logging.EventType("lease_reclaimed"),
			)
		}
		return nil
	}

	var err error
	if d.coordinator != nil {
		ttl := max(d.reclaimInterval, time.Second)
		_, err = d.coordinator.WithLock(ctx, coord.MaintenanceScope(d.queue.Name()), ttl, reclaim)
	} else {
		err = reclaim(ctx)
	}
	if err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "lease reclaim failed", "lease_reclaim_failed",
			logging.Error(err),
			logging.ErrorHint("check queue database access"),
		)
	}
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) workers() int {
	if d.settings.Workers > 0 {
		return d.settings.Workers
	}
	return 1
}

func (d *Dispatcher) batchSize() int {
	if d.settings.BatchSize > 0 {
		return d.settings.BatchSize
	}
	return defaultBatchSize
}
