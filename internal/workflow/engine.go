package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"shipflow/internal/config"
	"shipflow/internal/coord"
	"shipflow/internal/database"
	"shipflow/internal/dispatch"
	"shipflow/internal/lifecycle"
	"shipflow/internal/logging"
	"shipflow/internal/observability"
	"shipflow/internal/queue"
	"shipflow/internal/shipment"
)

// Engine periodically re-evaluates shipments, persists forward transitions,
// and enqueues the side effects each transition schedules.
type Engine struct {
	db          *database.DB
	store       *shipment.Store
	queues      map[string]*queue.Queue
	routes      dispatch.Routes
	coordinator *coord.Coordinator
	logger      *slog.Logger
	stats       *observability.Stats
	recorder    observability.Recorder
	tracer      observability.Tracer
	now         func() time.Time

	tickInterval time.Duration
	retryDelay   time.Duration
	staleness    time.Duration
	lockTTL      time.Duration
	batchSize    int
	evalOpts     lifecycle.Options

	wake chan struct{}

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastErr    error
	lastTickAt time.Time
	lastResult TickResult
}

// EngineOption configures optional Engine behavior.
type EngineOption func(*Engine)

// WithRoutes overrides dispatch.DefaultRoutes.
func WithRoutes(routes dispatch.Routes) EngineOption {
	return func(e *Engine) { e.routes = routes }
}

// WithStats shares process-local counters with the API.
func WithStats(stats *observability.Stats) EngineOption {
	return func(e *Engine) { e.stats = stats }
}

// WithTelemetry sets the metrics recorder and tracer.
func WithTelemetry(recorder observability.Recorder, tracer observability.Tracer) EngineOption {
	return func(e *Engine) {
		if recorder != nil {
			e.recorder = recorder
		}
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithClock overrides the evaluation clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs the lifecycle engine. queues must contain every queue
// the routes reference.
func NewEngine(cfg *config.Config, db *database.DB, store *shipment.Store, queues map[string]*queue.Queue, coordinator *coord.Coordinator, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		db:           db,
		store:        store,
		queues:       queues,
		routes:       dispatch.DefaultRoutes(),
		coordinator:  coordinator,
		logger:       logging.NewComponentLogger(logger, "engine"),
		recorder:     observability.NoopRecorder{},
		tracer:       observability.NoopTracer{},
		now:          time.Now,
		tickInterval: time.Duration(cfg.Engine.TickInterval) * time.Second,
		retryDelay:   time.Duration(cfg.Engine.ErrorRetryInterval) * time.Second,
		staleness:    time.Duration(cfg.Engine.StalenessSeconds) * time.Second,
		lockTTL:      time.Duration(cfg.Engine.LockTTL) * time.Second,
		batchSize:    cfg.Engine.BatchSize,
		evalOpts:     lifecycle.Options{HoldFallback: time.Duration(cfg.Engine.HoldFallbackMinutes) * time.Minute},
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.stats == nil {
		e.stats = observability.NewStats(cfg.Engine.RecentTransitions)
	}
	return e
}

// Stats returns the counters the engine writes to.
func (e *Engine) Stats() *observability.Stats { return e.stats }
