package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shipflow/internal/api"
	"shipflow/internal/catalog"
	"shipflow/internal/config"
	"shipflow/internal/coord"
	"shipflow/internal/database"
	"shipflow/internal/dispatch"
	"shipflow/internal/handlers"
	"shipflow/internal/lifecycle"
	"shipflow/internal/logging"
	"shipflow/internal/observability"
	"shipflow/internal/queue"
	"shipflow/internal/shipment"
	"shipflow/internal/workflow"
)

// Daemon owns every long-running component of one shipflow process.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *database.DB
	store      *shipment.Store
	queues     map[string]*queue.Queue
	engine     *workflow.Engine
	dispatch   []*dispatch.Dispatcher
	stats      *observability.Stats
	instanceID string

	queueSvc    *api.QueueService
	shipmentSvc *api.ShipmentService
	api         *apiServer

	running atomic.Bool
}

// Option customizes a Daemon.
type Option func(*options)

type options struct {
	instanceID string
	deps       *handlers.Deps
}

// WithInstanceID overrides the generated process identity used for lock and
// lease ownership.
func WithInstanceID(id string) Option {
	return func(o *options) { o.instanceID = id }
}

// WithHandlerDeps replaces the collaborators built from configuration.
func WithHandlerDeps(deps handlers.Deps) Option {
	return func(o *options) { o.deps = &deps }
}

// New wires the daemon. The caller keeps ownership of db.
func New(cfg *config.Config, db *database.DB, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("daemon requires config and database")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := options{instanceID: uuid.NewString()}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon").With(logging.String("instance_id", o.instanceID)),
		db:         db,
		store:      shipment.NewStore(db),
		queues:     make(map[string]*queue.Queue, len(queue.Names)),
		stats:      observability.NewStats(cfg.Engine.RecentTransitions),
		instanceID: o.instanceID,
	}
	for _, name := range queue.Names {
		settings, _ := cfg.Queues.ByName(name)
		d.queues[name] = queue.New(db, name, queue.PolicyFromSettings(settings))
	}

	lock, err := coord.NewFromConfig(cfg, db, o.instanceID)
	if err != nil {
		return nil, fmt.Errorf("lock backend: %w", err)
	}
	coordinator := coord.NewCoordinator(lock, logger)

	var deps handlers.Deps
	if o.deps != nil {
		deps = *o.deps
		deps.Store = d.store
	} else {
		cat, err := LoadCatalog(cfg, d.logger)
		if err != nil {
			return nil, err
		}
		deps = handlers.NewDeps(cfg, d.store, cat, logger)
	}

	routes := dispatch.DefaultRoutes()
	registries, err := handlers.RegisterAll(deps, routes)
	if err != nil {
		return nil, fmt.Errorf("register handlers: %w", err)
	}
	if err := routes.Validate(lifecycle.AllReasons, registries); err != nil {
		return nil, fmt.Errorf("validate routes: %w", err)
	}

	recorder := observability.NewRecorder(cfg.Telemetry.Enabled, logger)
	tracer := observability.NewTracer(cfg.Telemetry.Enabled)

	d.engine = workflow.NewEngine(cfg, db, d.store, d.queues, coordinator, logger,
		workflow.WithRoutes(routes),
		workflow.WithStats(d.stats),
		workflow.WithTelemetry(recorder, tracer),
	)

	limiter := dispatch.NewLimiter(cfg.ExternalWrite)
	for _, name := range routes.Queues() {
		settings, _ := cfg.Queues.ByName(name)
		dispatchOpts := []dispatch.Option{
			dispatch.WithCoordinator(coordinator),
			dispatch.WithWaker(d.engine),
			dispatch.WithStats(d.stats),
			dispatch.WithTelemetry(recorder, tracer),
			dispatch.WithLogger(logger),
			dispatch.WithOwner(name + "-" + o.instanceID),
		}
		if name == queue.NameExternalWrite && limiter != nil {
			dispatchOpts = append(dispatchOpts, dispatch.WithLimiter(limiter))
		}
		d.dispatch = append(d.dispatch, dispatch.New(d.queues[name], registries[name], routes, settings, cfg.Queue, dispatchOpts...))
	}

	d.queueSvc = api.NewQueueService(d.queues)
	d.shipmentSvc = api.NewShipmentService(d.store)
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// LoadCatalog reads the configured catalog. A missing file yields an empty
// catalog so unknown SKUs fall back to the default category.
func LoadCatalog(cfg *config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err == nil {
		kits, categories, packaging := cat.Counts()
		logger.Info("catalog loaded",
			logging.String("path", cfg.Catalog.Path),
			logging.Int("kits", kits),
			logging.Int("categories", categories),
			logging.Int("packaging_rules", packaging),
		)
		return cat, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		logging.WarnWithContext(logger, "catalog not found; using empty catalog", "catalog_missing",
			logging.String("path", cfg.Catalog.Path),
			logging.String(logging.FieldImpact, "packaging decisions will dead-letter until a catalog is provided"),
			logging.ErrorHint("run shipflow config init or set catalog.path"),
		)
		return catalog.Empty(), nil
	}
	return nil, fmt.Errorf("load catalog %s: %w", cfg.Catalog.Path, err)
}

// Run starts the engine, every dispatcher, and the API server, and blocks
// until ctx is cancelled or a component fails.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	group, gctx := errgroup.WithContext(ctx)
	if err := d.api.start(gctx); err != nil {
		return err
	}
	defer d.api.stop()

	group.Go(func() error {
		return d.engine.Run(gctx)
	})
	for _, disp := range d.dispatch {
		group.Go(func() error {
			return disp.Run(gctx)
		})
	}

	d.logger.Info("shipflow daemon started",
		logging.String("database", d.db.Path()),
		logging.Int("dispatchers", len(d.dispatch)),
		logging.String("lock_backend", d.cfg.Locks.Backend),
	)
	err := group.Wait()
	d.logger.Info("shipflow daemon stopped")
	return err
}

// Running reports whether Run is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// InstanceID returns this process's identity.
func (d *Daemon) InstanceID() string {
	return d.instanceID
}

// Store returns the shipment store.
func (d *Daemon) Store() *shipment.Store {
	return d.store
}

// Status returns the monitoring snapshot served at /api/status.
func (d *Daemon) Status(ctx context.Context) api.StatusResponse {
	return api.NewStatusResponse(d.instanceID, d.stats.Snapshot(), d.engine.Status(ctx))
}

// Phases returns the current phase distribution.
func (d *Daemon) Phases(ctx context.Context) (api.PhasesResponse, error) {
	return d.shipmentSvc.Phases(ctx)
}

// DeadLetters lists dead entries of one queue.
func (d *Daemon) DeadLetters(ctx context.Context, name string, filter queue.DeadLetterFilter) (api.DeadLettersResponse, error) {
	return d.queueSvc.DeadLetters(ctx, name, filter)
}

// Replay returns dead entries to pending.
func (d *Daemon) Replay(ctx context.Context, req api.ReplayRequest) (api.ReplayResponse, error) {
	resp, err := d.queueSvc.Replay(ctx, req)
	if err != nil {
		return resp, err
	}
	d.logger.Info("dead letters replayed",
		logging.Queue(req.Queue),
		logging.Int("requested", resp.Requested),
		logging.Int64("replayed", resp.Replayed),
	)
	return resp, nil
}

// Wake asks the engine to evaluate id on its next tick.
func (d *Daemon) Wake(ctx context.Context, id string) error {
	return d.engine.Wake(ctx, id)
}
