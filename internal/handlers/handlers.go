package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"shipflow/internal/catalog"
	"shipflow/internal/config"
	"shipflow/internal/dispatch"
	"shipflow/internal/lifecycle"
	"shipflow/internal/logging"
	"shipflow/internal/services/carrier"
	"shipflow/internal/services/remote"
	"shipflow/internal/shipment"
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	Store    *shipment.Store
	Catalog  *catalog.Catalog
	Orders   remote.Collaborator
	Rates    remote.Collaborator
	Sessions remote.Collaborator
	Carrier  carrier.Patcher
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewDeps wires collaborators from configuration. Unset service URLs select
// no-op collaborators.
func NewDeps(cfg *config.Config, store *shipment.Store, cat *catalog.Catalog, logger *slog.Logger) Deps {
	opts := []remote.Option{remote.WithTimeout(time.Duration(cfg.Services.RequestTimeout) * time.Second)}
	return Deps{
		Store:    store,
		Catalog:  cat,
		Orders:   remote.NewCollaborator("order-catalog", cfg.Services.CatalogURL, "/hydrate", opts...),
		Rates:    remote.NewCollaborator("carrier-rate", cfg.Services.RatesURL, "/rate-check", opts...),
		Sessions: remote.NewCollaborator("picking-session", cfg.Services.SessionsURL, "/admit", opts...),
		Carrier:  carrier.NewConfiguredPatcher(cfg),
		Logger:   logger,
		Now:      time.Now,
	}
}

func (d Deps) normalized() Deps {
	if d.Catalog == nil {
		d.Catalog = catalog.Empty()
	}
	if d.Orders == nil {
		d.Orders = remote.Noop{}
	}
	if d.Rates == nil {
		d.Rates = remote.Noop{}
	}
	if d.Sessions == nil {
		d.Sessions = remote.Noop{}
	}
	if d.Carrier == nil {
		d.Carrier = carrier.NoopPatcher{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Logger = logging.NewComponentLogger(d.Logger, "handlers")
	return d
}

// New returns the handler for every reason.
func New(deps Deps) map[lifecycle.Reason]dispatch.Handler {
	deps = deps.normalized()
	return map[lifecycle.Reason]dispatch.Handler{
		lifecycle.ReasonHydration:      &Hydration{deps: deps},
		lifecycle.ReasonCategorization: &Categorization{deps: deps},
		lifecycle.ReasonFingerprint:    &FingerprintHandler{deps: deps},
		lifecycle.ReasonPackaging:      &Packaging{deps: deps},
		lifecycle.ReasonRateCheck:      &RateCheck{deps: deps},
		lifecycle.ReasonSession:        &SessionAdmission{deps: deps},
		lifecycle.ReasonShipmentSync:   &ShipmentSync{deps: deps},
		lifecycle.ReasonLabelQueue:     &LabelQueue{deps: deps},
	}
}

// RegisterAll builds one registry per queue named in routes and registers
// each reason's handler on the registry of the queue it routes to.
func RegisterAll(deps Deps, routes dispatch.Routes) (map[string]*dispatch.Registry, error) {
	all := New(deps)
	registries := make(map[string]*dispatch.Registry)
	for _, name := range routes.Queues() {
		reg := dispatch.NewRegistry()
		for _, reason := range routes.ForQueue(name) {
			handler, ok := all[reason]
			if !ok {
				return nil, fmt.Errorf("no handler implements reason %q", reason)
			}
			if err := reg.Register(reason, handler); err != nil {
				return nil, err
			}
		}
		registries[name] = reg
	}
	return registries, nil
}
