package handlers

import (
	"context"

	"shipflow/internal/dispatch"
	"shipflow/internal/logging"
	"shipflow/internal/services"
)

// Hydration asks the order-catalog service to finish the order, then stores
// the kit-exploded composition.
type Hydration struct {
	deps Deps
}

// Handle returns a not-found error while the line items have not landed so
// the entry is retried with the hydration backoff.
func (h *Hydration) Handle(ctx context.Context, task dispatch.Task) error {
	shp, err := h.deps.Store.Get(ctx, task.ShipmentID)
	if err != nil {
		return err
	}
	if shp.HydratedAt != nil {
		return nil
	}
	if err := h.deps.Orders.Invoke(ctx, task.ShipmentID); err != nil {
		return err
	}

	items, err := h.deps.Store.LineItems(ctx, task.ShipmentID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return services.Wrap(services.ErrNotFound, "hydration", "load line items", "line items not ingested yet", nil)
	}
	exploded, err := h.deps.Catalog.Explode(items)
	if err != nil {
		return services.Wrap(services.ErrValidation, "hydration", "explode kits", "invalid composition", err)
	}
	if err := h.deps.Store.ApplyHydration(ctx, task.ShipmentID, exploded, h.deps.Now()); err != nil {
		return err
	}
	logging.WithContext(ctx, h.deps.Logger).Info("shipment hydrated",
		logging.EventType("hydrated"),
		logging.Int("ingested_lines", len(items)),
		logging.Int("exploded_lines", len(exploded)),
	)
	return nil
}
