package handlers

import (
	"context"

	"shipflow/internal/dispatch"
	"shipflow/internal/logging"
	"shipflow/internal/services"
	"shipflow/internal/services/carrier"
)

// ShipmentSync writes the session and spot to the carrier shipment.
type ShipmentSync struct {
	deps Deps
}

func (h *ShipmentSync) Handle(ctx context.Context, task dispatch.Task) error {
	shp, err := h.deps.Store.Get(ctx, task.ShipmentID)
	if err != nil {
		return err
	}
	field := carrier.SessionSpotField(shp.SessionID, shp.SpotNumber)
	if field == "" {
		return services.Wrap(services.ErrPermanent, "shipment_sync", "render", "shipment has no session or spot", nil)
	}
	if err := h.deps.Carrier.Patch(ctx, task.ShipmentID, map[string]any{carrier.FieldCustomField2: field}); err != nil {
		return err
	}
	logging.WithContext(ctx, h.deps.Logger).Info("carrier shipment synced",
		logging.EventType("carrier_synced"),
		logging.String(carrier.FieldCustomField2, field),
	)
	return nil
}

// LabelQueue marks the carrier shipment ready for label printing.
type LabelQueue struct {
	deps Deps
}

func (h *LabelQueue) Handle(ctx context.Context, task dispatch.Task) error {
	shp, err := h.deps.Store.Get(ctx, task.ShipmentID)
	if err != nil {
		return err
	}
	if shp.PackagingID == "" {
		return services.Wrap(services.ErrPermanent, "label_queue", "render", "shipment has no packaging", nil)
	}
	return h.deps.Carrier.Patch(ctx, task.ShipmentID, map[string]any{
		carrier.FieldLabelQueue:  true,
		carrier.FieldPackagingID: shp.PackagingID,
	})
}
