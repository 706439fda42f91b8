package handlers

import (
	"context"

	"shipflow/internal/dispatch"
)

// RateCheck asks the carrier-rate service to accept the shipment.
type RateCheck struct {
	deps Deps
}

func (h *RateCheck) Handle(ctx context.Context, task dispatch.Task) error {
	shp, err := h.deps.Store.Get(ctx, task.ShipmentID)
	if err != nil {
		return err
	}
	if shp.RateCheckedAt != nil {
		return nil
	}
	if err := h.deps.Rates.Invoke(ctx, task.ShipmentID); err != nil {
		return err
	}
	return h.deps.Store.MarkRateChecked(ctx, task.ShipmentID, h.deps.Now())
}

// SessionAdmission asks the picking-session service to admit the shipment.
// The session id arrives later through a session update.
type SessionAdmission struct {
	deps Deps
}

func (h *SessionAdmission) Handle(ctx context.Context, task dispatch.Task) error {
	shp, err := h.deps.Store.Get(ctx, task.ShipmentID)
	if err != nil {
		return err
	}
	if shp.SessionID != "" {
		return nil
	}
	if err := h.deps.Sessions.Invoke(ctx, task.ShipmentID); err != nil {
		return err
	}
	return h.deps.Store.MarkSessionRequested(ctx, task.ShipmentID, h.deps.Now())
}
