package logging

import (
	"context"
	"log/slog"

	"shipflow/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldShipmentID is the standardized structured logging key for shipment identifiers.
	FieldShipmentID = "shipment_id"
	// FieldReason is the standardized structured logging key for side-effect reasons.
	FieldReason = "reason"
	// FieldQueue is the standardized structured logging key for work queue names.
	FieldQueue = "queue"
	// FieldPhase is the standardized structured logging key for lifecycle phase/subphase pairs.
	FieldPhase = "phase"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType names the kind of event a log line records (tick_complete, entry_dead_lettered, ...).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

func contextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.ShipmentIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldShipmentID, id))
	}
	if reason, ok := services.ReasonFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldReason, reason))
	}
	if name, ok := services.QueueFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldQueue, name))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
