package services

import "context"

type contextKey string

const (
	shipmentIDKey contextKey = "shipment_id"
	reasonKey     contextKey = "reason"
	queueKey      contextKey = "queue"
	requestIDKey  contextKey = "request_id"
)

// WithShipmentID annotates context with the shipment identifier.
func WithShipmentID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, shipmentIDKey, id)
}

// ShipmentIDFromContext extracts the shipment identifier if present.
func ShipmentIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(shipmentIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithReason annotates context with the side-effect reason being handled.
func WithReason(ctx context.Context, reason string) context.Context {
	if reason == "" {
		return ctx
	}
	return context.WithValue(ctx, reasonKey, reason)
}

// ReasonFromContext returns the side-effect reason if present.
func ReasonFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(reasonKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithQueue annotates context with the work queue name.
func WithQueue(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, queueKey, name)
}

// QueueFromContext returns the work queue name if present.
func QueueFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(queueKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
