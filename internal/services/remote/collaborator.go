package remote

import (
	"context"
	"net/http"
	"strings"
)

// Collaborator is an opaque external call keyed by shipment id.
type Collaborator interface {
	Invoke(ctx context.Context, shipmentID string) error
}

// CollaboratorFunc adapts a function to Collaborator.
type CollaboratorFunc func(ctx context.Context, shipmentID string) error

// Invoke calls f.
func (f CollaboratorFunc) Invoke(ctx context.Context, shipmentID string) error {
	return f(ctx, shipmentID)
}

type endpoint struct {
	client *Client
	suffix string
}

// NewCollaborator returns a collaborator that POSTs to
// <baseURL>/shipments/<id><suffix>. An empty base URL yields a no-op
// collaborator so local runs work without the downstream systems.
func NewCollaborator(name, baseURL, suffix string, opts ...Option) Collaborator {
	if strings.TrimSpace(baseURL) == "" {
		return Noop{}
	}
	return &endpoint{client: NewClient(name, baseURL, opts...), suffix: suffix}
}

func (e *endpoint) Invoke(ctx context.Context, shipmentID string) error {
	return e.client.Do(ctx, http.MethodPost, ShipmentPath(shipmentID, e.suffix), nil)
}

// Noop accepts every call.
type Noop struct{}

// Invoke does nothing.
func (Noop) Invoke(context.Context, string) error { return nil }
