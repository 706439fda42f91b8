package carrier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shipflow/internal/config"
	"shipflow/internal/services"
	"shipflow/internal/services/remote"
)

// Field names the carrier system accepts on a shipment PATCH. shipflow owns
// only these; every other field stays under the carrier system's control.
const (
	FieldCustomField2 = "customField2"
	FieldLabelQueue   = "labelQueue"
	FieldPackagingID  = "packagingId"
)

var ownedFields = map[string]struct{}{
	FieldCustomField2: {},
	FieldLabelQueue:   {},
	FieldPackagingID:  {},
}

// Patcher applies partial updates to carrier shipments.
type Patcher interface {
	Patch(ctx context.Context, shipmentID string, fields map[string]any) error
}

// Client sends PATCH requests to the carrier system.
type Client struct {
	http *remote.Client
}

// NewClient constructs a carrier client against baseURL.
func NewClient(baseURL string, opts ...remote.Option) *Client {
	return &Client{http: remote.NewClient("carrier", baseURL, opts...)}
}

// NewConfiguredPatcher builds the carrier patcher from configuration, falling
// back to a no-op when no carrier URL is configured.
func NewConfiguredPatcher(cfg *config.Config) Patcher {
	if cfg == nil || strings.TrimSpace(cfg.Services.CarrierURL) == "" {
		return NoopPatcher{}
	}
	return NewClient(cfg.Services.CarrierURL,
		remote.WithAPIKey(cfg.Services.CarrierAPIKey),
		remote.WithTimeout(time.Duration(cfg.Services.RequestTimeout)*time.Second),
	)
}

// Patch sends only the supplied fields. Full-document writes are refused so a
// sync can never clobber fields the carrier system owns.
func (c *Client) Patch(ctx context.Context, shipmentID string, fields map[string]any) error {
	if strings.TrimSpace(shipmentID) == "" {
		return services.Wrap(services.ErrValidation, "carrier", "patch", "shipment id required", nil)
	}
	if len(fields) == 0 {
		return services.Wrap(services.ErrValidation, "carrier", "patch", "no fields to update", nil)
	}
	for key := range fields {
		if _, ok := ownedFields[key]; !ok {
			return services.Wrap(services.ErrValidation, "carrier", "patch", fmt.Sprintf("field %q is not owned by shipflow", key), nil)
		}
	}
	return c.http.Do(ctx, http.MethodPatch, remote.ShipmentPath(shipmentID, ""), fields)
}

// NoopPatcher accepts every patch without sending it.
type NoopPatcher struct{}

// Patch does nothing.
func (NoopPatcher) Patch(context.Context, string, map[string]any) error { return nil }

// SessionSpotField renders custom field 2 as "<session>  #<spot>" (two spaces
// before the hash). It returns "" when either part is missing.
func SessionSpotField(sessionID string, spot int) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || spot <= 0 {
		return ""
	}
	return fmt.Sprintf("%s  #%d", sessionID, spot)
}
