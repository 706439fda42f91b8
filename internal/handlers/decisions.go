package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"shipflow/internal/catalog"
	"shipflow/internal/dispatch"
	"shipflow/internal/logging"
	"shipflow/internal/services"
	"shipflow/internal/shipment"
)

// Categorization assigns a catalog category to every uncategorized line.
type Categorization struct {
	deps Deps
}

func (h *Categorization) Handle(ctx context.Context, task dispatch.Task) error {
	items, err := h.deps.Store.LineItems(ctx, task.ShipmentID)
	if err != nil {
		return err
	}
	assign := make(map[string]string)
	var unknown []string
	for _, item := range items {
		if item.Category != "" {
			continue
		}
		category, known := h.deps.Catalog.Category(item.SKU)
		if !known {
			unknown = append(unknown, item.SKU)
		}
		assign[item.SKU] = category
	}
	if len(assign) == 0 {
		return nil
	}
	if len(unknown) > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, h.deps.Logger), "skus missing from catalog", "category_defaulted",
			logging.Any("skus", unknown),
			logging.String("category", catalog.DefaultCategory),
			logging.String(logging.FieldImpact, "packaging uses the default category"),
		)
	}
	return h.deps.Store.SetCategories(ctx, task.ShipmentID, assign)
}

// FingerprintHandler stores the composition fingerprint.
type FingerprintHandler struct {
	deps Deps
}

func (h *FingerprintHandler) Handle(ctx context.Context, task dispatch.Task) error {
	items, err := h.deps.Store.LineItems(ctx, task.ShipmentID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return services.Wrap(services.ErrNotFound, "fingerprint", "load line items", "no line items", nil)
	}
	return h.deps.Store.SetFingerprint(ctx, task.ShipmentID, Fingerprint(items))
}

// Fingerprint hashes the sorted SKU×quantity composition. Line order and
// duplicate lines for the same SKU do not change the result.
func Fingerprint(items []shipment.LineItem) string {
	totals := make(map[string]int, len(items))
	for _, item := range items {
		totals[catalog.NormalizeSKU(item.SKU)] += item.Quantity
	}
	skus := make([]string, 0, len(totals))
	for sku := range totals {
		skus = append(skus, sku)
	}
	slices.Sort(skus)

	parts := make([]string, len(skus))
	for i, sku := range skus {
		parts[i] = fmt.Sprintf("%s×%d", sku, totals[sku])
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

// Packaging picks the first catalog rule that fits the composition. An
// existing assignment is kept, so repeated runs agree.
type Packaging struct {
	deps Deps
}

func (h *Packaging) Handle(ctx context.Context, task dispatch.Task) error {
	shp, err := h.deps.Store.Get(ctx, task.ShipmentID)
	if err != nil {
		return err
	}
	if shp.PackagingID != "" {
		return nil
	}
	if shp.Fingerprint == "" {
		return services.Wrap(services.ErrNotFound, "packaging", "select", "fingerprint not recorded yet", nil)
	}
	id, err := h.deps.Catalog.SelectPackaging(shp.LineItems)
	if err != nil {
		if errors.Is(err, catalog.ErrNoPackaging) {
			return services.Wrap(services.ErrConfiguration, "packaging", "select", "catalog has no fitting packaging rule", err)
		}
		return err
	}
	if err := h.deps.Store.SetPackaging(ctx, task.ShipmentID, id); err != nil {
		return err
	}
	logging.WithContext(ctx, h.deps.Logger).Info("packaging assigned",
		logging.EventType("packaging_assigned"),
		logging.String("packaging_id", id),
	)
	return nil
}
