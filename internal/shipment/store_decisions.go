package shipment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shipflow/internal/database"
	"shipflow/internal/services"
)

// LineItems returns the shipment's line items in insertion order.
func (s *Store) LineItems(ctx context.Context, id string) ([]LineItem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT sku, quantity, is_kit, category FROM line_items WHERE shipment_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetLineItems replaces the order composition written by ingest. Hydration is
// reset because the composition it was derived from is gone.
func (s *Store) SetLineItems(ctx context.Context, id string, items []LineItem) error {
	if err := validateItems(items); err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireTx(ctx, tx, id); err != nil {
			return err
		}
		if err := replaceItems(ctx, tx, id, items); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE shipments SET hydrated_at = NULL, updated_at = ? WHERE id = ?`, s.timestamp(), id)
		if err != nil {
			return fmt.Errorf("reset hydration: %w", err)
		}
		return nil
	})
}

// ApplyHydration stores the exploded line items and marks hydration done.
func (s *Store) ApplyHydration(ctx context.Context, id string, items []LineItem, at time.Time) error {
	if err := validateItems(items); err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireTx(ctx, tx, id); err != nil {
			return err
		}
		if err := replaceItems(ctx, tx, id, items); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE shipments SET hydrated_at = ?, updated_at = ? WHERE id = ?`, database.Millis(at), s.timestamp(), id)
		if err != nil {
			return fmt.Errorf("mark hydrated: %w", err)
		}
		return nil
	})
}

// SetCategories assigns categories by SKU. SKUs absent from the map keep
// their current category.
func (s *Store) SetCategories(ctx context.Context, id string, categories map[string]string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireTx(ctx, tx, id); err != nil {
			return err
		}
		for sku, category := range categories {
			if strings.TrimSpace(category) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE line_items SET category = ? WHERE shipment_id = ? AND sku = ?`, category, id, sku); err != nil {
				return fmt.Errorf("set category %s: %w", sku, err)
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE shipments SET updated_at = ? WHERE id = ?`, s.timestamp(), id)
		return err
	})
}

// SetFingerprint stores the composition fingerprint.
func (s *Store) SetFingerprint(ctx context.Context, id, fingerprint string) error {
	return s.exec(ctx, "set fingerprint", id,
		`UPDATE shipments SET fingerprint = ?, updated_at = ? WHERE id = ?`,
		database.NullableString(fingerprint), s.timestamp(), id)
}

// SetPackaging stores the packaging assignment.
func (s *Store) SetPackaging(ctx context.Context, id, packagingID string) error {
	return s.exec(ctx, "set packaging", id,
		`UPDATE shipments SET packaging_id = ?, updated_at = ? WHERE id = ?`,
		database.NullableString(packagingID), s.timestamp(), id)
}

// MarkRateChecked records the carrier-rate collaborator's acceptance.
func (s *Store) MarkRateChecked(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "mark rate checked", id,
		`UPDATE shipments SET rate_checked_at = ?, updated_at = ? WHERE id = ?`,
		database.Millis(at), s.timestamp(), id)
}

// MarkSessionRequested records that session admission was accepted.
func (s *Store) MarkSessionRequested(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "mark session requested", id,
		`UPDATE shipments SET session_requested_at = ?, updated_at = ? WHERE id = ?`,
		database.Millis(at), s.timestamp(), id)
}

// RecordSession stores the session system's assignment.
func (s *Store) RecordSession(ctx context.Context, id string, update SessionUpdate) error {
	if _, ok := ParseSessionState(string(update.State)); !ok {
		return services.Wrap(services.ErrValidation, "shipment", "record session", fmt.Sprintf("unknown session state %q", update.State), nil)
	}
	if update.SpotNumber < 0 {
		return services.Wrap(services.ErrValidation, "shipment", "record session", "spot number must be positive", nil)
	}
	var spot any
	if update.SpotNumber > 0 {
		spot = update.SpotNumber
	}
	return s.exec(ctx, "record session", id,
		`UPDATE shipments SET session_id = ?, spot_number = ?, session_state = ?, updated_at = ? WHERE id = ?`,
		database.NullableString(update.SessionID), spot, database.NullableString(string(update.State)), s.timestamp(), id)
}

// RecordHold stores the order system's hold flag. Once a shipment has been
// seen on hold the flag stays set. Leaving on_hold requests a wake so the
// next tick picks the shipment up without waiting for the staleness sweep.
func (s *Store) RecordHold(ctx context.Context, id string, hold HoldState) error {
	if _, ok := ParseHoldState(string(hold)); !ok {
		return services.Wrap(services.ErrValidation, "shipment", "record hold", fmt.Sprintf("unknown hold state %q", hold), nil)
	}
	return s.exec(ctx, "record hold", id,
		`UPDATE shipments
            SET hold_state = ?,
                seen_on_hold = MAX(seen_on_hold, ?),
                wake_requested = CASE WHEN hold_state = ? AND ? <> ? THEN 1 ELSE wake_requested END,
                updated_at = ?
          WHERE id = ?`,
		hold, database.BoolToInt(hold == HoldOnHold), HoldOnHold, hold, HoldOnHold, s.timestamp(), id)
}

// RecordSignal applies an external event. detail is the text for
// picking_issue and problem signals and is ignored otherwise.
func (s *Store) RecordSignal(ctx context.Context, id string, signal Signal, at time.Time, detail string) error {
	var (
		column string
		value  any
	)
	switch signal {
	case SignalPickStarted:
		column, value = "pick_started_at", database.Millis(at)
	case SignalPickEnded:
		column, value = "pick_ended_at", database.Millis(at)
	case SignalLabelCreated:
		column, value = "label_created_at", database.Millis(at)
	case SignalInTransit:
		column, value = "in_transit_at", database.Millis(at)
	case SignalDelivered:
		column, value = "delivered_at", database.Millis(at)
	case SignalCancelled:
		column, value = "cancelled_at", database.Millis(at)
	case SignalPickingIssue, SignalProblem:
		detail = strings.TrimSpace(detail)
		if detail == "" {
			return services.Wrap(services.ErrValidation, "shipment", "record signal", fmt.Sprintf("%s requires a description", signal), nil)
		}
		column, value = "picking_issue", detail
		if signal == SignalProblem {
			column = "problem"
		}
	case SignalPickingResolved:
		column, value = "picking_issue", nil
	default:
		return services.Wrap(services.ErrValidation, "shipment", "record signal", fmt.Sprintf("unknown signal %q", signal), nil)
	}
	return s.exec(ctx, "record "+string(signal), id,
		"UPDATE shipments SET "+column+" = ?, updated_at = ? WHERE id = ?",
		value, s.timestamp(), id)
}

func (s *Store) requireTx(ctx context.Context, tx *sql.Tx, id string) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM shipments WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("lookup shipment: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func replaceItems(ctx context.Context, tx *sql.Tx, id string, items []LineItem) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE shipment_id = ?`, id); err != nil {
		return fmt.Errorf("clear line items: %w", err)
	}
	for i, item := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO line_items (shipment_id, position, sku, quantity, is_kit, category) VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, item.SKU, item.Quantity, database.BoolToInt(item.IsKit), database.NullableString(item.Category),
		); err != nil {
			return fmt.Errorf("insert line item %s: %w", item.SKU, err)
		}
	}
	return nil
}

func validateItems(items []LineItem) error {
	for _, item := range items {
		if strings.TrimSpace(item.SKU) == "" {
			return services.Wrap(services.ErrValidation, "shipment", "line items", "sku is required", nil)
		}
		if item.Quantity <= 0 {
			return services.Wrap(services.ErrValidation, "shipment", "line items", fmt.Sprintf("quantity for %s must be positive", item.SKU), nil)
		}
	}
	return nil
}

func encodeReasons(reasons []string) (string, error) {
	if reasons == nil {
		reasons = []string{}
	}
	data, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("encode reasons: %w", err)
	}
	return string(data), nil
}

func decodeReasons(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var reasons []string
	if err := json.Unmarshal([]byte(raw), &reasons); err != nil {
		return nil, fmt.Errorf("decode reasons: %w", err)
	}
	return reasons, nil
}
