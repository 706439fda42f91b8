package shipment

import (
	"database/sql"
	"fmt"

	"shipflow/internal/database"
)

const shipmentColumns = "id, order_number, phase, subphase, hold_state, seen_on_hold, first_seen_at, last_evaluated_at, hydrated_at, fingerprint, packaging_id, rate_checked_at, session_requested_at, session_id, spot_number, session_state, pick_started_at, pick_ended_at, picking_issue, label_created_at, in_transit_at, delivered_at, cancelled_at, problem, wake_requested, created_at, updated_at"

func scanShipment(scanner database.Scanner) (*Shipment, error) {
	var (
		id                 string
		orderNumber        sql.NullString
		phase              string
		subphase           sql.NullString
		holdState          string
		seenOnHold         int
		firstSeenAt        int64
		lastEvaluatedAt    sql.NullInt64
		hydratedAt         sql.NullInt64
		fingerprint        sql.NullString
		packagingID        sql.NullString
		rateCheckedAt      sql.NullInt64
		sessionRequestedAt sql.NullInt64
		sessionID          sql.NullString
		spotNumber         sql.NullInt64
		sessionState       sql.NullString
		pickStartedAt      sql.NullInt64
		pickEndedAt        sql.NullInt64
		pickingIssue       sql.NullString
		labelCreatedAt     sql.NullInt64
		inTransitAt        sql.NullInt64
		deliveredAt        sql.NullInt64
		cancelledAt        sql.NullInt64
		problem            sql.NullString
		wakeRequested      int
		createdAt          int64
		updatedAt          int64
	)

	if err := scanner.Scan(
		&id,
		&orderNumber,
		&phase,
		&subphase,
		&holdState,
		&seenOnHold,
		&firstSeenAt,
		&lastEvaluatedAt,
		&hydratedAt,
		&fingerprint,
		&packagingID,
		&rateCheckedAt,
		&sessionRequestedAt,
		&sessionID,
		&spotNumber,
		&sessionState,
		&pickStartedAt,
		&pickEndedAt,
		&pickingIssue,
		&labelCreatedAt,
		&inTransitAt,
		&deliveredAt,
		&cancelledAt,
		&problem,
		&wakeRequested,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	return &Shipment{
		ID:                 id,
		OrderNumber:        orderNumber.String,
		Phase:              Phase(phase),
		Subphase:           Subphase(subphase.String),
		HoldState:          HoldState(holdState),
		SeenOnHold:         seenOnHold != 0,
		FirstSeenAt:        database.FromMillis(firstSeenAt),
		LastEvaluatedAt:    database.TimePtr(lastEvaluatedAt),
		HydratedAt:         database.TimePtr(hydratedAt),
		Fingerprint:        fingerprint.String,
		PackagingID:        packagingID.String,
		RateCheckedAt:      database.TimePtr(rateCheckedAt),
		SessionRequestedAt: database.TimePtr(sessionRequestedAt),
		SessionID:          sessionID.String,
		SpotNumber:         int(spotNumber.Int64),
		SessionState:       SessionState(sessionState.String),
		PickStartedAt:      database.TimePtr(pickStartedAt),
		PickEndedAt:        database.TimePtr(pickEndedAt),
		PickingIssue:       pickingIssue.String,
		LabelCreatedAt:     database.TimePtr(labelCreatedAt),
		InTransitAt:        database.TimePtr(inTransitAt),
		DeliveredAt:        database.TimePtr(deliveredAt),
		CancelledAt:        database.TimePtr(cancelledAt),
		Problem:            problem.String,
		WakeRequested:      wakeRequested != 0,
		CreatedAt:          database.FromMillis(createdAt),
		UpdatedAt:          database.FromMillis(updatedAt),
	}, nil
}

func scanLineItem(scanner database.Scanner) (LineItem, error) {
	var (
		item     LineItem
		isKit    int
		category sql.NullString
	)
	if err := scanner.Scan(&item.SKU, &item.Quantity, &isKit, &category); err != nil {
		return LineItem{}, fmt.Errorf("scan line item: %w", err)
	}
	item.IsKit = isKit != 0
	item.Category = category.String
	return item, nil
}
