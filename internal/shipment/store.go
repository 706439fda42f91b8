package shipment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shipflow/internal/database"
	"shipflow/internal/services"
)

// ErrNotFound is returned when a shipment id is unknown.
var ErrNotFound = fmt.Errorf("shipment %w", services.ErrNotFound)

// ErrStaleState is returned by UpdateStateTx when another writer changed the
// stored phase after it was read.
var ErrStaleState = errors.New("shipment state changed concurrently")

// Store persists shipments, their line items, and the transition audit trail.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the store clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore binds a Store to the shared database.
func NewStore(db *database.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) timestamp() int64 {
	return database.Millis(s.now())
}

// Upsert creates the shipment when it is new and otherwise refreshes the
// order number and hold state. A hold of on_hold is remembered in seen_on_hold.
func (s *Store) Upsert(ctx context.Context, in Ingest) (*Shipment, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "shipment", "upsert", "shipment id is required", nil)
	}
	hold := in.HoldState
	if hold == "" {
		hold = HoldPending
	}
	if _, ok := ParseHoldState(string(hold)); !ok {
		return nil, services.Wrap(services.ErrValidation, "shipment", "upsert", fmt.Sprintf("unknown hold state %q", hold), nil)
	}

	now := s.timestamp()
	_, err := s.db.Exec(ctx, `
        INSERT INTO shipments (id, order_number, phase, hold_state, seen_on_hold, first_seen_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            order_number = COALESCE(excluded.order_number, shipments.order_number),
            hold_state = excluded.hold_state,
            seen_on_hold = MAX(shipments.seen_on_hold, excluded.seen_on_hold),
            wake_requested = CASE
                WHEN shipments.hold_state = 'on_hold' AND excluded.hold_state <> 'on_hold' THEN 1
                ELSE shipments.wake_requested END,
            updated_at = excluded.updated_at`,
		id,
		database.NullableString(in.OrderNumber),
		PhaseReadyToFulfill,
		hold,
		database.BoolToInt(hold == HoldOnHold),
		now,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert shipment: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a shipment with its line items.
func (s *Store) Get(ctx context.Context, id string) (*Shipment, error) {
	row := s.db.QueryRow(ctx, "SELECT "+shipmentColumns+" FROM shipments WHERE id = ?", id)
	shp, err := scanShipment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	items, err := s.LineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	shp.LineItems = items
	return shp, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Phases []Phase
	Limit  int
}

// List returns shipments ordered by first sighting.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Shipment, error) {
	query := "SELECT " + shipmentColumns + " FROM shipments"
	var args []any
	if len(filter.Phases) > 0 {
		query += " WHERE phase IN (" + database.Placeholders(len(filter.Phases)) + ")"
		for _, p := range filter.Phases {
			args = append(args, string(p))
		}
	}
	query += " ORDER BY first_seen_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	var out []*Shipment
	for rows.Next() {
		shp, err := scanShipment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		out = append(out, shp)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, shp := range out {
		if shp.LineItems, err = s.LineItems(ctx, shp.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Due returns up to limit non-terminal shipment ids that need evaluation:
// woken shipments first, then the ones evaluated longest ago.
func (s *Store) Due(ctx context.Context, staleness time.Duration, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	cutoff := database.Millis(s.now().Add(-staleness))
	rows, err := s.db.Query(ctx, `
        SELECT id FROM shipments
        WHERE phase NOT IN (?, ?, ?)
          AND (wake_requested = 1 OR last_evaluated_at IS NULL OR last_evaluated_at <= ?)
        ORDER BY wake_requested DESC, COALESCE(last_evaluated_at, 0) ASC, id ASC
        LIMIT ?`,
		PhaseDelivered, PhaseCancelled, PhaseProblem, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select due shipments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due shipment: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Touch records an evaluation that did not change the phase and clears the wake flag.
func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "touch shipment", id,
		`UPDATE shipments SET last_evaluated_at = ?, wake_requested = 0 WHERE id = ?`,
		database.Millis(at), id)
}

// RequestWake sets the persistent wake flag so the next engine tick picks the
// shipment first.
func (s *Store) RequestWake(ctx context.Context, id string) error {
	return s.exec(ctx, "request wake", id,
		`UPDATE shipments SET wake_requested = 1, updated_at = ? WHERE id = ?`,
		s.timestamp(), id)
}

// StateChange describes an engine transition written by UpdateStateTx.
type StateChange struct {
	Previous *Shipment
	Phase    Phase
	Subphase Subphase
	Reasons  []string
	At       time.Time
}

// UpdateStateTx writes the new phase and the audit row inside tx. The update
// is conditional on the previously read phase so a concurrent writer is
// detected instead of overwritten.
func (s *Store) UpdateStateTx(ctx context.Context, tx *sql.Tx, change StateChange) error {
	prev := change.Previous
	if prev == nil {
		return errors.New("update state: previous shipment is required")
	}
	at := database.Millis(change.At)
	res, err := tx.ExecContext(ctx, `
        UPDATE shipments
        SET phase = ?, subphase = ?, last_evaluated_at = ?, wake_requested = 0, updated_at = ?
        WHERE id = ? AND phase = ? AND COALESCE(subphase, '') = ?`,
		change.Phase,
		database.NullableString(string(change.Subphase)),
		at,
		at,
		prev.ID,
		prev.Phase,
		string(prev.Subphase),
	)
	if err != nil {
		return fmt.Errorf("update shipment state: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update shipment state rows: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrStaleState, prev.ID)
	}

	snapshot, err := prev.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot shipment: %w", err)
	}
	reasons, err := encodeReasons(change.Reasons)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO shipment_transitions (shipment_id, from_phase, from_subphase, to_phase, to_subphase, reasons, snapshot, at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		prev.ID,
		prev.Phase,
		database.NullableString(string(prev.Subphase)),
		change.Phase,
		database.NullableString(string(change.Subphase)),
		reasons,
		string(snapshot),
		at,
	); err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// Transitions returns the audit trail for id, oldest first.
func (s *Store) Transitions(ctx context.Context, id string, limit int) ([]Transition, error) {
	query := `SELECT id, shipment_id, from_phase, from_subphase, to_phase, to_subphase, reasons, snapshot, at
        FROM shipment_transitions WHERE shipment_id = ? ORDER BY id ASC`
	args := []any{id}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			tr           Transition
			fromSubphase sql.NullString
			toSubphase   sql.NullString
			reasons      string
			snapshot     string
			at           int64
		)
		if err := rows.Scan(&tr.ID, &tr.ShipmentID, &tr.FromPhase, &fromSubphase, &tr.ToPhase, &toSubphase, &reasons, &snapshot, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.FromSubphase = Subphase(fromSubphase.String)
		tr.ToSubphase = Subphase(toSubphase.String)
		if tr.Reasons, err = decodeReasons(reasons); err != nil {
			return nil, err
		}
		tr.Snapshot = []byte(snapshot)
		tr.At = database.FromMillis(at)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// PhaseDistribution counts shipments per (phase, subphase).
func (s *Store) PhaseDistribution(ctx context.Context) ([]PhaseCount, error) {
	rows, err := s.db.Query(ctx, `
        SELECT phase, COALESCE(subphase, ''), COUNT(1)
        FROM shipments GROUP BY phase, COALESCE(subphase, '') ORDER BY phase, 2`)
	if err != nil {
		return nil, fmt.Errorf("phase distribution: %w", err)
	}
	defer rows.Close()

	var out []PhaseCount
	for rows.Next() {
		var pc PhaseCount
		if err := rows.Scan(&pc.Phase, &pc.Subphase, &pc.Count); err != nil {
			return nil, fmt.Errorf("scan phase count: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (s *Store) exec(ctx context.Context, op, id, query string, args ...any) error {
	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w: %s", op, ErrNotFound, id)
	}
	return nil
}
