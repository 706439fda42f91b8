package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"shipflow/internal/database"
)

const entryColumns = "id, queue_name, entity_id, reason, payload, attempts, state, next_visible_at, lease_owner, lease_expires_at, last_error, created_at, updated_at, dead_at"

// Queue is one named work queue stored in the shared queue_entries table.
type Queue struct {
	db     *database.DB
	name   string
	policy BackoffPolicy
	now    func() time.Time
	sample func() float64
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClock overrides the queue clock.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithJitterSource overrides the uniform [0, 1) source used for backoff jitter.
func WithJitterSource(sample func() float64) Option {
	return func(q *Queue) {
		if sample != nil {
			q.sample = sample
		}
	}
}

// New binds a queue name and retry policy to the database.
func New(db *database.DB, name string, policy BackoffPolicy, opts ...Option) *Queue {
	q := &Queue{
		db:     db,
		name:   name,
		policy: policy,
		now:    time.Now,
		sample: rand.Float64,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Policy returns the retry policy.
func (q *Queue) Policy() BackoffPolicy { return q.policy }

func (q *Queue) timestamp() int64 {
	return database.Millis(q.now())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnqueueIfAbsent schedules reason for entityID unless a live entry for the
// same key exists. It reports whether a new entry was inserted.
func (q *Queue) EnqueueIfAbsent(ctx context.Context, entityID, reason string, payload json.RawMessage) (bool, error) {
	var inserted bool
	err := database.RetryOnBusy(ctx, func() error {
		var err error
		inserted, err = q.enqueue(ctx, q.db.Conn(), entityID, reason, payload)
		return err
	})
	return inserted, err
}

// EnqueueIfAbsentTx is EnqueueIfAbsent inside the caller's transaction, so the
// entry commits atomically with the state change that produced it.
func (q *Queue) EnqueueIfAbsentTx(ctx context.Context, tx *sql.Tx, entityID, reason string, payload json.RawMessage) (bool, error) {
	return q.enqueue(ctx, tx, entityID, reason, payload)
}

func (q *Queue) enqueue(ctx context.Context, exec execer, entityID, reason string, payload json.RawMessage) (bool, error) {
	if strings.TrimSpace(entityID) == "" || strings.TrimSpace(reason) == "" {
		return false, errors.New("enqueue: entity id and reason are required")
	}
	body := "{}"
	if len(payload) > 0 {
		if !json.Valid(payload) {
			return false, fmt.Errorf("enqueue %s:%s: payload is not valid json", entityID, reason)
		}
		body = string(payload)
	}
	now := q.timestamp()
	res, err := exec.ExecContext(ctx, `
        INSERT OR IGNORE INTO queue_entries (queue_name, entity_id, reason, payload, attempts, state, next_visible_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		q.name, entityID, reason, body, StatePending, now, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s:%s: %w", entityID, reason, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue rows: %w", err)
	}
	return n > 0, nil
}

// Lease claims up to batchSize visible pending entries for owner. The claim
// is a single UPDATE so concurrent callers never receive the same entry.
func (q *Queue) Lease(ctx context.Context, owner string, batchSize int, visibility time.Duration) ([]Entry, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	now := q.now()
	var entries []Entry
	err := database.RetryOnBusy(ctx, func() error {
		entries = entries[:0]
		rows, err := q.db.Query(ctx, `
            UPDATE queue_entries
            SET state = ?, lease_owner = ?, lease_expires_at = ?, updated_at = ?
            WHERE id IN (
                SELECT id FROM queue_entries
                WHERE queue_name = ? AND state = ? AND next_visible_at <= ?
                ORDER BY next_visible_at, id
                LIMIT ?
            )
            RETURNING `+entryColumns,
			StateLeased, owner, database.Millis(now.Add(visibility)), database.Millis(now),
			q.name, StatePending, database.Millis(now), batchSize,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("lease %s: %w", q.name, err)
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := a.NextVisibleAt.Compare(b.NextVisibleAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return entries, nil
}

// Extend renews owner's lease on id so it expires visibility from now. It
// returns ErrLeaseLost once the entry was reclaimed or leased by another owner.
func (q *Queue) Extend(ctx context.Context, id int64, owner string, visibility time.Duration) (time.Time, error) {
	now := q.now()
	expires := now.Add(visibility)
	var res sql.Result
	err := database.RetryOnBusy(ctx, func() error {
		var err error
		res, err = q.db.Exec(ctx, `
            UPDATE queue_entries SET lease_expires_at = ?, updated_at = ?
            WHERE id = ? AND queue_name = ? AND state = ? AND lease_owner = ?`,
			database.Millis(expires), database.Millis(now), id, q.name, StateLeased, owner)
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("extend lease %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("extend lease %d rows: %w", id, err)
	}
	if n == 0 {
		return time.Time{}, fmt.Errorf("%w: entry %d", ErrLeaseLost, id)
	}
	return expires, nil
}

// Ack removes a leased entry after its handler succeeded.
func (q *Queue) Ack(ctx context.Context, id int64, owner string) error {
	res, err := q.db.Exec(ctx,
		`DELETE FROM queue_entries WHERE id = ? AND queue_name = ? AND state = ? AND lease_owner = ?`,
		id, q.name, StateLeased, owner)
	if err != nil {
		return fmt.Errorf("ack entry %d: %w", id, err)
	}
	return requireAffected(res, id)
}

// Retry records a failed attempt. The entry returns to pending after the
// policy's backoff, or becomes dead once attempts reach MaxAttempts.
func (q *Queue) Retry(ctx context.Context, id int64, owner string, cause error) (Entry, error) {
	return q.fail(ctx, id, owner, cause, false)
}

// DeadLetter records a failed attempt and dead-letters the entry immediately.
func (q *Queue) DeadLetter(ctx context.Context, id int64, owner string, cause error) (Entry, error) {
	return q.fail(ctx, id, owner, cause, true)
}

func (q *Queue) fail(ctx context.Context, id int64, owner string, cause error, permanent bool) (Entry, error) {
	var updated Entry
	err := q.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+entryColumns+` FROM queue_entries WHERE id = ? AND queue_name = ? AND state = ? AND lease_owner = ?`,
			id, q.name, StateLeased, owner)
		entry, err := scanEntry(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: entry %d", ErrLeaseLost, id)
			}
			return fmt.Errorf("load entry %d: %w", id, err)
		}

		now := q.now()
		entry.Attempts++
		entry.LastError = errorText(cause)
		entry.LeaseOwner = ""
		entry.LeaseExpiresAt = nil
		entry.UpdatedAt = now
		if permanent || q.policy.Exhausted(entry.Attempts) {
			entry.State = StateDead
			entry.DeadAt = &now
		} else {
			entry.State = StatePending
			entry.NextVisibleAt = now.Add(q.policy.Delay(entry.Attempts, q.sample()))
		}

		if _, err := tx.ExecContext(ctx, `
            UPDATE queue_entries
            SET attempts = ?, state = ?, next_visible_at = ?, lease_owner = NULL, lease_expires_at = NULL,
                last_error = ?, updated_at = ?, dead_at = ?
            WHERE id = ?`,
			entry.Attempts, entry.State, database.Millis(entry.NextVisibleAt),
			database.NullableString(entry.LastError), database.Millis(now), database.NullableMillis(entry.DeadAt),
			id,
		); err != nil {
			return fmt.Errorf("update entry %d: %w", id, err)
		}
		updated = entry
		return nil
	})
	return updated, err
}

// Release returns owner's leases to pending without counting an attempt.
// With no ids every lease held by owner is released.
func (q *Queue) Release(ctx context.Context, owner string, ids ...int64) (int64, error) {
	query := `UPDATE queue_entries SET state = ?, lease_owner = NULL, lease_expires_at = NULL, updated_at = ?
        WHERE queue_name = ? AND state = ? AND lease_owner = ?`
	args := []any{StatePending, q.timestamp(), q.name, StateLeased, owner}
	if len(ids) > 0 {
		query += " AND id IN (" + database.Placeholders(len(ids)) + ")"
		args = append(args, int64Args(ids)...)
	}
	res, err := q.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("release leases: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimExpired returns leases past their visibility timeout to pending.
// The attempt is not counted; the worker that held it may still be running.
func (q *Queue) ReclaimExpired(ctx context.Context) (int64, error) {
	now := q.timestamp()
	res, err := q.db.Exec(ctx, `
        UPDATE queue_entries
        SET state = ?, lease_owner = NULL, lease_expires_at = NULL, next_visible_at = ?, updated_at = ?
        WHERE queue_name = ? AND state = ? AND lease_expires_at <= ?`,
		StatePending, now, now, q.name, StateLeased, now)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return res.RowsAffected()
}

// Get loads one entry of this queue.
func (q *Queue) Get(ctx context.Context, id int64) (Entry, error) {
	row := q.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = ? AND queue_name = ?`, id, q.name)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: %d", ErrEntryNotFound, id)
		}
		return Entry{}, fmt.Errorf("get entry %d: %w", id, err)
	}
	return entry, nil
}

func scanEntry(scanner database.Scanner) (Entry, error) {
	var (
		entry          Entry
		payload        string
		state          string
		nextVisibleAt  int64
		leaseOwner     sql.NullString
		leaseExpiresAt sql.NullInt64
		lastError      sql.NullString
		createdAt      int64
		updatedAt      int64
		deadAt         sql.NullInt64
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.Queue,
		&entry.EntityID,
		&entry.Reason,
		&payload,
		&entry.Attempts,
		&state,
		&nextVisibleAt,
		&leaseOwner,
		&leaseExpiresAt,
		&lastError,
		&createdAt,
		&updatedAt,
		&deadAt,
	); err != nil {
		return Entry{}, err
	}
	entry.Payload = json.RawMessage(payload)
	entry.State = State(state)
	entry.NextVisibleAt = database.FromMillis(nextVisibleAt)
	entry.LeaseOwner = leaseOwner.String
	entry.LeaseExpiresAt = database.TimePtr(leaseExpiresAt)
	entry.LastError = lastError.String
	entry.CreatedAt = database.FromMillis(createdAt)
	entry.UpdatedAt = database.FromMillis(updatedAt)
	entry.DeadAt = database.TimePtr(deadAt)
	return entry, nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: entry %d", ErrLeaseLost, id)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	const maxLen = 2000
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
