package queue

import (
	"context"
	"fmt"

	"shipflow/internal/database"
)

const defaultDeadLetterLimit = 100

// DeadLetters returns dead entries, most recently dead first.
func (q *Queue) DeadLetters(ctx context.Context, filter DeadLetterFilter) ([]Entry, error) {
	where, args := q.deadWhere(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeadLetterLimit
	}
	args = append(args, limit)
	rows, err := q.db.Query(ctx,
		`SELECT `+entryColumns+` FROM queue_entries WHERE `+where+` ORDER BY dead_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Replay moves dead entries back to pending with attempts reset. An entry
// whose key already has a live entry is left dead.
func (q *Queue) Replay(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := q.timestamp()
	args := []any{StatePending, now, now, q.name, StateDead}
	args = append(args, int64Args(ids)...)
	res, err := q.db.Exec(ctx, `
        UPDATE OR IGNORE queue_entries
        SET state = ?, attempts = 0, next_visible_at = ?, dead_at = NULL, updated_at = ?
        WHERE queue_name = ? AND state = ? AND id IN (`+database.Placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("replay dead letters: %w", err)
	}
	return res.RowsAffected()
}

// Purge deletes dead entries matching filter.
func (q *Queue) Purge(ctx context.Context, filter DeadLetterFilter) (int64, error) {
	where, args := q.deadWhere(filter)
	query := `DELETE FROM queue_entries WHERE ` + where
	if filter.Limit > 0 {
		query = `DELETE FROM queue_entries WHERE id IN (SELECT id FROM queue_entries WHERE ` + where + ` ORDER BY dead_at, id LIMIT ?)`
		args = append(args, filter.Limit)
	}
	res, err := q.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return res.RowsAffected()
}

func (q *Queue) deadWhere(filter DeadLetterFilter) (string, []any) {
	where := "queue_name = ? AND state = ?"
	args := []any{q.name, StateDead}
	if filter.Reason != "" {
		where += " AND reason = ?"
		args = append(args, filter.Reason)
	}
	if !filter.Since.IsZero() {
		where += " AND dead_at >= ?"
		args = append(args, database.Millis(filter.Since))
	}
	if !filter.Until.IsZero() {
		where += " AND dead_at < ?"
		args = append(args, database.Millis(filter.Until))
	}
	if len(filter.IDs) > 0 {
		where += " AND id IN (" + database.Placeholders(len(filter.IDs)) + ")"
		args = append(args, int64Args(filter.IDs)...)
	}
	return where, args
}

// Stats counts this queue's entries by state.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	rows, err := q.db.Query(ctx, `SELECT state, COUNT(1) FROM queue_entries WHERE queue_name = ? GROUP BY state`, q.name)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return Stats{}, err
		}
		switch State(state) {
		case StatePending:
			stats.Pending = count
		case StateLeased:
			stats.Leased = count
		case StateDead:
			stats.Dead = count
		}
	}
	return stats, rows.Err()
}

// List returns entries in the given states ordered by visibility. With no
// states every entry is listed.
func (q *Queue) List(ctx context.Context, limit int, states ...State) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE queue_name = ?`
	args := []any{q.name}
	if len(states) > 0 {
		query += " AND state IN (" + database.Placeholders(len(states)) + ")"
		for _, s := range states {
			args = append(args, string(s))
		}
	}
	query += " ORDER BY next_visible_at, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
