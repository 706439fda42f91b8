package queue

import (
	"encoding/json"
	"time"
)

// Queue names. Each name has its own dispatcher, handler set, and backoff policy.
const (
	NameEvents        = "events"
	NameHydration     = "hydration"
	NameExternalWrite = "external_write"
)

// Names lists every queue in display order.
var Names = []string{NameEvents, NameHydration, NameExternalWrite}

// State is the lifecycle of a queue entry.
type State string

const (
	StatePending State = "pending"
	StateLeased  State = "leased"
	StateDead    State = "dead"
)

// ParseState validates a state name.
func ParseState(value string) (State, bool) {
	switch State(value) {
	case StatePending, StateLeased, StateDead:
		return State(value), true
	}
	return "", false
}

// Entry is one scheduled side effect. At most one pending or leased entry
// exists per (queue, entity, reason).
type Entry struct {
	ID             int64           `json:"id"`
	Queue          string          `json:"queue"`
	EntityID       string          `json:"entityId"`
	Reason         string          `json:"reason"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Attempts       int             `json:"attempts"`
	State          State           `json:"state"`
	NextVisibleAt  time.Time       `json:"nextVisibleAt"`
	LeaseOwner     string          `json:"leaseOwner,omitempty"`
	LeaseExpiresAt *time.Time      `json:"leaseExpiresAt,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	DeadAt         *time.Time      `json:"deadAt,omitempty"`
}

// Key returns the dedup key "entityId:reason".
func (e Entry) Key() string {
	return e.EntityID + ":" + e.Reason
}

// Stats counts entries by state.
type Stats struct {
	Pending int `json:"pending"`
	Leased  int `json:"leased"`
	Dead    int `json:"dead"`
}

// Live returns the number of pending and leased entries.
func (s Stats) Live() int {
	return s.Pending + s.Leased
}

// DeadLetterFilter narrows DeadLetters and Purge. Zero values match everything.
type DeadLetterFilter struct {
	Reason string
	Since  time.Time
	Until  time.Time
	IDs    []int64
	Limit  int
}
