package queue

import "errors"

var (
	// ErrEntryNotFound is returned when an entry id does not exist in the queue.
	ErrEntryNotFound = errors.New("queue entry not found")
	// ErrLeaseLost is returned when the caller no longer holds the lease it is
	// acting on, usually because it expired and was reclaimed.
	ErrLeaseLost = errors.New("queue lease lost")
)
