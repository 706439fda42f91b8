// Package queue implements the deduplicated, lease-based work queues that
// carry side effects from the lifecycle engine to the dispatchers.
//
// Every queue shares the queue_entries table and is distinguished by name
// (events, hydration, external_write). A partial unique index allows at most
// one pending or leased entry per (queue, entity, reason), so
// EnqueueIfAbsent is idempotent while different reasons for the same
// shipment coexist. Lease claims entries with a single UPDATE ... RETURNING,
// which is atomic across every process sharing the database.
//
// Failed attempts go back to pending with exponential, jittered backoff until
// MaxAttempts is reached, at which point the entry is dead. Dead entries stay
// in the table for inspection, Replay, or Purge.
package queue
