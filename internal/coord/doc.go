// Package coord provides the worker-coordination locks that keep two
// processes from evaluating the same shipment or reclaiming the same queue
// at once.
//
// SQLiteLock works across every process sharing the database and lets an
// expired lock be stolen, so a crashed holder never blocks a scope longer
// than its ttl. FileLock uses flock(2) and suits single-host deployments.
// Coordinator.WithLock is the only entry point the engine and dispatchers use.
package coord
