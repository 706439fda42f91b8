// Package daemon coordinates the long-running shipflow process.
//
// It wires configuration, the shipment store, the work queues, the lifecycle
// engine, one dispatcher per queue, and the monitoring API into a single
// lifecycle driven by Run. Every component stops when the Run context is
// cancelled; dispatchers release their leases on the way out so another
// process sharing the database can pick the work up immediately.
//
// Several daemons may run against the same database. Per-shipment evaluation
// and lease reclaim are serialized through the coord package, so the daemon
// itself takes no single-instance lock.
//
// Keep orchestration logic here: evaluation lives in workflow, side effects in
// handlers, and delivery in dispatch.
package daemon
