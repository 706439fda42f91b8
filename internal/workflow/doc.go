// Package workflow runs the lifecycle engine.
//
// Each tick selects a bounded batch of due shipments (woken first, then the
// longest unevaluated), and evaluates each one under its shipment lock. A
// changed, non-backward result is written together with its audit row and
// the side-effect entries it schedules in a single transaction, so a crash
// never leaves a transition without its queued work. Backward results are
// discarded and logged; the stored phase only moves forward.
//
// Dispatchers call Wake after a handler records a decision so the next
// subphase is reached without waiting for the staleness sweep.
package workflow
