// Package dispatch runs side-effect handlers for leased queue entries.
//
// Each queue gets one Dispatcher with its own Registry of reason handlers.
// Routes decides which queue a reason is enqueued on and whether a successful
// handler wakes the lifecycle engine. A nil handler error acks the entry,
// permanent errors dead-letter it, and everything else is retried with the
// queue's backoff. Entries caught mid-flight by shutdown are released without
// counting an attempt.
package dispatch
