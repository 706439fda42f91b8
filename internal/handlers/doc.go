// Package handlers implements the side effect behind every lifecycle reason.
//
// Decision handlers (hydration, categorization, fingerprint, packaging,
// rate_check, session) record their result on the shipment and return; the
// dispatcher then wakes the engine, which moves the shipment to its next
// subphase. External-write handlers (shipment_sync, label_queue) patch the
// carrier system and change nothing locally.
//
// Every handler may run more than once for the same entry and checks the
// stored state before repeating work.
package handlers
