package dispatch

import (
	"errors"
	"fmt"
	"slices"

	"shipflow/internal/lifecycle"
	"shipflow/internal/queue"
)

// Route says which queue carries a reason and whether a successful handler
// should wake the engine for the shipment.
type Route struct {
	Queue string
	Wake  bool
}

// Routes maps every reason to its queue.
type Routes map[lifecycle.Reason]Route

// DefaultRoutes is the production routing table. Decision handlers wake the
// engine because their result unblocks the next subphase; external writes do
// not change any evaluated attribute.
func DefaultRoutes() Routes {
	return Routes{
		lifecycle.ReasonHydration:      {Queue: queue.NameHydration, Wake: true},
		lifecycle.ReasonCategorization: {Queue: queue.NameEvents, Wake: true},
		lifecycle.ReasonFingerprint:    {Queue: queue.NameEvents, Wake: true},
		lifecycle.ReasonPackaging:      {Queue: queue.NameEvents, Wake: true},
		lifecycle.ReasonRateCheck:      {Queue: queue.NameEvents, Wake: true},
		lifecycle.ReasonSession:        {Queue: queue.NameEvents, Wake: true},
		lifecycle.ReasonShipmentSync:   {Queue: queue.NameExternalWrite},
		lifecycle.ReasonLabelQueue:     {Queue: queue.NameExternalWrite},
	}
}

// Lookup returns the route for reason.
func (r Routes) Lookup(reason lifecycle.Reason) (Route, error) {
	route, ok := r[reason]
	if !ok {
		return Route{}, fmt.Errorf("no route for reason %q", reason)
	}
	return route, nil
}

// ForQueue lists the reasons routed to name in a stable order.
func (r Routes) ForQueue(name string) []lifecycle.Reason {
	var out []lifecycle.Reason
	for reason, route := range r {
		if route.Queue == name {
			out = append(out, reason)
		}
	}
	slices.Sort(out)
	return out
}

// Queues lists the distinct queue names referenced by the table.
func (r Routes) Queues() []string {
	var out []string
	for _, route := range r {
		if !slices.Contains(out, route.Queue) {
			out = append(out, route.Queue)
		}
	}
	slices.Sort(out)
	return out
}

// Validate checks that every reason has a route onto a known queue and that
// every route has a handler in the registry for its queue.
func (r Routes) Validate(reasons []lifecycle.Reason, registries map[string]*Registry) error {
	var errs []error
	for _, reason := range reasons {
		route, ok := r[reason]
		if !ok {
			errs = append(errs, fmt.Errorf("reason %q has no route", reason))
			continue
		}
		if !slices.Contains(queue.Names, route.Queue) {
			errs = append(errs, fmt.Errorf("reason %q routes to unknown queue %q", reason, route.Queue))
			continue
		}
		reg := registries[route.Queue]
		if reg == nil {
			errs = append(errs, fmt.Errorf("queue %q has no dispatcher for reason %q", route.Queue, reason))
			continue
		}
		if err := reg.Validate([]lifecycle.Reason{reason}); err != nil {
			errs = append(errs, fmt.Errorf("queue %q: %w", route.Queue, err))
		}
	}
	return errors.Join(errs...)
}
