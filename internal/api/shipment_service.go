package api

import (
	"context"
	"slices"

	"shipflow/internal/lifecycle"
	"shipflow/internal/shipment"
)

// ShipmentReader abstracts the store reads needed for API queries.
type ShipmentReader interface {
	Get(ctx context.Context, id string) (*shipment.Shipment, error)
	Transitions(ctx context.Context, id string, limit int) ([]shipment.Transition, error)
	PhaseDistribution(ctx context.Context) ([]shipment.PhaseCount, error)
}

// ShipmentService exposes read-only shipment queries returning API DTOs.
type ShipmentService struct {
	store ShipmentReader
}

// NewShipmentService constructs a ShipmentService around the provided reader.
func NewShipmentService(store ShipmentReader) *ShipmentService {
	if store == nil {
		return nil
	}
	return &ShipmentService{store: store}
}

// Describe fetches a single shipment.
func (s *ShipmentService) Describe(ctx context.Context, id string) (ShipmentView, error) {
	shp, err := s.store.Get(ctx, id)
	if err != nil {
		return ShipmentView{}, err
	}
	return FromShipment(shp), nil
}

// History returns the transition trail of a shipment, oldest first.
func (s *ShipmentService) History(ctx context.Context, id string, limit int) ([]HistoryEntry, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	transitions, err := s.store.Transitions(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	return FromTransitions(transitions), nil
}

// Phases returns the phase distribution in lifecycle order.
func (s *ShipmentService) Phases(ctx context.Context) (PhasesResponse, error) {
	counts, err := s.store.PhaseDistribution(ctx)
	if err != nil {
		return PhasesResponse{}, err
	}
	slices.SortStableFunc(counts, func(a, b shipment.PhaseCount) int {
		if c := position(lifecycle.Phases, a.Phase) - position(lifecycle.Phases, b.Phase); c != 0 {
			return c
		}
		return position(lifecycle.Subphases, a.Subphase) - position(lifecycle.Subphases, b.Subphase)
	})
	return FromPhaseCounts(counts), nil
}

// position orders unknown values after every known one.
func position[T comparable](order []T, v T) int {
	if i := slices.Index(order, v); i >= 0 {
		return i
	}
	return len(order)
}
