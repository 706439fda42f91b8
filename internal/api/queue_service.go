package api

import (
	"context"
	"errors"
	"fmt"

	"shipflow/internal/queue"
)

// ErrUnknownQueue is returned for a queue name the service does not hold.
var ErrUnknownQueue = errors.New("unknown queue")

// QueueService exposes queue inspection and dead-letter operations returning
// API DTOs.
type QueueService struct {
	queues map[string]*queue.Queue
}

// NewQueueService constructs a QueueService around the named queues.
func NewQueueService(queues map[string]*queue.Queue) *QueueService {
	if len(queues) == 0 {
		return nil
	}
	return &QueueService{queues: queues}
}

func (s *QueueService) queue(name string) (*queue.Queue, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}
	q, ok := s.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}
	return q, nil
}

// Stats returns entry counts for every queue.
func (s *QueueService) Stats(ctx context.Context) (map[string]QueueCounts, error) {
	out := make(map[string]QueueCounts)
	if s == nil {
		return out, nil
	}
	for name, q := range s.queues {
		stats, err := q.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = FromQueueStats(stats)
	}
	return out, nil
}

// List returns entries of one queue in the given states.
func (s *QueueService) List(ctx context.Context, name string, limit int, states ...queue.State) ([]QueueEntry, error) {
	q, err := s.queue(name)
	if err != nil {
		return nil, err
	}
	entries, err := q.List(ctx, limit, states...)
	if err != nil {
		return nil, err
	}
	return FromQueueEntries(entries), nil
}

// DeadLetters lists dead entries of one queue.
func (s *QueueService) DeadLetters(ctx context.Context, name string, filter queue.DeadLetterFilter) (DeadLettersResponse, error) {
	q, err := s.queue(name)
	if err != nil {
		return DeadLettersResponse{}, err
	}
	entries, err := q.DeadLetters(ctx, filter)
	if err != nil {
		return DeadLettersResponse{}, err
	}
	return DeadLettersResponse{Queue: name, Entries: FromQueueEntries(entries)}, nil
}

// Replay returns dead entries to pending with attempts reset.
func (s *QueueService) Replay(ctx context.Context, req ReplayRequest) (ReplayResponse, error) {
	q, err := s.queue(req.Queue)
	if err != nil {
		return ReplayResponse{}, err
	}
	n, err := q.Replay(ctx, req.IDs...)
	if err != nil {
		return ReplayResponse{}, err
	}
	return ReplayResponse{Queue: req.Queue, Requested: len(req.IDs), Replayed: n}, nil
}

// Purge deletes dead entries of one queue matching filter.
func (s *QueueService) Purge(ctx context.Context, name string, filter queue.DeadLetterFilter) (int64, error) {
	q, err := s.queue(name)
	if err != nil {
		return 0, err
	}
	return q.Purge(ctx, filter)
}
