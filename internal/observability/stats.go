package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultRecentTransitions = 50

// TransitionRecord is one phase change kept in the recent-transitions ring.
type TransitionRecord struct {
	ShipmentID string    `json:"shipmentId"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Reasons    []string  `json:"reasons,omitempty"`
	At         time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Running           bool               `json:"running"`
	QueueLength       int64              `json:"queueLength"`
	InflightCount     int64              `json:"inflightCount"`
	ProcessedCount    int64              `json:"processedCount"`
	ErrorCount        int64              `json:"errorCount"`
	RecentTransitions []TransitionRecord `json:"recentTransitions"`
}

// Stats holds this process's counters. Every field is safe for concurrent use.
type Stats struct {
	running     atomic.Bool
	queueLength atomic.Int64
	inflight    atomic.Int64
	processed   atomic.Int64
	errors      atomic.Int64

	mu     sync.Mutex
	ring   []TransitionRecord
	next   int
	filled bool
}

// NewStats keeps the last capacity transitions.
func NewStats(capacity int) *Stats {
	if capacity <= 0 {
		capacity = defaultRecentTransitions
	}
	return &Stats{ring: make([]TransitionRecord, capacity)}
}

func (s *Stats) SetRunning(v bool) { s.running.Store(v) }
func (s *Stats) SetQueueLength(n int64) { s.queueLength.Store(n) }
func (s *Stats) AddError() { s.errors.Add(1) }
func (s *Stats) AddProcessed() { s.processed.Add(1) }
func (s *Stats) Inflight() int64 { return s.inflight.Load() }

// TrackInflight counts one in-flight handler until the returned func is called.
func (s *Stats) TrackInflight() (done func()) {
	s.inflight.Add(1)
	var once sync.Once
	return func() { once.Do(func() { s.inflight.Add(-1) }) }
}

// RecordTransition appends to the ring, overwriting the oldest record when full.
func (s *Stats) RecordTransition(rec TransitionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = rec
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.filled = true
	}
}

// Snapshot copies the counters and returns recent transitions newest first.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Running:        s.running.Load(),
		QueueLength:    s.queueLength.Load(),
		InflightCount:  s.inflight.Load(),
		ProcessedCount: s.processed.Load(),
		ErrorCount:     s.errors.Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	count := s.next
	if s.filled {
		count = len(s.ring)
	}
	snap.RecentTransitions = make([]TransitionRecord, 0, count)
	for i := 1; i <= count; i++ {
		idx := (s.next - i + len(s.ring)) % len(s.ring)
		snap.RecentTransitions = append(snap.RecentTransitions, s.ring[idx])
	}
	return snap
}
