// Package memory provides an in-memory audit sink for tests, the replay
// tool, and runs without a database.
package memory

import (
	"context"
	"sync"

	"meanrev-engine/internal/audit"
)

// DefaultCapacity bounds each record kind when no capacity is given.
const DefaultCapacity = 1000

// Sink keeps the most recent records of each kind in bounded rings.
type Sink struct {
	mu      sync.RWMutex
	cap     int
	signals []audit.SignalEvent
	health  []audit.HealthSnapshot
	perf    []audit.PerformanceSnapshot
	seen    map[string]struct{} // signal IDs already recorded
}

// NewSink creates an in-memory sink. capacity <= 0 uses DefaultCapacity.
func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{
		cap:  capacity,
		seen: make(map[string]struct{}),
	}
}

var _ audit.Sink = (*Sink)(nil)

// RecordSignal appends the event. Returns ErrDuplicateKey when the signal ID
// was already recorded.
func (s *Sink) RecordSignal(_ context.Context, ev audit.SignalEvent) error {
	if ev.SignalID == "" {
		return audit.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[ev.SignalID]; exists {
		return audit.ErrDuplicateKey
	}
	s.seen[ev.SignalID] = struct{}{}

	s.signals = append(s.signals, ev)
	if len(s.signals) > s.cap {
		evicted := s.signals[0]
		delete(s.seen, evicted.SignalID)
		s.signals = s.signals[1:]
	}
	return nil
}

// RecordHealth appends the snapshot, evicting the oldest past capacity.
func (s *Sink) RecordHealth(_ context.Context, hs audit.HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.health = append(s.health, hs)
	if len(s.health) > s.cap {
		s.health = s.health[1:]
	}
	return nil
}

// RecordPerformance appends the snapshot, evicting the oldest past capacity.
func (s *Sink) RecordPerformance(_ context.Context, ps audit.PerformanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.perf = append(s.perf, ps)
	if len(s.perf) > s.cap {
		s.perf = s.perf[1:]
	}
	return nil
}

// Signals returns a copy of recorded signal events, oldest first.
func (s *Sink) Signals() []audit.SignalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.SignalEvent, len(s.signals))
	copy(out, s.signals)
	return out
}

// Health returns a copy of recorded health snapshots, oldest first.
func (s *Sink) Health() []audit.HealthSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.HealthSnapshot, len(s.health))
	copy(out, s.health)
	return out
}

// Performance returns a copy of recorded performance snapshots, oldest first.
func (s *Sink) Performance() []audit.PerformanceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.PerformanceSnapshot, len(s.perf))
	copy(out, s.perf)
	return out
}
