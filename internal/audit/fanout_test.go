package audit

import (
	"context"
	"errors"
	"testing"
)

// recordingSink counts calls and optionally fails.
type recordingSink struct {
	signals int
	health  int
	perf    int
	fail    error
}

func (r *recordingSink) RecordSignal(context.Context, SignalEvent) error {
	r.signals++
	return r.fail
}

func (r *recordingSink) RecordHealth(context.Context, HealthSnapshot) error {
	r.health++
	return r.fail
}

func (r *recordingSink) RecordPerformance(context.Context, PerformanceSnapshot) error {
	r.perf++
	return r.fail
}

func TestFanoutWritesToAllSinks(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	f := NewFanout(a, nil, b)
	ctx := context.Background()

	if err := f.RecordSignal(ctx, SignalEvent{SignalID: "s"}); err != nil {
		t.Fatalf("RecordSignal: %v", err)
	}
	if err := f.RecordHealth(ctx, HealthSnapshot{}); err != nil {
		t.Fatalf("RecordHealth: %v", err)
	}
	if err := f.RecordPerformance(ctx, PerformanceSnapshot{}); err != nil {
		t.Fatalf("RecordPerformance: %v", err)
	}

	for _, s := range []*recordingSink{a, b} {
		if s.signals != 1 || s.health != 1 || s.perf != 1 {
			t.Errorf("sink calls = %+v, want one of each", *s)
		}
	}
}

func TestFanoutFailingSinkDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingSink{fail: boom}
	b := &recordingSink{}
	f := NewFanout(a, b)

	err := f.RecordSignal(context.Background(), SignalEvent{SignalID: "s"})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped boom", err)
	}
	if b.signals != 1 {
		t.Errorf("healthy sink calls = %d, want 1", b.signals)
	}
}
