package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"meanrev-engine/internal/audit"
	"meanrev-engine/internal/domain"
)

func signalEvent(id string) audit.SignalEvent {
	return audit.SignalEvent{
		SignalID:   id,
		Timestamp:  time.Now().UTC(),
		Action:     domain.ActionBuy,
		Price:      44.0,
		ZScore:     -1.2,
		Confidence: 0.6,
		Reason:     domain.ReasonMeanReversionEntry,
	}
}

func TestSinkRecordSignal(t *testing.T) {
	s := NewSink(10)
	ctx := context.Background()

	if err := s.RecordSignal(ctx, signalEvent("sig-1")); err != nil {
		t.Fatalf("RecordSignal: %v", err)
	}

	got := s.Signals()
	if len(got) != 1 {
		t.Fatalf("signals = %d, want 1", len(got))
	}
	if got[0].SignalID != "sig-1" {
		t.Errorf("signal ID = %q, want sig-1", got[0].SignalID)
	}
}

func TestSinkRejectsDuplicateSignalID(t *testing.T) {
	s := NewSink(10)
	ctx := context.Background()

	if err := s.RecordSignal(ctx, signalEvent("sig-1")); err != nil {
		t.Fatalf("first RecordSignal: %v", err)
	}
	err := s.RecordSignal(ctx, signalEvent("sig-1"))
	if !errors.Is(err, audit.ErrDuplicateKey) {
		t.Errorf("duplicate error = %v, want ErrDuplicateKey", err)
	}
}

func TestSinkRejectsEmptySignalID(t *testing.T) {
	s := NewSink(10)

	err := s.RecordSignal(context.Background(), signalEvent(""))
	if !errors.Is(err, audit.ErrInvalidRecord) {
		t.Errorf("error = %v, want ErrInvalidRecord", err)
	}
}

func TestSinkEvictsOldestPastCapacity(t *testing.T) {
	s := NewSink(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.RecordSignal(ctx, signalEvent(fmt.Sprintf("sig-%d", i))); err != nil {
			t.Fatalf("RecordSignal %d: %v", i, err)
		}
	}

	got := s.Signals()
	if len(got) != 3 {
		t.Fatalf("signals = %d, want 3", len(got))
	}
	if got[0].SignalID != "sig-2" || got[2].SignalID != "sig-4" {
		t.Errorf("kept signals %q..%q, want sig-2..sig-4", got[0].SignalID, got[2].SignalID)
	}

	// Evicted IDs may be reused once they fall out of the window.
	if err := s.RecordSignal(ctx, signalEvent("sig-0")); err != nil {
		t.Errorf("re-record of evicted ID: %v", err)
	}
}

func TestSinkHealthAndPerformance(t *testing.T) {
	s := NewSink(2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.RecordHealth(ctx, audit.HealthSnapshot{Status: "RUNNING", TicksProcessed: int64(i)})
		if err != nil {
			t.Fatalf("RecordHealth: %v", err)
		}
		err = s.RecordPerformance(ctx, audit.PerformanceSnapshot{Trades: i})
		if err != nil {
			t.Fatalf("RecordPerformance: %v", err)
		}
	}

	health := s.Health()
	if len(health) != 2 || health[1].TicksProcessed != 2 {
		t.Errorf("health = %+v, want last two snapshots", health)
	}
	perf := s.Performance()
	if len(perf) != 2 || perf[1].Trades != 2 {
		t.Errorf("performance = %+v, want last two snapshots", perf)
	}
}
