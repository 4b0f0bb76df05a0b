// Package audit defines the append-only trail the engine writes: every
// evaluated signal, periodic health snapshots, and performance snapshots.
package audit

import (
	"context"
	"time"

	"meanrev-engine/internal/domain"
)

// SignalEvent is one evaluated signal together with its dispatch outcome.
// OrderID and OrderStatus are empty for signals that were never dispatched.
type SignalEvent struct {
	SignalID    string
	Timestamp   time.Time
	Action      domain.SignalAction
	Price       float64
	ZScore      float64
	Confidence  float64
	Reason      string
	OrderID     string
	OrderStatus string
}

// HealthSnapshot is a periodic liveness record.
type HealthSnapshot struct {
	Timestamp         time.Time
	Status            string
	Uptime            time.Duration
	TicksProcessed    int64
	SignalsEmitted    int64
	OrdersExecuted    int64
	ConsecutiveErrors int
	PositionSide      string
	DailyPnl          float64
}

// PerformanceSnapshot summarizes realized trading results at a point in time.
type PerformanceSnapshot struct {
	Timestamp   time.Time
	RealizedPnl float64
	DailyPnl    float64
	WinRate     float64
	Wins        int
	Losses      int
	Trades      int
}

// Sink receives audit records. Implementations must be safe for use from a
// single writer; they do not need to tolerate concurrent writers.
type Sink interface {
	RecordSignal(ctx context.Context, ev SignalEvent) error
	RecordHealth(ctx context.Context, hs HealthSnapshot) error
	RecordPerformance(ctx context.Context, ps PerformanceSnapshot) error
}
