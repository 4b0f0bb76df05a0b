// Package clickhouse persists the audit trail in ClickHouse for timeseries
// analysis. ReplacingMergeTree deduplicates signal events by signal ID at
// merge time; the sink itself does not reject duplicates.
package clickhouse

import (
	"context"
	"fmt"

	"meanrev-engine/internal/audit"
)

// Sink implements audit.Sink using ClickHouse.
type Sink struct {
	conn *Conn
}

// NewSink creates a ClickHouse-backed audit sink.
func NewSink(conn *Conn) *Sink {
	return &Sink{conn: conn}
}

// Compile-time interface check.
var _ audit.Sink = (*Sink)(nil)

// RecordSignal inserts a signal event.
func (s *Sink) RecordSignal(ctx context.Context, ev audit.SignalEvent) error {
	if ev.SignalID == "" {
		return audit.ErrInvalidRecord
	}

	query := `
		INSERT INTO signal_events (
			signal_id, ts, action, price, z_score, confidence, reason,
			order_id, order_status
		)
	`

	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare signal batch: %w", err)
	}

	err = batch.Append(
		ev.SignalID, ev.Timestamp, string(ev.Action), ev.Price,
		ev.ZScore, ev.Confidence, ev.Reason,
		ev.OrderID, ev.OrderStatus,
	)
	if err != nil {
		return fmt.Errorf("append signal event: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send signal batch: %w", err)
	}
	return nil
}

// RecordHealth inserts a health snapshot.
func (s *Sink) RecordHealth(ctx context.Context, hs audit.HealthSnapshot) error {
	query := `
		INSERT INTO health_snapshots (
			ts, status, uptime_ms, ticks_processed, signals_emitted,
			orders_executed, consecutive_errors, position_side, daily_pnl
		)
	`

	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare health batch: %w", err)
	}

	err = batch.Append(
		hs.Timestamp, hs.Status, hs.Uptime.Milliseconds(),
		hs.TicksProcessed, hs.SignalsEmitted, hs.OrdersExecuted,
		int32(hs.ConsecutiveErrors), hs.PositionSide, hs.DailyPnl,
	)
	if err != nil {
		return fmt.Errorf("append health snapshot: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send health batch: %w", err)
	}
	return nil
}

// RecordPerformance inserts a performance snapshot.
func (s *Sink) RecordPerformance(ctx context.Context, ps audit.PerformanceSnapshot) error {
	query := `
		INSERT INTO performance_snapshots (
			ts, realized_pnl, daily_pnl, win_rate, wins, losses, trades
		)
	`

	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare performance batch: %w", err)
	}

	err = batch.Append(
		ps.Timestamp, ps.RealizedPnl, ps.DailyPnl, ps.WinRate,
		int32(ps.Wins), int32(ps.Losses), int32(ps.Trades),
	)
	if err != nil {
		return fmt.Errorf("append performance snapshot: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send performance batch: %w", err)
	}
	return nil
}
