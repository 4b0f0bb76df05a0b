// Package postgres persists the audit trail in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"meanrev-engine/internal/audit"
	"meanrev-engine/internal/domain"
)

// Sink implements audit.Sink using PostgreSQL.
type Sink struct {
	pool *Pool
}

// NewSink creates a PostgreSQL-backed audit sink.
func NewSink(pool *Pool) *Sink {
	return &Sink{pool: pool}
}

// Compile-time interface check.
var _ audit.Sink = (*Sink)(nil)

// RecordSignal inserts a signal event. Returns ErrDuplicateKey if the
// signal ID was already written.
func (s *Sink) RecordSignal(ctx context.Context, ev audit.SignalEvent) error {
	if ev.SignalID == "" {
		return audit.ErrInvalidRecord
	}

	query := `
		INSERT INTO signal_events (
			signal_id, ts, action, price, z_score, confidence, reason,
			order_id, order_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		ev.SignalID, ev.Timestamp, string(ev.Action), ev.Price,
		ev.ZScore, ev.Confidence, ev.Reason,
		nullable(ev.OrderID), nullable(ev.OrderStatus),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return audit.ErrDuplicateKey
		}
		return fmt.Errorf("insert signal event: %w", err)
	}
	return nil
}

// RecordHealth inserts a health snapshot.
func (s *Sink) RecordHealth(ctx context.Context, hs audit.HealthSnapshot) error {
	query := `
		INSERT INTO health_snapshots (
			ts, status, uptime_ms, ticks_processed, signals_emitted,
			orders_executed, consecutive_errors, position_side, daily_pnl
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		hs.Timestamp, hs.Status, hs.Uptime.Milliseconds(),
		hs.TicksProcessed, hs.SignalsEmitted, hs.OrdersExecuted,
		hs.ConsecutiveErrors, hs.PositionSide, hs.DailyPnl,
	)
	if err != nil {
		return fmt.Errorf("insert health snapshot: %w", err)
	}
	return nil
}

// RecordPerformance inserts a performance snapshot.
func (s *Sink) RecordPerformance(ctx context.Context, ps audit.PerformanceSnapshot) error {
	query := `
		INSERT INTO performance_snapshots (
			ts, realized_pnl, daily_pnl, win_rate, wins, losses, trades
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		ps.Timestamp, ps.RealizedPnl, ps.DailyPnl, ps.WinRate,
		ps.Wins, ps.Losses, ps.Trades,
	)
	if err != nil {
		return fmt.Errorf("insert performance snapshot: %w", err)
	}
	return nil
}

// SignalsSince retrieves signal events at or after the given time, ordered
// by timestamp then signal ID. Used by the replay tool for inspection.
func (s *Sink) SignalsSince(ctx context.Context, since time.Time) ([]audit.SignalEvent, error) {
	query := `
		SELECT signal_id, ts, action, price, z_score, confidence, reason,
			COALESCE(order_id, ''), COALESCE(order_status, '')
		FROM signal_events
		WHERE ts >= $1
		ORDER BY ts ASC, signal_id ASC
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query signal events: %w", err)
	}
	defer rows.Close()

	var events []audit.SignalEvent
	for rows.Next() {
		var ev audit.SignalEvent
		var action string
		err := rows.Scan(
			&ev.SignalID, &ev.Timestamp, &action, &ev.Price,
			&ev.ZScore, &ev.Confidence, &ev.Reason,
			&ev.OrderID, &ev.OrderStatus,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal event row: %w", err)
		}
		ev.Action = domain.SignalAction(action)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal event rows: %w", err)
	}

	return events, nil
}

// nullable maps empty strings to NULL so unset order fields stay unset.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
