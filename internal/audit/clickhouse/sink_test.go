package clickhouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meanrev-engine/internal/audit"
	chsink "meanrev-engine/internal/audit/clickhouse"
	"meanrev-engine/internal/domain"
)

func TestSinkRecordSignalRoundTrip(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	sink := chsink.NewSink(conn)
	ctx := context.Background()

	ts := time.Now().UTC().Truncate(time.Millisecond)
	ev := audit.SignalEvent{
		SignalID:    "sig-ch-1",
		Timestamp:   ts,
		Action:      domain.ActionSell,
		Price:       46.5,
		ZScore:      1.8,
		Confidence:  0.9,
		Reason:      domain.ReasonMeanReversionEntry,
		OrderID:     "order-ch-1",
		OrderStatus: "SIMULATED",
	}
	require.NoError(t, sink.RecordSignal(ctx, ev))

	var (
		signalID, action, reason string
		price, zScore, conf      float64
	)
	row := conn.QueryRow(ctx, `
		SELECT signal_id, action, price, z_score, confidence, reason
		FROM signal_events
		WHERE signal_id = ?
	`, "sig-ch-1")
	require.NoError(t, row.Scan(&signalID, &action, &price, &zScore, &conf, &reason))

	require.Equal(t, "sig-ch-1", signalID)
	require.Equal(t, string(domain.ActionSell), action)
	require.InDelta(t, 46.5, price, 1e-9)
	require.InDelta(t, 1.8, zScore, 1e-9)
	require.InDelta(t, 0.9, conf, 1e-9)
	require.Equal(t, domain.ReasonMeanReversionEntry, reason)
}

func TestSinkRejectsEmptySignalID(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	sink := chsink.NewSink(conn)

	err := sink.RecordSignal(context.Background(), audit.SignalEvent{})
	require.ErrorIs(t, err, audit.ErrInvalidRecord)
}

func TestSinkRecordHealthAndPerformance(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	sink := chsink.NewSink(conn)
	ctx := context.Background()

	require.NoError(t, sink.RecordHealth(ctx, audit.HealthSnapshot{
		Timestamp:      time.Now().UTC(),
		Status:         "RUNNING",
		Uptime:         5 * time.Minute,
		TicksProcessed: 300,
		PositionSide:   "FLAT",
	}))

	require.NoError(t, sink.RecordPerformance(ctx, audit.PerformanceSnapshot{
		Timestamp:   time.Now().UTC(),
		RealizedPnl: 42.0,
		WinRate:     1.0,
		Wins:        1,
		Trades:      1,
	}))

	var healthCount, perfCount uint64
	require.NoError(t, conn.QueryRow(ctx, "SELECT count(*) FROM health_snapshots").Scan(&healthCount))
	require.NoError(t, conn.QueryRow(ctx, "SELECT count(*) FROM performance_snapshots").Scan(&perfCount))
	require.EqualValues(t, 1, healthCount)
	require.EqualValues(t, 1, perfCount)
}
