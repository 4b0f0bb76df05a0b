// Package engine ties the market-data feed, rolling statistics, signal
// generation, risk gate, position ledger, and order gateway into one
// cooperatively scheduled loop. All engine state is owned by that loop;
// other goroutines only ever see read-only snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"meanrev-engine/internal/audit"
	auditmem "meanrev-engine/internal/audit/memory"
	"meanrev-engine/internal/config"
	"meanrev-engine/internal/domain"
	"meanrev-engine/internal/feed"
	"meanrev-engine/internal/gateway"
	"meanrev-engine/internal/ledger"
	"meanrev-engine/internal/observability"
	"meanrev-engine/internal/risk"
	"meanrev-engine/internal/stats"
	"meanrev-engine/internal/strategy"
)

// State is the engine lifecycle phase.
type State string

const (
	StateCreated      State = "CREATED"
	StateRunning      State = "RUNNING"
	StateShuttingDown State = "SHUTTING_DOWN"
	StateStopped      State = "STOPPED"
)

// cancelTimeout bounds order cancellation during shutdown.
const cancelTimeout = 10 * time.Second

// Stats is a read-only snapshot of engine counters and position state.
type Stats struct {
	State             State
	Uptime            time.Duration
	TicksProcessed    int64
	SignalsEmitted    int64
	OrdersExecuted    int64
	ConsecutiveErrors int
	RealizedPnl       float64
	DailyPnl          float64
	Wins              int
	Losses            int
	Trades            int
	WinRate           float64
	Position          ledger.Position
}

// Options contains dependencies and configuration for creating an Engine.
type Options struct {
	Config  config.Config
	Feed    feed.Feed
	Gateway gateway.Gateway

	// Audit defaults to a bounded in-memory sink when nil.
	Audit audit.Sink

	// Metrics defaults to an instance on a private registry when nil.
	Metrics *observability.Metrics

	Logger zerolog.Logger
}

// Engine is the signal-generation orchestrator.
type Engine struct {
	cfg     config.Config
	feed    feed.Feed
	gateway gateway.Gateway
	audit   audit.Sink
	metrics *observability.Metrics
	logger  zerolog.Logger

	tracker *stats.Tracker
	book    *ledger.Ledger
	gate    *risk.Gate
	gen     *strategy.Generator

	// mu guards everything below, including book access. The run loop is
	// the only writer; the mutex exists so Stats, History, and the health
	// reporter can take consistent snapshots while running.
	mu                sync.Mutex
	state             State
	startTime         time.Time
	ticksProcessed    int64
	signalsEmitted    int64
	ordersExecuted    int64
	consecutiveErrors int
	lastSignalTime    time.Time
	history           []domain.Signal

	shutdownOnce sync.Once

	now func() time.Time
}

// New creates an Engine from validated configuration and collaborators.
func New(opts Options) (*Engine, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if opts.Feed == nil {
		return nil, errors.New("engine: feed is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("engine: gateway is required")
	}

	sink := opts.Audit
	if sink == nil {
		sink = auditmem.NewSink(opts.Config.AuditBuffer)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics("", prometheus.NewRegistry())
	}

	cfg := opts.Config

	tracker := stats.NewTracker(stats.TrackerOptions{
		LookbackPeriod:       cfg.LookbackPeriod,
		VolumeWindow:         cfg.VolumeWindow,
		OscillatorPeriod:     cfg.OscillatorPeriod,
		AnnualizationPeriods: cfg.AnnualizationPeriods,
	})
	gen := strategy.NewGenerator(strategy.GeneratorConfig{
		EntryZScore:      cfg.EntryZScore,
		ExitZScore:       cfg.ExitZScore,
		StopLossFraction: cfg.StopLossFraction,
		MaxPositionTime:  cfg.MaxPositionTime,
	})
	gate := risk.NewGate(risk.GateConfig{
		DailyLossLimit:    cfg.DailyLossLimit,
		VolatilityCeiling: cfg.VolatilityCeiling,
	})

	return &Engine{
		cfg:     cfg,
		feed:    opts.Feed,
		gateway: opts.Gateway,
		audit:   sink,
		metrics: metrics,
		logger:  opts.Logger.With().Str("component", "engine").Logger(),
		tracker: tracker,
		book:    ledger.New(),
		gate:    gate,
		gen:     gen,
		state:   StateCreated,
		now:     time.Now,
	}, nil
}

// Run subscribes to the feed and processes samples until the context is
// cancelled or the feed terminates. Shutdown always runs before return.
func (e *Engine) Run(ctx context.Context) error {
	samples, err := e.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to feed: %w", err)
	}

	e.mu.Lock()
	e.state = StateRunning
	e.startTime = e.now()
	e.mu.Unlock()

	healthTicker := time.NewTicker(e.cfg.HealthInterval)
	defer healthTicker.Stop()

	e.logger.Info().
		Str("symbol", e.cfg.FeedSymbol).
		Int("lookback", e.cfg.LookbackPeriod).
		Dur("health_interval", e.cfg.HealthInterval).
		Msg("engine running")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("cancellation observed, shutting down")
			e.Shutdown(context.Background())
			return ctx.Err()

		case sample, ok := <-samples:
			if !ok {
				e.logger.Warn().Msg("feed terminated, shutting down")
				e.Shutdown(context.Background())
				return nil
			}
			e.handleTick(ctx, sample)

		case <-healthTicker.C:
			e.emitHealth(ctx)
			e.emitPerformance(ctx)
		}
	}
}

// handleTick applies one sample to the tracker and runs an evaluation.
// Malformed samples are dropped without touching tracker state.
func (e *Engine) handleTick(ctx context.Context, sample domain.PriceSample) {
	if !sample.Valid() {
		e.metrics.TicksDropped.Inc()
		return
	}

	e.tracker.Apply(sample)

	e.mu.Lock()
	e.ticksProcessed++
	e.mu.Unlock()

	e.metrics.TicksProcessed.Inc()
	e.metrics.WindowFill.Set(float64(e.tracker.Samples()))
	e.metrics.LastTickTimestamp.Set(float64(sample.Timestamp.Unix()))

	e.evaluate(ctx, sample)
}

// evaluate runs the gate chain and, when allowed, the signal generator and
// dispatch. Gates are checked cheapest first.
func (e *Engine) evaluate(ctx context.Context, sample domain.PriceSample) {
	e.metrics.SignalsEvaluated.Inc()

	if !e.tracker.Ready() {
		e.metrics.SignalsBlocked.WithLabelValues("warmup").Inc()
		return
	}

	now := e.now()

	e.mu.Lock()
	inCooldown := !e.lastSignalTime.IsZero() && now.Sub(e.lastSignalTime) < e.cfg.SignalCooldown
	halted := e.consecutiveErrors >= e.cfg.ErrorCeiling
	e.mu.Unlock()

	if inCooldown {
		e.metrics.SignalsBlocked.WithLabelValues("cooldown").Inc()
		return
	}
	if halted {
		e.metrics.SignalsBlocked.WithLabelValues("error_ceiling").Inc()
		return
	}

	snap := e.tracker.Snapshot()

	e.mu.Lock()
	dailyPnl := e.book.DailyRealizedPnl(now)
	pos := e.book.Position()
	e.mu.Unlock()
	e.metrics.DailyPnl.Set(dailyPnl)

	if decision := e.gate.Allow(dailyPnl, snap.Volatility, e.cfg.MaxPositionSize); !decision.Allowed {
		e.metrics.SignalsBlocked.WithLabelValues("risk").Inc()
		sig := domain.Signal{
			ID:        ulid.Make().String(),
			Timestamp: now,
			Action:    domain.ActionHold,
			Price:     snap.Price,
			ZScore:    snap.ZScore,
			Reason:    domain.ReasonRiskLimits,
		}
		e.logger.Warn().
			Str("detail", decision.Detail).
			Float64("daily_pnl", dailyPnl).
			Float64("volatility", snap.Volatility).
			Msg("risk gate blocked signal generation")
		e.recordSignal(ctx, sig, gateway.Result{})
		return
	}

	sig := e.gen.Evaluate(now, snap, pos)
	sig.ID = ulid.Make().String()

	if !sig.Action.Actionable() {
		// Ordinary holds are counted but kept out of the audit trail.
		return
	}

	e.dispatch(ctx, sig, pos, sample, snap, now)
}

// dispatch sizes and executes an actionable signal, then applies ledger
// consequences. A failed dispatch never mutates the ledger.
func (e *Engine) dispatch(ctx context.Context, sig domain.Signal, pos ledger.Position, sample domain.PriceSample, snap stats.Snapshot, now time.Time) {
	notional := e.positionNotional(sig, pos, snap)

	start := time.Now()
	res, err := e.gateway.Execute(ctx, sig, notional)
	e.metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	e.metrics.OrdersDispatched.WithLabelValues(string(res.Status)).Inc()

	if err != nil || !res.Status.Accepted() {
		e.mu.Lock()
		e.consecutiveErrors++
		errCount := e.consecutiveErrors
		e.mu.Unlock()
		e.metrics.ConsecutiveErrors.Set(float64(errCount))

		e.logger.Error().
			Err(err).
			Str("action", string(sig.Action)).
			Str("detail", res.Detail).
			Int("consecutive_errors", errCount).
			Msg("order dispatch failed")
		if errCount >= e.cfg.ErrorCeiling {
			e.logger.Error().
				Int("ceiling", e.cfg.ErrorCeiling).
				Msg("error ceiling reached, signal generation halted")
		}
		res.Status = gateway.StatusFailure
		e.recordSignal(ctx, sig, res)
		return
	}

	fillPrice := res.FillPrice
	if fillPrice <= 0 {
		fillPrice = sample.Price
	}

	e.mu.Lock()
	var ledgerErr error
	var realized float64
	switch sig.Action {
	case domain.ActionBuy:
		ledgerErr = e.book.Open(notional/fillPrice, fillPrice, now)
	case domain.ActionSell:
		ledgerErr = e.book.Open(-notional/fillPrice, fillPrice, now)
	case domain.ActionExit:
		realized = e.book.Close(fillPrice, now)
	}
	e.consecutiveErrors = 0
	e.ordersExecuted++
	e.signalsEmitted++
	e.lastSignalTime = now
	size := e.book.Position().Size
	e.mu.Unlock()

	if ledgerErr != nil {
		e.logger.Error().Err(ledgerErr).Str("action", string(sig.Action)).Msg("ledger update after fill")
	}
	if sig.Action == domain.ActionExit {
		e.logger.Info().
			Float64("realized_pnl", realized).
			Str("reason", sig.Reason).
			Msg("position closed")
	}

	e.metrics.ConsecutiveErrors.Set(0)
	e.metrics.SignalsEmitted.WithLabelValues(string(sig.Action)).Inc()
	e.metrics.PositionSize.Set(size)

	e.logger.Info().
		Str("signal_id", sig.ID).
		Str("action", string(sig.Action)).
		Str("order_id", res.OrderID).
		Str("status", string(res.Status)).
		Float64("price", sig.Price).
		Float64("z_score", sig.ZScore).
		Float64("confidence", sig.Confidence).
		Float64("notional", notional).
		Str("reason", sig.Reason).
		Msg("signal dispatched")

	e.recordSignal(ctx, sig, res)
}

// positionNotional sizes an order. Entries scale the max position by
// confidence and trim it as volatility climbs; exits unwind the open
// position at the current price.
func (e *Engine) positionNotional(sig domain.Signal, pos ledger.Position, snap stats.Snapshot) float64 {
	if sig.Action == domain.ActionExit {
		size := pos.Size
		if size < 0 {
			size = -size
		}
		return size * snap.Price
	}

	notional := e.cfg.MaxPositionSize * sig.Confidence
	switch {
	case snap.Volatility > e.cfg.VolHalfThreshold:
		notional *= 0.5
	case snap.Volatility > e.cfg.VolTrimThreshold:
		notional *= 0.75
	}

	limit := e.cfg.MaxPositionSize * e.cfg.MaxLeverage
	if notional > limit {
		notional = limit
	}
	return notional
}

// recordSignal appends the signal to the bounded history and the audit
// trail. Audit failures are logged, never escalated.
func (e *Engine) recordSignal(ctx context.Context, sig domain.Signal, res gateway.Result) {
	e.mu.Lock()
	e.history = append(e.history, sig)
	if len(e.history) > e.cfg.HistoryCapacity {
		e.history = e.history[1:]
	}
	e.mu.Unlock()

	ev := audit.SignalEvent{
		SignalID:    sig.ID,
		Timestamp:   sig.Timestamp,
		Action:      sig.Action,
		Price:       sig.Price,
		ZScore:      sig.ZScore,
		Confidence:  sig.Confidence,
		Reason:      sig.Reason,
		OrderID:     res.OrderID,
		OrderStatus: string(res.Status),
	}
	if err := e.audit.RecordSignal(ctx, ev); err != nil {
		e.metrics.AuditWriteErrors.WithLabelValues("signal").Inc()
		e.logger.Warn().Err(err).Str("signal_id", sig.ID).Msg("audit signal write failed")
	}
}

// emitHealth pushes a health snapshot to the audit trail.
func (e *Engine) emitHealth(ctx context.Context) {
	hs := e.healthSnapshot()
	if err := e.audit.RecordHealth(ctx, hs); err != nil {
		e.metrics.AuditWriteErrors.WithLabelValues("health").Inc()
		e.logger.Warn().Err(err).Msg("audit health write failed")
	}
	e.metrics.UptimeSeconds.Add(e.cfg.HealthInterval.Seconds())
}

// emitPerformance pushes a performance snapshot to the audit trail.
func (e *Engine) emitPerformance(ctx context.Context) {
	now := e.now()

	e.mu.Lock()
	ls := e.book.Stats(now)
	e.mu.Unlock()

	ps := audit.PerformanceSnapshot{
		Timestamp:   now,
		RealizedPnl: ls.RealizedPnl,
		DailyPnl:    ls.DailyRealizedPnl,
		WinRate:     ls.WinRate(),
		Wins:        ls.Wins,
		Losses:      ls.Losses,
		Trades:      ls.Trades,
	}
	if err := e.audit.RecordPerformance(ctx, ps); err != nil {
		e.metrics.AuditWriteErrors.WithLabelValues("performance").Inc()
		e.logger.Warn().Err(err).Msg("audit performance write failed")
	}
}

func (e *Engine) healthSnapshot() audit.HealthSnapshot {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	var uptime time.Duration
	if !e.startTime.IsZero() {
		uptime = now.Sub(e.startTime)
	}

	return audit.HealthSnapshot{
		Timestamp:         now,
		Status:            string(e.state),
		Uptime:            uptime,
		TicksProcessed:    e.ticksProcessed,
		SignalsEmitted:    e.signalsEmitted,
		OrdersExecuted:    e.ordersExecuted,
		ConsecutiveErrors: e.consecutiveErrors,
		PositionSide:      string(e.book.Side()),
		DailyPnl:          e.book.DailyRealizedPnl(now),
	}
}

// Shutdown cancels outstanding orders, emits final snapshots, and marks the
// engine stopped. Safe to call repeatedly; an unreachable gateway is logged
// and tolerated.
func (e *Engine) Shutdown(ctx context.Context) {
	e.shutdownOnce.Do(func() {
		e.mu.Lock()
		e.state = StateShuttingDown
		e.mu.Unlock()

		cancelCtx, cancel := context.WithTimeout(ctx, cancelTimeout)
		defer cancel()

		n, err := e.gateway.CancelAll(cancelCtx)
		if err != nil {
			e.logger.Warn().Err(err).Msg("order cancellation failed during shutdown")
		} else {
			e.logger.Info().Int("cancelled", n).Msg("outstanding orders cancelled")
		}

		e.emitHealth(ctx)
		e.emitPerformance(ctx)

		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()

		e.logger.Info().Msg("engine stopped")
	})
}

// Stats returns a snapshot of engine counters and position state.
func (e *Engine) Stats() Stats {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.book.Stats(now)

	var uptime time.Duration
	if !e.startTime.IsZero() {
		uptime = now.Sub(e.startTime)
	}

	return Stats{
		State:             e.state,
		Uptime:            uptime,
		TicksProcessed:    e.ticksProcessed,
		SignalsEmitted:    e.signalsEmitted,
		OrdersExecuted:    e.ordersExecuted,
		ConsecutiveErrors: e.consecutiveErrors,
		RealizedPnl:       ls.RealizedPnl,
		DailyPnl:          ls.DailyRealizedPnl,
		Wins:              ls.Wins,
		Losses:            ls.Losses,
		Trades:            ls.Trades,
		WinRate:           ls.WinRate(),
		Position:          e.book.Position(),
	}
}

// History returns a copy of recent signals, oldest first.
func (e *Engine) History() []domain.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Signal, len(e.history))
	copy(out, e.history)
	return out
}
