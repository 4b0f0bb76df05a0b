package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	auditmem "meanrev-engine/internal/audit/memory"
	"meanrev-engine/internal/config"
	"meanrev-engine/internal/domain"
	"meanrev-engine/internal/feed/stub"
	"meanrev-engine/internal/gateway"
	"meanrev-engine/internal/ledger"
)

// scriptedGateway counts calls and fails on demand.
type scriptedGateway struct {
	executes   int
	cancels    int
	failNext   int
	lastAction domain.SignalAction
}

func (g *scriptedGateway) Execute(_ context.Context, sig domain.Signal, notional float64) (gateway.Result, error) {
	g.executes++
	g.lastAction = sig.Action
	if g.failNext > 0 {
		g.failNext--
		return gateway.Result{Status: gateway.StatusFailure}, errors.New("venue unreachable")
	}
	return gateway.Result{
		OrderID:   "order-test",
		Status:    gateway.StatusSimulated,
		FillPrice: sig.Price,
		Notional:  notional,
	}, nil
}

func (g *scriptedGateway) CancelAll(context.Context) (int, error) {
	g.cancels++
	return 0, nil
}

// failingCancelGateway simulates an unreachable venue at shutdown.
type failingCancelGateway struct {
	scriptedGateway
}

func (g *failingCancelGateway) CancelAll(context.Context) (int, error) {
	g.cancels++
	return 0, errors.New("venue unreachable")
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SignalCooldown = 60 * time.Second
	cfg.ErrorCeiling = 3
	cfg.HistoryCapacity = 5
	// Second-granularity test ticks produce enormous annualized volatility;
	// raise the ceiling so only the daily loss breaker can trip the gate.
	cfg.VolatilityCeiling = 1000
	return cfg
}

// fixture wires an engine around scripted collaborators and a manual clock.
type fixture struct {
	engine  *Engine
	gateway *scriptedGateway
	sink    *auditmem.Sink
	clock   time.Time
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()

	gw := &scriptedGateway{}
	sink := auditmem.NewSink(100)

	eng, err := New(Options{
		Config:  cfg,
		Feed:    stub.NewFeed(nil),
		Gateway: gw,
		Audit:   sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f := &fixture{
		engine:  eng,
		gateway: gw,
		sink:    sink,
		clock:   time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	eng.now = func() time.Time { return f.clock }
	return f
}

// tick advances the clock one second and applies a sample.
func (f *fixture) tick(price, volume float64) {
	f.clock = f.clock.Add(time.Second)
	f.engine.handleTick(context.Background(), domain.PriceSample{
		Price:     price,
		Volume:    volume,
		Timestamp: f.clock,
	})
}

// warmUp fills the lookback window with identical prices so the next tick
// fully controls the z-score.
func (f *fixture) warmUp(price float64) {
	for i := 0; i < f.engine.cfg.LookbackPeriod; i++ {
		f.tick(price, 100)
	}
}

func TestWarmupEmitsNothing(t *testing.T) {
	f := newFixture(t, testConfig())

	for i := 0; i < f.engine.cfg.LookbackPeriod-1; i++ {
		f.tick(44.0, 100)
	}

	if f.gateway.executes != 0 {
		t.Errorf("dispatches during warmup = %d, want 0", f.gateway.executes)
	}
	if got := len(f.sink.Signals()); got != 0 {
		t.Errorf("audit signals during warmup = %d, want 0", got)
	}
}

func TestFlatWindowHolds(t *testing.T) {
	f := newFixture(t, testConfig())

	f.warmUp(44.0)
	f.tick(44.0, 100)

	if f.gateway.executes != 0 {
		t.Errorf("dispatches on flat window = %d, want 0", f.gateway.executes)
	}
	st := f.engine.Stats()
	if st.Position.Side != ledger.SideFlat {
		t.Errorf("position side = %s, want FLAT", st.Position.Side)
	}
}

func TestPriceDropOpensLong(t *testing.T) {
	f := newFixture(t, testConfig())

	f.warmUp(44.0)
	f.tick(40.0, 100)

	if f.gateway.executes != 1 {
		t.Fatalf("dispatches = %d, want 1", f.gateway.executes)
	}
	if f.gateway.lastAction != domain.ActionBuy {
		t.Errorf("dispatched action = %s, want BUY", f.gateway.lastAction)
	}

	st := f.engine.Stats()
	if st.Position.Side != ledger.SideLong {
		t.Errorf("position side = %s, want LONG", st.Position.Side)
	}
	if st.SignalsEmitted != 1 || st.OrdersExecuted != 1 {
		t.Errorf("counters = %d signals / %d orders, want 1 / 1", st.SignalsEmitted, st.OrdersExecuted)
	}

	events := f.sink.Signals()
	if len(events) != 1 {
		t.Fatalf("audit signals = %d, want 1", len(events))
	}
	if events[0].Action != domain.ActionBuy || events[0].OrderStatus != string(gateway.StatusSimulated) {
		t.Errorf("audit event = %+v, want BUY with SIMULATED order", events[0])
	}
	if events[0].SignalID == "" {
		t.Error("audit event is missing a signal ID")
	}
}

func TestCooldownSuppressesNextDispatch(t *testing.T) {
	f := newFixture(t, testConfig())

	f.warmUp(44.0)
	f.tick(40.0, 100) // opens long

	// Price back near the mean would trigger a mean-reversion exit, but
	// the cooldown window is still open.
	f.tick(43.5, 100)
	if f.gateway.executes != 1 {
		t.Fatalf("dispatches inside cooldown = %d, want 1", f.gateway.executes)
	}

	f.clock = f.clock.Add(61 * time.Second)
	f.tick(43.5, 100)
	if f.gateway.executes != 2 {
		t.Fatalf("dispatches after cooldown = %d, want 2", f.gateway.executes)
	}
	if f.gateway.lastAction != domain.ActionExit {
		t.Errorf("second action = %s, want EXIT", f.gateway.lastAction)
	}
	if side := f.engine.Stats().Position.Side; side != ledger.SideFlat {
		t.Errorf("position side after exit = %s, want FLAT", side)
	}
}

func TestDispatchFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t, testConfig())
	f.gateway.failNext = 1

	f.warmUp(44.0)
	f.tick(40.0, 100)

	st := f.engine.Stats()
	if st.Position.Side != ledger.SideFlat {
		t.Errorf("position side after failed dispatch = %s, want FLAT", st.Position.Side)
	}
	if st.ConsecutiveErrors != 1 {
		t.Errorf("consecutive errors = %d, want 1", st.ConsecutiveErrors)
	}
	if st.OrdersExecuted != 0 {
		t.Errorf("orders executed = %d, want 0", st.OrdersExecuted)
	}

	events := f.sink.Signals()
	if len(events) != 1 || events[0].OrderStatus != string(gateway.StatusFailure) {
		t.Errorf("audit events = %+v, want one FAILURE record", events)
	}
}

func TestErrorCeilingHaltsSignalGeneration(t *testing.T) {
	cfg := testConfig()
	cfg.SignalCooldown = 0 // every tick may dispatch
	f := newFixture(t, cfg)
	f.gateway.failNext = cfg.ErrorCeiling

	f.warmUp(44.0)
	for i := 0; i < cfg.ErrorCeiling; i++ {
		f.tick(40.0, 100)
	}
	if f.gateway.executes != cfg.ErrorCeiling {
		t.Fatalf("dispatch attempts = %d, want %d", f.gateway.executes, cfg.ErrorCeiling)
	}

	// At the ceiling the engine keeps observing prices but stops
	// generating signals entirely.
	for i := 0; i < 5; i++ {
		f.tick(40.0, 100)
	}
	if f.gateway.executes != cfg.ErrorCeiling {
		t.Errorf("dispatch attempts after halt = %d, want %d", f.gateway.executes, cfg.ErrorCeiling)
	}

	st := f.engine.Stats()
	if st.ConsecutiveErrors != cfg.ErrorCeiling {
		t.Errorf("consecutive errors = %d, want %d", st.ConsecutiveErrors, cfg.ErrorCeiling)
	}
	if st.TicksProcessed != int64(f.engine.cfg.LookbackPeriod+cfg.ErrorCeiling+5) {
		t.Errorf("ticks processed = %d, engine should keep observing", st.TicksProcessed)
	}
}

func TestRiskGateRecordsHold(t *testing.T) {
	f := newFixture(t, testConfig())

	// Realize a loss past the daily circuit breaker: -11% of max position.
	if err := f.engine.book.Open(100, 44.0, f.clock); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.engine.book.Close(33.0, f.clock) // -1100 on maxPositionSize 10000

	f.warmUp(44.0)
	f.tick(40.0, 100) // z-score would demand a Buy

	if f.gateway.executes != 0 {
		t.Errorf("dispatches while risk-blocked = %d, want 0", f.gateway.executes)
	}

	events := f.sink.Signals()
	if len(events) == 0 {
		t.Fatal("risk-blocked evaluation should record a hold")
	}
	last := events[len(events)-1]
	if last.Action != domain.ActionHold || last.Reason != domain.ReasonRiskLimits {
		t.Errorf("recorded event = %+v, want HOLD with %q", last, domain.ReasonRiskLimits)
	}
	if last.OrderStatus != "" {
		t.Errorf("risk hold order status = %q, want empty", last.OrderStatus)
	}
}

func TestMalformedSampleDropped(t *testing.T) {
	f := newFixture(t, testConfig())

	f.warmUp(44.0)
	before := f.engine.tracker.Samples()

	f.engine.handleTick(context.Background(), domain.PriceSample{Price: -1, Volume: 100, Timestamp: f.clock})
	f.engine.handleTick(context.Background(), domain.PriceSample{Price: 0, Volume: 100, Timestamp: f.clock})

	if got := f.engine.tracker.Samples(); got != before {
		t.Errorf("tracker samples = %d, want unchanged %d", got, before)
	}
	if f.engine.Stats().TicksProcessed != int64(before) {
		t.Errorf("ticks processed counted dropped samples")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	f.engine.Shutdown(ctx)
	f.engine.Shutdown(ctx)

	if f.gateway.cancels != 1 {
		t.Errorf("CancelAll calls = %d, want 1", f.gateway.cancels)
	}
	if st := f.engine.Stats(); st.State != StateStopped {
		t.Errorf("state = %s, want STOPPED", st.State)
	}

	// Exactly one final health and performance snapshot.
	if got := len(f.sink.Health()); got != 1 {
		t.Errorf("health snapshots = %d, want 1", got)
	}
	if got := len(f.sink.Performance()); got != 1 {
		t.Errorf("performance snapshots = %d, want 1", got)
	}
}

func TestShutdownToleratesUnreachableGateway(t *testing.T) {
	gw := &failingCancelGateway{}
	sink := auditmem.NewSink(100)
	eng, err := New(Options{
		Config:  testConfig(),
		Feed:    stub.NewFeed(nil),
		Gateway: gw,
		Audit:   sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	eng.Shutdown(context.Background())

	if gw.cancels != 1 {
		t.Errorf("CancelAll calls = %d, want 1", gw.cancels)
	}
	if st := eng.Stats(); st.State != StateStopped {
		t.Errorf("state = %s, want STOPPED", st.State)
	}
}

func TestHistoryRingBounded(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)

	for i := 0; i < cfg.HistoryCapacity+3; i++ {
		f.engine.recordSignal(context.Background(), domain.Signal{
			ID:        fmt.Sprintf("sig-%d", i),
			Timestamp: f.clock,
			Action:    domain.ActionBuy,
			Reason:    domain.ReasonMeanReversionEntry,
		}, gateway.Result{Status: gateway.StatusSimulated})
	}

	history := f.engine.History()
	if len(history) != cfg.HistoryCapacity {
		t.Fatalf("history length = %d, want %d", len(history), cfg.HistoryCapacity)
	}
	if history[0].ID != "sig-3" {
		t.Errorf("oldest kept entry = %s, want sig-3", history[0].ID)
	}
	if history[len(history)-1].ID != "sig-7" {
		t.Errorf("newest entry = %s, want sig-7", history[len(history)-1].ID)
	}
}

func TestRunServesFeedAndStops(t *testing.T) {
	samples := make([]domain.PriceSample, 0, 13)
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		samples = append(samples, domain.PriceSample{Price: 44.0, Volume: 100, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	samples = append(samples, domain.PriceSample{Price: 40.0, Volume: 100, Timestamp: base.Add(12 * time.Second)})

	gw := &scriptedGateway{}
	sink := auditmem.NewSink(100)
	eng, err := New(Options{
		Config:  testConfig(),
		Feed:    stub.NewFeed(samples),
		Gateway: gw,
		Audit:   sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	// Wait for the scripted samples to be consumed and the buy to land.
	deadline := time.After(5 * time.Second)
	for eng.Stats().OrdersExecuted == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dispatch")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	st := eng.Stats()
	if st.State != StateStopped {
		t.Errorf("state after Run = %s, want STOPPED", st.State)
	}
	if gw.cancels != 1 {
		t.Errorf("CancelAll calls = %d, want 1", gw.cancels)
	}
	if st.Position.Side != ledger.SideLong {
		t.Errorf("position side = %s, want LONG", st.Position.Side)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Config: testConfig(), Gateway: &scriptedGateway{}}); err == nil {
		t.Error("New without feed should fail")
	}
	if _, err := New(Options{Config: testConfig(), Feed: stub.NewFeed(nil)}); err == nil {
		t.Error("New without gateway should fail")
	}
	bad := testConfig()
	bad.LookbackPeriod = 0
	if _, err := New(Options{Config: bad, Feed: stub.NewFeed(nil), Gateway: &scriptedGateway{}}); err == nil {
		t.Error("New with invalid config should fail")
	}
}
