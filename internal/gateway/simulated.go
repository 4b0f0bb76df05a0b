package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"meanrev-engine/internal/domain"
)

// ErrRejected is returned when the simulated venue rejects an order.
var ErrRejected = errors.New("gateway: order rejected")

// SimulatedOptions configures the dry-run gateway.
type SimulatedOptions struct {
	// SlippageBps is applied against the trade direction on every fill.
	SlippageBps float64

	// FillLatency delays each fill; zero means immediate.
	FillLatency time.Duration

	// RejectEvery rejects every Nth order when > 0. Used to exercise
	// failure handling without a flaky venue.
	RejectEvery int

	Logger zerolog.Logger
}

// Simulated fills every order at the signal price adjusted for slippage.
type Simulated struct {
	opts SimulatedOptions

	mu        sync.Mutex
	fills     []Result
	submitted int
	cancelled bool
}

var _ Gateway = (*Simulated)(nil)

// NewSimulated builds a dry-run gateway.
func NewSimulated(opts SimulatedOptions) *Simulated {
	return &Simulated{opts: opts}
}

// Execute fills the order immediately after the configured latency.
func (g *Simulated) Execute(ctx context.Context, sig domain.Signal, notional float64) (Result, error) {
	if g.opts.FillLatency > 0 {
		select {
		case <-time.After(g.opts.FillLatency):
		case <-ctx.Done():
			return Result{Status: StatusFailure, Detail: "cancelled before fill"}, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.submitted++
	if g.opts.RejectEvery > 0 && g.submitted%g.opts.RejectEvery == 0 {
		res := Result{Status: StatusFailure, Detail: "venue rejected order"}
		return res, fmt.Errorf("execute %s: %w", sig.Action, ErrRejected)
	}

	res := Result{
		OrderID:   ulid.Make().String(),
		Status:    StatusSimulated,
		FillPrice: g.fillPrice(sig),
		Notional:  notional,
		FilledAt:  time.Now().UTC(),
	}
	g.fills = append(g.fills, res)
	g.cancelled = false

	g.opts.Logger.Debug().
		Str("order_id", res.OrderID).
		Str("action", string(sig.Action)).
		Float64("fill_price", res.FillPrice).
		Float64("notional", notional).
		Msg("simulated fill")

	return res, nil
}

// fillPrice shifts the signal price against the trade direction by the
// configured slippage.
func (g *Simulated) fillPrice(sig domain.Signal) float64 {
	slip := g.opts.SlippageBps / 10000
	switch sig.Action {
	case domain.ActionBuy:
		return sig.Price * (1 + slip)
	case domain.ActionSell:
		return sig.Price * (1 - slip)
	default:
		return sig.Price
	}
}

// CancelAll is idempotent: only the first call after a fill reports
// cancellations, matching a venue that has nothing resting afterwards.
func (g *Simulated) CancelAll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancelled {
		return 0, nil
	}
	g.cancelled = true

	// Simulated fills never rest on the book, so there is nothing live to
	// cancel; report zero but remember the call so retries stay quiet.
	return 0, nil
}

// Fills returns a copy of every recorded fill.
func (g *Simulated) Fills() []Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Result, len(g.fills))
	copy(out, g.fills)
	return out
}
