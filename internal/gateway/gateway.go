// Package gateway abstracts order placement. The engine treats a simulated
// fill identically to a live one, so dry-run needs no branching upstream.
package gateway

import (
	"context"
	"time"

	"meanrev-engine/internal/domain"
)

// Status is the outcome class of one dispatch.
type Status string

const (
	// StatusSuccess is a live fill.
	StatusSuccess Status = "SUCCESS"
	// StatusSimulated is a dry-run fill; bookkeeping treats it as success.
	StatusSimulated Status = "SIMULATED"
	// StatusFailure is a rejected or failed dispatch.
	StatusFailure Status = "FAILURE"
)

// Accepted reports whether the result should update the position ledger.
func (s Status) Accepted() bool {
	return s == StatusSuccess || s == StatusSimulated
}

// Result describes one executed (or failed) order.
type Result struct {
	OrderID   string
	Status    Status
	FillPrice float64
	Notional  float64
	FilledAt  time.Time
	Detail    string
}

// Gateway executes signals against a venue.
type Gateway interface {
	// Execute places an order sized to the given notional. A non-nil error
	// always carries Status FAILURE in the result.
	Execute(ctx context.Context, sig domain.Signal, notional float64) (Result, error)

	// CancelAll cancels outstanding orders and returns how many were
	// cancelled. Must be safe to call repeatedly and when the venue is
	// already unreachable.
	CancelAll(ctx context.Context) (int, error)
}
