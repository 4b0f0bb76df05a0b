// Package ledger tracks the single open position for the instrument and the
// realized profit-and-loss aggregates derived from closing it.
package ledger

import (
	"errors"
	"time"
)

// ErrPositionOpen is returned by Open when a position already exists.
// There is no direct long/short flip: callers must Close, then Open.
var ErrPositionOpen = errors.New("position already open")

// Side is the current exposure of the ledger.
type Side string

const (
	SideFlat  Side = "FLAT"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position describes the open position. Size is signed: positive long,
// negative short, zero flat.
type Position struct {
	Size       float64
	EntryPrice float64
	EntryTime  time.Time
	Side       Side
}

// Stats are the ledger's aggregate counters. Daily realized P&L resets when
// the observed wall-clock date changes; everything else is process-lifetime.
type Stats struct {
	RealizedPnl      float64
	DailyRealizedPnl float64
	Wins             int
	Losses           int
	Trades           int
}

// WinRate returns wins over closed trades, 0 with no trades.
func (s Stats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// Ledger owns the position state machine: Flat -> Long/Short via Open,
// Long/Short -> Flat via Close. Not safe for concurrent use; the engine
// owns it exclusively.
type Ledger struct {
	position Position
	stats    Stats

	// lastResetDay is the date (in UTC) the daily P&L was last zeroed.
	// Comparing dates instead of running a timer lets a long-lived process
	// roll into a fresh daily loss budget without restarting.
	lastResetDay time.Time
}

// New creates a flat ledger.
func New() *Ledger {
	return &Ledger{position: Position{Side: SideFlat}}
}

// Position returns a copy of the current position.
func (l *Ledger) Position() Position {
	return l.position
}

// Side returns the current exposure.
func (l *Ledger) Side() Side {
	return l.position.Side
}

// Open transitions Flat -> Long (size > 0) or Flat -> Short (size < 0).
func (l *Ledger) Open(size, price float64, at time.Time) error {
	if l.position.Side != SideFlat {
		return ErrPositionOpen
	}
	if size == 0 || price <= 0 {
		return errors.New("open requires non-zero size and positive price")
	}

	side := SideLong
	if size < 0 {
		side = SideShort
	}
	l.position = Position{
		Size:       size,
		EntryPrice: price,
		EntryTime:  at,
		Side:       side,
	}
	return nil
}

// Close exits the current position at exitPrice, realizes P&L into the
// total and daily aggregates, and returns to Flat. Closing a flat position
// is an expected edge case: it returns 0 and changes nothing.
func (l *Ledger) Close(exitPrice float64, at time.Time) float64 {
	if l.position.Side == SideFlat {
		return 0
	}

	var realized float64
	switch l.position.Side {
	case SideLong:
		realized = (exitPrice - l.position.EntryPrice) * l.position.Size
	case SideShort:
		realized = (l.position.EntryPrice - exitPrice) * (-l.position.Size)
	}

	l.rollDay(at)
	l.stats.RealizedPnl += realized
	l.stats.DailyRealizedPnl += realized
	l.stats.Trades++
	if realized >= 0 {
		l.stats.Wins++
	} else {
		l.stats.Losses++
	}

	l.position = Position{Side: SideFlat}
	return realized
}

// UnrealizedPnl is a pure function of the current position and price.
func (l *Ledger) UnrealizedPnl(currentPrice float64) float64 {
	switch l.position.Side {
	case SideLong:
		return (currentPrice - l.position.EntryPrice) * l.position.Size
	case SideShort:
		return (l.position.EntryPrice - currentPrice) * (-l.position.Size)
	default:
		return 0
	}
}

// DailyRealizedPnl returns the daily P&L, zeroing it first if the date has
// rolled over since the last reset.
func (l *Ledger) DailyRealizedPnl(now time.Time) float64 {
	l.rollDay(now)
	return l.stats.DailyRealizedPnl
}

// Stats returns a copy of the aggregates, applying any pending daily reset.
func (l *Ledger) Stats(now time.Time) Stats {
	l.rollDay(now)
	return l.stats
}

// rollDay zeroes the daily P&L when the UTC date has changed.
func (l *Ledger) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if l.lastResetDay.IsZero() {
		l.lastResetDay = day
		return
	}
	if day.After(l.lastResetDay) {
		l.stats.DailyRealizedPnl = 0
		l.lastResetDay = day
	}
}
