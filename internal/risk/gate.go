// Package risk gates signal generation behind loss and volatility limits.
package risk

import "fmt"

// GateConfig holds the static risk limits.
type GateConfig struct {
	// DailyLossLimit is the fraction of max position size the engine may
	// lose in one day before new signals are blocked. Default: 0.10.
	DailyLossLimit float64
	// VolatilityCeiling blocks new signals when annualized volatility
	// exceeds it. Default: 0.15.
	VolatilityCeiling float64
}

func (c GateConfig) withDefaults() GateConfig {
	if c.DailyLossLimit <= 0 {
		c.DailyLossLimit = 0.10
	}
	if c.VolatilityCeiling <= 0 {
		c.VolatilityCeiling = 0.15
	}
	return c
}

// Decision is the outcome of one risk evaluation. Detail explains a block
// for audit records; it is empty when allowed.
type Decision struct {
	Allowed bool
	Detail  string
}

// Gate is a stateless-per-call predicate over daily P&L and volatility.
type Gate struct {
	cfg GateConfig
}

// NewGate creates a gate with the given limits.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{cfg: cfg.withDefaults()}
}

// Allow reports whether new signal generation is permitted. A breach never
// surfaces as an error: the caller records an explicit Hold instead.
func (g *Gate) Allow(dailyPnl, volatility, maxPositionSize float64) Decision {
	lossFloor := -g.cfg.DailyLossLimit * maxPositionSize
	if dailyPnl < lossFloor {
		return Decision{
			Detail: fmt.Sprintf("daily loss circuit breaker: pnl %.2f below floor %.2f", dailyPnl, lossFloor),
		}
	}

	if volatility > g.cfg.VolatilityCeiling {
		return Decision{
			Detail: fmt.Sprintf("volatility %.4f above ceiling %.4f", volatility, g.cfg.VolatilityCeiling),
		}
	}

	return Decision{Allowed: true}
}
