package domain

import "time"

// SignalAction is the discrete decision produced by one evaluation.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionExit SignalAction = "EXIT"
	ActionHold SignalAction = "HOLD"
)

// Actionable reports whether the action should reach the order gateway.
func (a SignalAction) Actionable() bool {
	return a == ActionBuy || a == ActionSell || a == ActionExit
}

// Signal reason strings recorded for audit. Tests and downstream
// consumers match on these exactly, so treat them as part of the API.
const (
	ReasonMeanReversionEntry = "Mean reversion entry"
	ReasonMeanReversionDone  = "Mean reversion complete"
	ReasonStopLoss           = "Stop loss triggered"
	ReasonTimeLimit          = "Position time limit reached"
	ReasonRiskLimits         = "Risk limits exceeded"
	ReasonNoSignal           = "No signal"
)

// Signal is an immutable record of one evaluation. Produced fresh by the
// generator, appended to a bounded history ring, and never mutated after.
type Signal struct {
	ID         string // ULID, assigned by the engine
	Timestamp  time.Time
	Action     SignalAction
	Price      float64
	ZScore     float64
	Confidence float64 // in [0, 1], scales position size
	Reason     string
	Metadata   map[string]float64
}
