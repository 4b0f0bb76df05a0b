// Package strategy converts rolling statistics and position state into
// discrete trading signals. The generator is a pure function of its inputs:
// it never mutates the tracker or the ledger, and it never returns an error
// for expected edge cases like insufficient data.
package strategy

import (
	"fmt"
	"math"
	"time"

	"meanrev-engine/internal/domain"
	"meanrev-engine/internal/ledger"
	"meanrev-engine/internal/stats"
)

// Confidence multipliers for confirming indicators. Applied in sequence,
// re-clamping to 1.0 after each: they stack multiplicatively, not additively.
const (
	oscillatorBoost      = 1.2
	volumeBoost          = 1.1
	oscillatorOversold   = 30.0
	oscillatorOverbought = 70.0
	volumeRatioThreshold = 1.5
)

// timeLimitConfidence marks a time-limit exit as risk-management driven
// rather than model driven.
const timeLimitConfidence = 0.8

// GeneratorConfig holds the signal thresholds.
type GeneratorConfig struct {
	// EntryZScore is the z-score magnitude required to open. Default: 0.75.
	EntryZScore float64
	// ExitZScore closes the position once |z| falls below it. Default: 0.5.
	ExitZScore float64
	// StopLossFraction exits when price moves against the entry by more
	// than this fraction. Default: 0.05.
	StopLossFraction float64
	// MaxPositionTime exits once time in position exceeds it. Default: 48h.
	MaxPositionTime time.Duration
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.EntryZScore <= 0 {
		c.EntryZScore = 0.75
	}
	if c.ExitZScore <= 0 {
		c.ExitZScore = 0.5
	}
	if c.StopLossFraction <= 0 {
		c.StopLossFraction = 0.05
	}
	if c.MaxPositionTime <= 0 {
		c.MaxPositionTime = 48 * time.Hour
	}
	return c
}

// Generator produces one immutable Signal per evaluation.
type Generator struct {
	cfg GeneratorConfig
}

// NewGenerator creates a generator with the given thresholds.
func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{cfg: cfg.withDefaults()}
}

// Evaluate runs one two-phase decision: entry logic while flat, exit logic
// while positioned. The caller applies any consequences.
func (g *Generator) Evaluate(now time.Time, snap stats.Snapshot, pos ledger.Position) domain.Signal {
	if pos.Side == ledger.SideFlat {
		return g.evaluateEntry(now, snap)
	}
	return g.evaluateExit(now, snap, pos)
}

func (g *Generator) evaluateEntry(now time.Time, snap stats.Snapshot) domain.Signal {
	sig := domain.Signal{
		Timestamp: now,
		Action:    domain.ActionHold,
		Price:     snap.Price,
		ZScore:    snap.ZScore,
		Reason:    domain.ReasonNoSignal,
		Metadata:  metadata(snap),
	}

	z := snap.ZScore
	switch {
	case z < -g.cfg.EntryZScore:
		sig.Action = domain.ActionBuy
		sig.Confidence = g.entryConfidence(z, snap, domain.ActionBuy)
		sig.Reason = fmt.Sprintf("%s: z=%.2f below -%.2f", domain.ReasonMeanReversionEntry, z, g.cfg.EntryZScore)
	case z > g.cfg.EntryZScore:
		sig.Action = domain.ActionSell
		sig.Confidence = g.entryConfidence(z, snap, domain.ActionSell)
		sig.Reason = fmt.Sprintf("%s: z=%.2f above %.2f", domain.ReasonMeanReversionEntry, z, g.cfg.EntryZScore)
	}

	return sig
}

// entryConfidence starts from the z-score magnitude and boosts it when the
// oscillator and volume confirm the direction. Each boost re-clamps to 1.0.
func (g *Generator) entryConfidence(z float64, snap stats.Snapshot, action domain.SignalAction) float64 {
	conf := clamp(math.Abs(z) / 2)

	oscConfirms := (action == domain.ActionBuy && snap.Oscillator < oscillatorOversold) ||
		(action == domain.ActionSell && snap.Oscillator > oscillatorOverbought)
	if oscConfirms {
		conf = clamp(conf * oscillatorBoost)
	}
	if snap.VolumeRatio > volumeRatioThreshold {
		conf = clamp(conf * volumeBoost)
	}
	return conf
}

// evaluateExit checks all three exit conditions on every evaluation, in the
// order mean-reversion, stop-loss, time-limit. Each firing condition
// overwrites the previous one, so the last match wins. That tie-break is
// preserved deliberately: it decides which reason string reaches the audit
// log when multiple conditions fire on the same tick.
func (g *Generator) evaluateExit(now time.Time, snap stats.Snapshot, pos ledger.Position) domain.Signal {
	sig := domain.Signal{
		Timestamp: now,
		Action:    domain.ActionHold,
		Price:     snap.Price,
		ZScore:    snap.ZScore,
		Reason:    domain.ReasonNoSignal,
		Metadata:  metadata(snap),
	}

	if math.Abs(snap.ZScore) < g.cfg.ExitZScore {
		sig.Action = domain.ActionExit
		sig.Confidence = 1.0
		sig.Reason = domain.ReasonMeanReversionDone
	}

	if g.stopLossHit(snap.Price, pos) {
		sig.Action = domain.ActionExit
		sig.Confidence = 1.0
		sig.Reason = domain.ReasonStopLoss
	}

	if now.Sub(pos.EntryTime) > g.cfg.MaxPositionTime {
		sig.Action = domain.ActionExit
		sig.Confidence = timeLimitConfidence
		sig.Reason = domain.ReasonTimeLimit
	}

	return sig
}

func (g *Generator) stopLossHit(price float64, pos ledger.Position) bool {
	if pos.EntryPrice <= 0 {
		return false
	}
	switch pos.Side {
	case ledger.SideLong:
		return price < pos.EntryPrice*(1-g.cfg.StopLossFraction)
	case ledger.SideShort:
		return price > pos.EntryPrice*(1+g.cfg.StopLossFraction)
	default:
		return false
	}
}

func metadata(snap stats.Snapshot) map[string]float64 {
	return map[string]float64{
		"mean":         snap.Mean,
		"std_dev":      snap.StdDev,
		"oscillator":   snap.Oscillator,
		"volume_ratio": snap.VolumeRatio,
		"volatility":   snap.Volatility,
	}
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
