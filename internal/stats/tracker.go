// Package stats maintains incrementally-updated rolling statistics over a
// live price stream: mean, standard deviation, z-score, an RSI-style
// oscillator, volume ratio, and annualized volatility, all O(1) per update.
package stats

import (
	"math"
	"time"

	"meanrev-engine/internal/domain"
)

// Oscillator neutral value reported until enough return samples exist.
const oscillatorNeutral = 50.0

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	// LookbackPeriod is the price window capacity. Default: 12.
	LookbackPeriod int
	// VolumeWindow is the volume window capacity. Default: 20.
	VolumeWindow int
	// OscillatorPeriod is the RSI averaging period. The oscillator stays
	// neutral (50) until OscillatorPeriod+1 return samples exist. Default: 14.
	OscillatorPeriod int
	// AnnualizationPeriods converts per-sample return stddev to annualized
	// volatility via sqrt scaling. Default: 8760 (hourly bars).
	AnnualizationPeriods int
}

func (o TrackerOptions) withDefaults() TrackerOptions {
	if o.LookbackPeriod <= 0 {
		o.LookbackPeriod = 12
	}
	if o.VolumeWindow <= 0 {
		o.VolumeWindow = 20
	}
	if o.OscillatorPeriod <= 0 {
		o.OscillatorPeriod = 14
	}
	if o.AnnualizationPeriods <= 0 {
		o.AnnualizationPeriods = 8760
	}
	return o
}

// Snapshot is a read-only view of the tracker state. Snapshots are the only
// form in which tracker data crosses a task boundary.
type Snapshot struct {
	Price       float64
	Mean        float64
	StdDev      float64
	ZScore      float64
	Oscillator  float64
	VolumeRatio float64
	Volatility  float64 // annualized
	Samples     int     // prices currently in the window
	LastUpdate  time.Time
}

// Tracker maintains the rolling windows and their running accumulators.
// Not safe for concurrent use: the engine owns it exclusively and mutates
// it from a single goroutine.
type Tracker struct {
	opts TrackerOptions

	prices  *Window
	returns *Window
	volumes *Window

	// Running accumulators over the price window. Invariant: always equal
	// the sum / sum-of-squares of exactly the elements currently held.
	priceSum   float64
	priceSumSq float64

	lastPrice  float64
	lastVolume float64
	lastUpdate time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	opts = opts.withDefaults()

	// The return window must hold enough samples for the oscillator even
	// when the price lookback is shorter.
	returnCap := opts.LookbackPeriod
	if min := opts.OscillatorPeriod + 1; returnCap < min {
		returnCap = min
	}

	return &Tracker{
		opts:    opts,
		prices:  NewWindow(opts.LookbackPeriod),
		returns: NewWindow(returnCap),
		volumes: NewWindow(opts.VolumeWindow),
	}
}

// Update applies one price sample. Fails closed: a non-positive price is
// dropped without touching any state.
func (t *Tracker) Update(price, volume float64, ts time.Time) {
	if price <= 0 {
		return
	}

	if evicted, wasFull := t.prices.Push(price); wasFull {
		// Remove the evicted element's contribution before adding the
		// new one, so the accumulators track exactly the window contents.
		t.priceSum -= evicted
		t.priceSumSq -= evicted * evicted
	}
	t.priceSum += price
	t.priceSumSq += price * price

	if t.lastPrice > 0 {
		t.returns.Push(price/t.lastPrice - 1)
	}
	t.volumes.Push(volume)

	t.lastPrice = price
	t.lastVolume = volume
	t.lastUpdate = ts
}

// Ready reports whether the price window has reached its lookback length.
func (t *Tracker) Ready() bool {
	return t.prices.Full()
}

// Samples returns the number of prices currently in the window.
func (t *Tracker) Samples() int {
	return t.prices.Len()
}

// Snapshot computes all derived statistics from the current window state.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Price:       t.lastPrice,
		Mean:        t.mean(),
		StdDev:      t.stdDev(),
		ZScore:      t.zScore(),
		Oscillator:  t.oscillator(),
		VolumeRatio: t.volumeRatio(),
		Volatility:  t.volatility(),
		Samples:     t.prices.Len(),
		LastUpdate:  t.lastUpdate,
	}
}

func (t *Tracker) mean() float64 {
	n := t.prices.Len()
	if n == 0 {
		return 0
	}
	return t.priceSum / float64(n)
}

// stdDev is the population standard deviation of the price window.
// Variance is clamped to >= 0: near-zero variance can go slightly negative
// under floating point and must not reach Sqrt.
func (t *Tracker) stdDev() float64 {
	n := t.prices.Len()
	if n == 0 {
		return 0
	}
	mean := t.priceSum / float64(n)
	variance := t.priceSumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (t *Tracker) zScore() float64 {
	std := t.stdDev()
	if std == 0 {
		return 0
	}
	return (t.lastPrice - t.mean()) / std
}

// oscillator is an RSI over the return window. With fewer than period+1
// return samples it reports the neutral value 50; callers must treat that
// as insufficient data, not as a trading signal.
func (t *Tracker) oscillator() float64 {
	period := t.opts.OscillatorPeriod
	if t.returns.Len() < period+1 {
		return oscillatorNeutral
	}

	var gains, losses float64
	start := t.returns.Len() - period
	for i := start; i < t.returns.Len(); i++ {
		r := t.returns.At(i)
		if r > 0 {
			gains += r
		} else {
			losses -= r
		}
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// volumeRatio is the latest volume over the mean of the prior volumes.
func (t *Tracker) volumeRatio() float64 {
	n := t.volumes.Len()
	if n < 2 {
		return 1
	}
	var sum float64
	for i := 0; i < n-1; i++ {
		sum += t.volumes.At(i)
	}
	mean := sum / float64(n-1)
	if mean == 0 {
		return 1
	}
	return t.lastVolume / mean
}

// volatility is the stddev of the return window scaled to annual terms.
func (t *Tracker) volatility() float64 {
	n := t.returns.Len()
	if n < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += t.returns.At(i)
	}
	mean := sum / float64(n)
	var variance float64
	for i := 0; i < n; i++ {
		d := t.returns.At(i) - mean
		variance += d * d
	}
	variance /= float64(n)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance) * math.Sqrt(float64(t.opts.AnnualizationPeriods))
}

// Apply is a convenience wrapper for feeding a domain sample.
func (t *Tracker) Apply(s domain.PriceSample) {
	t.Update(s.Price, s.Volume, s.Timestamp)
}
