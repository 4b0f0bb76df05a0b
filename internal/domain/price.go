package domain

import "time"

// PriceSample is a single tick from the market data feed.
// Samples are ephemeral: consumed once by the statistics tracker
// in strict arrival order.
type PriceSample struct {
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// Valid reports whether the sample can be applied to the tracker.
// Non-positive prices are dropped silently by the consumer.
func (s PriceSample) Valid() bool {
	return s.Price > 0
}
