// Package feed delivers price samples for a single instrument.
package feed

import (
	"context"

	"meanrev-engine/internal/domain"
)

// Feed is an asynchronous source of price samples. Implementations must
// survive transport failures by reconnecting and resubscribing: failures
// surface to the consumer as absence of samples, never as errors after a
// successful Subscribe. The sample channel closes only when the feed is
// closed for good.
type Feed interface {
	// Subscribe starts delivery and returns the sample channel.
	Subscribe(ctx context.Context) (<-chan domain.PriceSample, error)

	// Close stops delivery and releases the transport.
	Close() error
}
