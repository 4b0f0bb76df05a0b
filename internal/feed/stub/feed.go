// Package stub provides a deterministic in-memory feed for tests and replay.
package stub

import (
	"context"
	"sync"

	"meanrev-engine/internal/domain"
)

// Feed replays a fixed sequence of samples and then leaves the channel open
// (live feeds go quiet, they do not close). Implements feed.Feed.
type Feed struct {
	samples      []domain.PriceSample
	closeOnDrain bool

	mu         sync.Mutex
	out        chan domain.PriceSample
	subscribed bool
	closeOnce  sync.Once
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewFeed creates a stub feed that will deliver the given samples in order.
func NewFeed(samples []domain.PriceSample) *Feed {
	return &Feed{
		samples: samples,
		out:     make(chan domain.PriceSample),
		done:    make(chan struct{}),
	}
}

// NewReplayFeed creates a stub feed that closes the sample channel once the
// script is exhausted, so consumers terminate instead of idling.
func NewReplayFeed(samples []domain.PriceSample) *Feed {
	f := NewFeed(samples)
	f.closeOnDrain = true
	return f
}

// Subscribe starts delivery of the scripted samples.
func (f *Feed) Subscribe(ctx context.Context) (<-chan domain.PriceSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribed {
		return f.out, nil
	}
	f.subscribed = true

	f.wg.Add(1)
	go func() {
		drained := true
	deliver:
		for _, s := range f.samples {
			select {
			case f.out <- s:
			case <-ctx.Done():
				drained = false
				break deliver
			case <-f.done:
				drained = false
				break deliver
			}
		}
		// Done must precede Close: Close waits on the group.
		f.wg.Done()
		if drained && f.closeOnDrain {
			f.Close()
		}
	}()

	return f.out, nil
}

// Close stops delivery and closes the sample channel.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		f.wg.Wait()
		close(f.out)
	})
	return nil
}
