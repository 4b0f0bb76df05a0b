package audit

import (
	"context"
	"errors"
)

// Fanout writes every record to all underlying sinks. A failing sink does
// not stop the others; errors are joined so callers can log them once.
type Fanout struct {
	sinks []Sink
}

// NewFanout builds a fanout over the given sinks. Nil sinks are skipped.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

var _ Sink = (*Fanout)(nil)

// RecordSignal writes the event to every sink.
func (f *Fanout) RecordSignal(ctx context.Context, ev SignalEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.RecordSignal(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordHealth writes the snapshot to every sink.
func (f *Fanout) RecordHealth(ctx context.Context, hs HealthSnapshot) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.RecordHealth(ctx, hs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordPerformance writes the snapshot to every sink.
func (f *Fanout) RecordPerformance(ctx context.Context, ps PerformanceSnapshot) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.RecordPerformance(ctx, ps); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
