package metrics

import (
	"context"
	"errors"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/logger"
	"github.com/kilianp07/evstation/internal/eventbus"
)

// EventSink stores station events in a time-series backend.
type EventSink interface {
	Record(ctx context.Context, e events.Event) error
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Record(context.Context, events.Event) error { return nil }

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []EventSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// Record forwards e to every sink and joins their errors.
func (m *MultiSink) Record(ctx context.Context, e events.Event) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartEventCollector subscribes sink to the bus in a goroutine that stops
// when ctx is cancelled or the bus closes.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], sink EventSink, log logger.Logger) {
	if bus == nil || sink == nil {
		return
	}
	log = logger.OrNop(log)
	go eventbus.Consume(ctx, bus, func(ctx context.Context, e events.Event) {
		if err := sink.Record(ctx, e); err != nil {
			log.Warnf("record %s event: %v", e.Kind(), err)
		}
	})
}
