package journal

import (
	"context"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/logger"
	"github.com/kilianp07/evstation/internal/eventbus"
)

// Recorder drains station events into a Store.
type Recorder struct {
	store Store
	log   logger.Logger
}

// NewRecorder returns a recorder writing to store.
func NewRecorder(store Store, log logger.Logger) *Recorder {
	return &Recorder{store: store, log: logger.OrNop(log)}
}

// Run consumes bus until ctx is done or the bus closes.
func (r *Recorder) Run(ctx context.Context, bus *eventbus.Bus[events.Event]) {
	eventbus.Consume(ctx, bus, r.Record)
}

// Record appends one event. Failures are logged and dropped.
func (r *Recorder) Record(ctx context.Context, e events.Event) {
	rec, err := FromEvent(e)
	if err != nil {
		r.log.Errorf("journal: %v", err)
		return
	}
	if err := r.store.Append(ctx, rec); err != nil {
		r.log.Errorf("journal append %s: %v", rec.Kind, err)
	}
}
