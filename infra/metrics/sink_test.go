package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/internal/eventbus"
)

type recordSink struct {
	mu    sync.Mutex
	count int
	err   error
}

func (r *recordSink) Record(context.Context, events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return r.err
}

func (r *recordSink) n() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{err: errors.New("boom")}
	m := NewMultiSink(s1, s2, NopSink{})
	err := m.Record(context.Background(), events.BillIssued{})
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, s1.n())
	assert.Equal(t, 1, s2.n())
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New[events.Event]()
	defer bus.Close()
	sink := &recordSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartEventCollector(ctx, bus, sink, nil)
	require.Eventually(t, func() bool {
		bus.Publish(events.PileStatusChanged{PileID: "A"})
		return sink.n() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestBusMetricsAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	bus := eventbus.New[events.Event]()
	ch := bus.SubscribeBuffered(1)
	bus.Publish(events.BillIssued{})
	bus.Publish(events.BillIssued{})
	<-ch

	require.NoError(t, RegisterBusMetrics(reg, bus))
	require.NoError(t, RegisterBusMetrics(reg, bus), "second registration is tolerated")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "evstation_eventbus_dropped_total 1")
	assert.Contains(t, rec.Body.String(), "evstation_eventbus_subscribers 1")
}
