package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/model"
)

type captured struct {
	mu     sync.Mutex
	bodies []string
}

func (c *captured) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, strings.TrimSpace(string(data)))
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInfluxSinkRecordsBill(t *testing.T) {
	c := &captured{}
	srv := c.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	bill := model.Bill{PileID: "A", Energy: 10, Duration: 1.0 / 3, ChargingFee: 10, ServiceFee: 8, TotalFee: 18, GeneratedAt: now}
	require.NoError(t, sink.Record(context.Background(), events.BillIssued{Bill: bill, Mode: model.ModeFast}))

	p := write.NewPointWithMeasurement("charging_bill").
		AddTag("pile_id", "A").
		AddTag("mode", "fast").
		AddField("energy_kwh", 10.0).
		AddField("duration_h", 0.333).
		AddField("charging_fee", 10.0).
		AddField("service_fee", 8.0).
		AddField("total_fee", 18.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	require.Len(t, c.bodies, 1)
	assert.Equal(t, expected, c.bodies[0])
}

func TestInfluxSinkSkipsDispatch(t *testing.T) {
	c := &captured{}
	srv := c.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Org: "org", Bucket: "bucket"})
	defer sink.Close()

	require.NoError(t, sink.Record(context.Background(), events.RequestDispatched{PileID: "A"}))
	require.NoError(t, sink.Record(context.Background(), events.RerouteCompleted{PileID: "A", Type: events.RerouteFault, Rescheduled: 2, At: time.Now()}))
	require.Len(t, c.bodies, 1)
	assert.True(t, strings.HasPrefix(c.bodies[0], "pile_reroute,pile_id=A,type=fault"))
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	_, ok := sink.(NopSink)
	assert.True(t, ok, "expected NopSink on failing health check")
	assert.True(t, called, "health endpoint not called")
}
