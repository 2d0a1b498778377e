package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/logger"
	infralogger "github.com/kilianp07/evstation/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes bills, pile transitions and reroutes as InfluxDB points.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      infralogger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the server and returns a NopSink when the
// health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) EventSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return NopSink{}
	}
	return sink
}

// Record writes one point per bill, status change or reroute. Dispatch
// events are counted by Prometheus only.
func (s *InfluxSink) Record(ctx context.Context, e events.Event) error {
	p := point(e)
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func point(e events.Event) *write.Point {
	switch ev := e.(type) {
	case events.BillIssued:
		b := ev.Bill
		return write.NewPointWithMeasurement("charging_bill").
			AddTag("pile_id", b.PileID).
			AddTag("mode", ev.Mode.Name()).
			AddField("energy_kwh", round3(b.Energy)).
			AddField("duration_h", round3(b.Duration)).
			AddField("charging_fee", round3(b.ChargingFee)).
			AddField("service_fee", round3(b.ServiceFee)).
			AddField("total_fee", round3(b.TotalFee)).
			SetTime(b.GeneratedAt)
	case events.PileStatusChanged:
		return write.NewPointWithMeasurement("pile_status").
			AddTag("pile_id", ev.PileID).
			AddTag("mode", ev.Mode.Name()).
			AddField("from", ev.From.String()).
			AddField("to", ev.To.String()).
			SetTime(ev.At)
	case events.RerouteCompleted:
		return write.NewPointWithMeasurement("pile_reroute").
			AddTag("pile_id", ev.PileID).
			AddTag("type", string(ev.Type)).
			AddField("rescheduled", ev.Rescheduled).
			AddField("requeued", ev.Requeued).
			SetTime(ev.At)
	}
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
