package journal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/model"
	"github.com/kilianp07/evstation/internal/eventbus"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func sample() []events.Event {
	tk := model.Ticket{Mode: model.ModeFast, Seq: 1}
	return []events.Event{
		events.RequestDispatched{UserID: "u1", Ticket: tk, PileID: "A", Source: events.SourceTick, Started: true, At: t0},
		events.PileStatusChanged{PileID: "A", Mode: model.ModeFast, From: model.StatusAvailable, To: model.StatusCharging, At: t0},
		events.PileStatusChanged{PileID: "B", Mode: model.ModeFast, From: model.StatusAvailable, To: model.StatusFault, At: t0.Add(time.Minute)},
		events.BillIssued{Bill: model.Bill{ID: "b1", UserID: "u1", PileID: "A", Ticket: tk, GeneratedAt: t0.Add(time.Hour)}, Mode: model.ModeFast},
	}
}

func TestFromEvent(t *testing.T) {
	rec, err := FromEvent(sample()[0])
	require.NoError(t, err)
	assert.Equal(t, events.KindDispatch, rec.Kind)
	assert.Equal(t, "A", rec.PileID)
	assert.Equal(t, "F1", rec.Ticket)
	assert.NotEmpty(t, rec.ID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Payload, &payload))
	assert.Equal(t, "tick", payload["source"])

	rec, err = FromEvent(sample()[3])
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.UserID)
	assert.True(t, rec.Time.Equal(t0.Add(time.Hour)))
}

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	r := NewRecorder(s, nil)
	for _, e := range sample() {
		r.Record(ctx, e)
	}

	all, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, events.KindBill, all[3].Kind)

	status, err := s.Query(ctx, Filter{Kind: events.KindPileStatus})
	require.NoError(t, err)
	assert.Len(t, status, 2)

	pileA, err := s.Query(ctx, Filter{PileID: "A"})
	require.NoError(t, err)
	assert.Len(t, pileA, 3)

	window, err := s.Query(ctx, Filter{Since: t0.Add(time.Second), Until: t0.Add(2 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "B", window[0].PileID)

	last, err := s.Query(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, events.KindBill, last[1].Kind)
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "journal", "events.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestJSONLStoreEmpty(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "events.jsonl"), 1, 1, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	recs, err := s.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore("file:journal_test.db?mode=memory&cache=shared")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestRecorderRun(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "events.jsonl"), 1, 1, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	bus := eventbus.New[events.Event]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		NewRecorder(s, nil).Run(ctx, bus)
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.Publish(sample()[1])
		recs, _ := s.Query(ctx, Filter{})
		return len(recs) > 0
	}, time.Second, 10*time.Millisecond)
	bus.Close()
	<-done
}
