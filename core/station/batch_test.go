package station

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/model"
)

func TestBatchScheduleModeLargestFirst(t *testing.T) {
	f := newFixture(t, fastOnly(2, 2))
	f.submit(t, "u10", model.ModeFast, 10)
	f.submit(t, "u30", model.ModeFast, 30)
	f.submit(t, "u25", model.ModeFast, 25)

	res, err := f.st.BatchScheduleMode(context.Background(), model.ModeFast)
	require.NoError(t, err)
	require.Len(t, res.Assignments, 3)

	got := map[string]string{}
	for _, a := range res.Assignments {
		got[a.UserID] = a.PileID
	}
	assert.Equal(t, map[string]string{"u30": "A", "u25": "B", "u10": "B"}, got)
	assert.Equal(t, "u30", res.Assignments[0].UserID)
	assert.True(t, res.Assignments[0].Started)
	assert.False(t, res.Assignments[2].Started)

	assert.Empty(t, f.waiting(model.ModeFast))
	assert.Len(t, f.bus.dispatched(events.SourceBatch), 3)
}

func TestBatchScheduleModeTakesOnlyFreePlaces(t *testing.T) {
	f := newFixture(t, fastOnly(1, 2))
	for _, u := range []string{"u1", "u2", "u3"} {
		f.submit(t, u, model.ModeFast, 10)
	}
	res, err := f.st.BatchScheduleMode(context.Background(), model.ModeFast)
	require.NoError(t, err)
	assert.Len(t, res.Assignments, 2)
	assert.Equal(t, []string{"u3"}, users(f.waiting(model.ModeFast)))
}

func TestBatchScheduleModeFailuresLeaveWaitingArea(t *testing.T) {
	f := newFixture(t, fastOnly(1, 1))
	ctx := context.Background()

	_, err := f.st.BatchScheduleMode(ctx, model.ModeFast)
	assert.ErrorIs(t, err, ErrNoWork)

	_, err = f.st.BatchScheduleMode(ctx, model.Mode("X"))
	assert.ErrorIs(t, err, ErrInvalidState)

	f.place(t, "A", "u1", 10)
	f.submit(t, "u2", model.ModeFast, 10)
	_, err = f.st.BatchScheduleMode(ctx, model.ModeFast)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, []string{"u2"}, users(f.waiting(model.ModeFast)))

	_, err = f.st.SetPileStatus(ctx, "A", model.StatusFault)
	require.NoError(t, err)
	_, err = f.st.BatchScheduleMode(ctx, model.ModeFast)
	assert.ErrorIs(t, err, ErrCapacityExceeded, "faulted piles offer no places")
}

func TestBatchScheduleAll(t *testing.T) {
	f := newFixture(t, fastOnly(1, 1))
	ctx := context.Background()
	f.submit(t, "f1", model.ModeFast, 10)
	f.submit(t, "t1", model.ModeTrickle, 5)
	f.submit(t, "f2", model.ModeFast, 20)

	res, err := f.st.BatchScheduleAll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Assignments, 2)
	got := map[string]string{}
	for _, a := range res.Assignments {
		got[a.UserID] = a.PileID
	}
	assert.Equal(t, map[string]string{"f1": "A", "t1": "B"}, got)
	assert.Equal(t, []string{"f2"}, users(f.waiting(model.ModeFast)))
	assert.Empty(t, f.waiting(model.ModeTrickle))

	_, err = f.st.BatchScheduleAll(ctx)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestBatchScheduleAllNeedsFullDemand(t *testing.T) {
	f := newFixture(t, fastOnly(1, 1))
	f.submit(t, "f1", model.ModeFast, 10)

	_, err := f.st.BatchScheduleAll(context.Background())
	assert.ErrorIs(t, err, ErrNoWork)
	assert.Equal(t, []string{"f1"}, users(f.waiting(model.ModeFast)))
}

func TestPlanFailsWithoutMatchingSlot(t *testing.T) {
	p := NewPile("A", model.ModeFast, 30, 2, nil, nil)
	slots := []*slot{{pile: p, space: 1}}
	reqs := []model.QueueEntry{
		{UserID: "t", Request: model.ChargingRequest{Mode: model.ModeTrickle, Amount: 5}},
	}
	_, ok := plan(reqs, slots, byLoad)
	assert.False(t, ok)
	assert.Equal(t, 1, slots[0].space)
}
