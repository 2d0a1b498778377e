package station

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/model"
)

func users(entries []model.QueueEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.UserID)
	}
	return out
}

func TestSetPileStatusRejections(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.st.SetPileStatus(ctx, "A", model.StatusCharging)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.st.SetPileStatus(ctx, "Z", model.StatusFault)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFaultReschedulesLocalQueue(t *testing.T) {
	f := newFixture(t, fastOnly(2, 3))
	ctx := context.Background()
	f.place(t, "A", "u1", 30)
	f.place(t, "A", "u2", 10)
	f.place(t, "A", "u3", 10)
	f.place(t, "B", "u4", 5)
	f.clock.Advance(6 * time.Minute)

	out, err := f.st.SetPileStatus(ctx, "A", model.StatusFault)
	require.NoError(t, err)
	require.NotNil(t, out.Bill)
	assert.Equal(t, "u1", out.Bill.UserID)
	assert.InDelta(t, 3, out.Bill.Energy, 1e-9)
	require.NotNil(t, out.Reroute)
	assert.Equal(t, events.RerouteFault, out.Reroute.Type)
	assert.Equal(t, 2, out.Reroute.Rescheduled)
	assert.Zero(t, out.Reroute.Requeued)

	assert.Equal(t, model.StatusFault, f.pile("A").Status())
	assert.True(t, f.pile("A").IsEmpty())
	assert.Equal(t, []string{"u2", "u3"}, users(f.pile("B").Queue()))
	assert.Equal(t, 1, f.bills.count())
	assert.False(t, f.st.Paused())
	assert.Len(t, f.bus.dispatched(events.SourceFault), 2)
}

func TestFaultRequeuesAheadOfWaiting(t *testing.T) {
	f := newFixture(t, fastOnly(2, 3))
	ctx := context.Background()
	f.place(t, "A", "u1", 30)
	f.place(t, "A", "u2", 10)
	f.place(t, "A", "u3", 10)
	f.place(t, "B", "u4", 30)
	f.place(t, "B", "u5", 10)
	f.place(t, "B", "u6", 10)
	f.submit(t, "u7", model.ModeFast, 10)

	out, err := f.st.SetPileStatus(ctx, "A", model.StatusFault)
	require.NoError(t, err)
	require.NotNil(t, out.Reroute)
	assert.Zero(t, out.Reroute.Rescheduled)
	assert.Equal(t, 2, out.Reroute.Requeued)

	w := f.waiting(model.ModeFast)
	assert.Equal(t, []string{"u2", "u3", "u7"}, users(w))
	assert.Equal(t, "F2", w[0].Ticket.String(), "tickets survive the reroute")

	// Displaced and remaining work is conserved: u1 was billed, nothing lost.
	held := len(f.pile("B").Queue()) + 1 + len(w)
	assert.Equal(t, 6, held)
}

func TestFaultOnFaultedPileIsQuiet(t *testing.T) {
	f := newFixture(t, fastOnly(2, 2))
	ctx := context.Background()
	_, err := f.st.SetPileStatus(ctx, "A", model.StatusFault)
	require.NoError(t, err)
	out, err := f.st.SetPileStatus(ctx, "A", model.StatusOff)
	require.NoError(t, err)
	assert.Nil(t, out.Reroute)
	assert.Nil(t, out.Bill)
	assert.Equal(t, model.StatusOff, out.Pile.Status)
}

func TestOffBehavesLikeFault(t *testing.T) {
	f := newFixture(t, fastOnly(2, 2))
	ctx := context.Background()
	f.place(t, "A", "u1", 30)
	f.place(t, "A", "u2", 10)

	out, err := f.st.SetPileStatus(ctx, "A", model.StatusOff)
	require.NoError(t, err)
	require.NotNil(t, out.Reroute)
	assert.Equal(t, 1, out.Reroute.Rescheduled)
	sess, ok := f.pile("B").Session()
	require.True(t, ok)
	assert.Equal(t, "u2", sess.UserID)

	// Dispatch ignores switched off piles.
	f.submit(t, "u3", model.ModeFast, 10)
	f.submit(t, "u4", model.ModeFast, 10)
	_, err = f.st.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, f.pile("A").IsEmpty())
	assert.Equal(t, []string{"u4"}, users(f.waiting(model.ModeFast)))
}

func TestRecoveryRebalancesByTicket(t *testing.T) {
	f := newFixture(t, fastOnly(2, 3))
	ctx := context.Background()
	_, err := f.st.SetPileStatus(ctx, "A", model.StatusFault)
	require.NoError(t, err)
	f.place(t, "B", "u1", 30)
	f.place(t, "B", "u2", 10)
	f.place(t, "B", "u3", 10)

	out, err := f.st.SetPileStatus(ctx, "A", model.StatusAvailable)
	require.NoError(t, err)
	require.NotNil(t, out.Reroute)
	assert.Equal(t, events.RerouteRecovery, out.Reroute.Type)
	assert.Equal(t, 2, out.Reroute.Rescheduled)

	moved := f.bus.dispatched(events.SourceRecovery)
	require.Len(t, moved, 2)
	assert.Equal(t, "F2", moved[0].Ticket.String())
	assert.Equal(t, "F3", moved[1].Ticket.String())

	sess, ok := f.pile("A").Session()
	require.True(t, ok)
	assert.Equal(t, "u2", sess.UserID)
	assert.Equal(t, []string{"u3"}, users(f.pile("A").Queue()))
	assert.Empty(t, f.pile("B").Queue())
	assert.False(t, f.st.Paused())
}

func TestRecoveryWithoutBacklog(t *testing.T) {
	f := newFixture(t, fastOnly(2, 2))
	ctx := context.Background()
	_, err := f.st.SetPileStatus(ctx, "A", model.StatusFault)
	require.NoError(t, err)
	out, err := f.st.SetPileStatus(ctx, "A", model.StatusAvailable)
	require.NoError(t, err)
	assert.Nil(t, out.Reroute)
	assert.Equal(t, model.StatusAvailable, out.Pile.Status)

	// Available on an in-service pile changes nothing.
	out, err = f.st.SetPileStatus(ctx, "B", model.StatusAvailable)
	require.NoError(t, err)
	assert.Nil(t, out.Reroute)
}

func TestStatusChangesArePublished(t *testing.T) {
	f := newFixture(t, fastOnly(1, 2))
	ctx := context.Background()
	f.place(t, "A", "u1", 10)
	_, err := f.st.SetPileStatus(ctx, "A", model.StatusFault)
	require.NoError(t, err)

	f.bus.mu.Lock()
	defer f.bus.mu.Unlock()
	var changes []events.PileStatusChanged
	var reroutes int
	var bills int
	for _, e := range f.bus.events {
		switch ev := e.(type) {
		case events.PileStatusChanged:
			changes = append(changes, ev)
		case events.RerouteCompleted:
			reroutes++
		case events.BillIssued:
			bills++
		}
	}
	require.Len(t, changes, 1)
	assert.Equal(t, model.StatusCharging, changes[0].From)
	assert.Equal(t, model.StatusFault, changes[0].To)
	assert.Equal(t, 1, reroutes)
	assert.Equal(t, 1, bills)
}

func TestFaultRequeueMayOverfillWaitingArea(t *testing.T) {
	cfg := fastOnly(1, 3)
	cfg.WaitingAreaSize = 2
	f := newFixture(t, cfg)
	ctx := context.Background()
	f.place(t, "A", "u1", 10)
	f.place(t, "A", "u2", 10)
	f.place(t, "A", "u3", 10)
	f.submit(t, "u4", model.ModeFast, 10)
	f.submit(t, "u5", model.ModeFast, 10)

	change, err := f.st.SetPileStatus(ctx, "A", model.StatusFault)
	require.NoError(t, err)
	require.NotNil(t, change.Reroute)
	assert.Equal(t, 2, change.Reroute.Requeued)

	// Displaced vehicles are never dropped, even past the waiting area size.
	assert.Equal(t, []string{"u2", "u3", "u4", "u5"}, users(f.waiting(model.ModeFast)))
	info := f.st.WaitingArea()
	assert.Equal(t, 4, info.Total)
	assert.Equal(t, 2, info.Capacity)

	// Admission stays closed until the area drains below its size.
	_, err = f.st.SubmitRequest(ctx, "u6", model.ModeFast, 10, 0)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}
