package station

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/evstation/core/clock"
	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/gateway"
	"github.com/kilianp07/evstation/core/model"
)

var t0 = time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)

type fakeUsers struct{ known map[string]bool }

func (f fakeUsers) CreateUser(_ context.Context, u model.User) (model.User, error) { return u, nil }
func (f fakeUsers) UserByName(context.Context, string) (model.User, error) {
	return model.User{}, gateway.ErrNotFound
}
func (f fakeUsers) UserByID(_ context.Context, id string) (model.User, error) {
	if f.known == nil || f.known[id] {
		return model.User{ID: id}, nil
	}
	return model.User{}, gateway.ErrNotFound
}

type fakeBills struct {
	mu    sync.Mutex
	saved []model.Bill
	fail  bool
}

func (f *fakeBills) SaveBill(_ context.Context, b model.Bill) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("disk full")
	}
	f.saved = append(f.saved, b)
	return nil
}

func (f *fakeBills) UserBills(_ context.Context, id string) ([]model.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Bill
	for _, b := range f.saved {
		if b.UserID == id {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBills) AllBills(context.Context) ([]model.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Bill(nil), f.saved...), nil
}

func (f *fakeBills) BillsBetween(ctx context.Context, start, end time.Time) ([]model.Bill, error) {
	all, _ := f.AllBills(ctx)
	var out []model.Bill
	for _, b := range all {
		if !b.StartTime.Before(start) && !b.StartTime.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBills) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type recordBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordBus) Publish(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordBus) dispatched(src events.Source) []events.RequestDispatched {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.RequestDispatched
	for _, e := range r.events {
		if d, ok := e.(events.RequestDispatched); ok && d.Source == src {
			out = append(out, d)
		}
	}
	return out
}

type fixture struct {
	st    *Station
	clock *clock.Fake
	bills *fakeBills
	bus   *recordBus
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	f := &fixture{clock: clock.NewFake(t0), bills: &fakeBills{}, bus: &recordBus{}}
	st, err := New(cfg, Deps{Users: fakeUsers{}, Bills: f.bills, Bus: f.bus, Clock: f.clock})
	if err != nil {
		t.Fatalf("new station: %v", err)
	}
	f.st = st
	return f
}

func (f *fixture) submit(t *testing.T, user string, mode model.Mode, amount float64) model.Ticket {
	t.Helper()
	tk, err := f.st.SubmitRequest(context.Background(), user, mode, amount, 60)
	if err != nil {
		t.Fatalf("submit %s: %v", user, err)
	}
	return tk
}

// place puts a freshly ticketed request straight onto a pile.
func (f *fixture) place(t *testing.T, pileID, user string, amount float64) model.Ticket {
	t.Helper()
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	p := f.st.piles[pileID]
	tk := f.st.nextTicketLocked(p.Mode())
	e := model.QueueEntry{UserID: user, Ticket: tk, Request: model.ChargingRequest{Mode: p.Mode(), Amount: amount}, QueuedAt: f.clock.Now()}
	if ok, _ := p.AddToQueue(e); !ok {
		t.Fatalf("pile %s refused %s", pileID, user)
	}
	return tk
}

func (f *fixture) waiting(mode model.Mode) []model.QueueEntry {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	return append([]model.QueueEntry(nil), f.st.waiting[mode]...)
}

func (f *fixture) pile(id string) *Pile { return f.st.piles[id] }

func fastOnly(fast, queueLen int) Config {
	return Config{FastPiles: fast, TricklePiles: 1, ChargingQueueLen: queueLen, WaitingAreaSize: 6}
}
