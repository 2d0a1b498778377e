package station

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/evstation/core/clock"
	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/gateway"
	"github.com/kilianp07/evstation/core/logger"
	"github.com/kilianp07/evstation/core/model"
	"github.com/kilianp07/evstation/core/monitoring"
	"github.com/kilianp07/evstation/core/report"
	"github.com/kilianp07/evstation/core/tariff"
)

// Publisher receives station events. *eventbus.Bus[events.Event] satisfies it.
type Publisher interface {
	Publish(events.Event)
}

// Deps groups the collaborators of a Station. Every field is optional.
type Deps struct {
	Users  gateway.UserStore
	Bills  gateway.BillStore
	Bus    Publisher
	Log    logger.Logger
	Clock  clock.Clock
	Prices *tariff.Prices
}

// Station owns the piles, the per-mode waiting areas and the ticket counters.
// A single mutex guards all of it; every exported method holds it for its
// whole critical section and performs gateway I/O only after releasing it.
type Station struct {
	mu       sync.Mutex
	cfg      Config
	piles    map[string]*Pile
	order    []string
	waiting  map[model.Mode][]model.QueueEntry
	counters map[model.Mode]int
	paused   bool

	users gateway.UserStore
	bills gateway.BillStore
	bus   Publisher
	log   logger.Logger
	clock clock.Clock
}

// New builds a station with the configured piles. Ids are consecutive letters
// from A, fast piles first.
func New(cfg Config, deps Deps) (*Station, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("station config: %w", err)
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	prices := tariff.DefaultPrices()
	if deps.Prices != nil {
		prices = *deps.Prices
	}
	billing, err := tariff.NewCalculator(prices, clk)
	if err != nil {
		return nil, fmt.Errorf("station config: %w", err)
	}

	s := &Station{
		cfg:      cfg,
		piles:    make(map[string]*Pile),
		waiting:  map[model.Mode][]model.QueueEntry{model.ModeFast: nil, model.ModeTrickle: nil},
		counters: map[model.Mode]int{model.ModeFast: 0, model.ModeTrickle: 0},
		users:    deps.Users,
		bills:    deps.Bills,
		bus:      deps.Bus,
		log:      logger.OrNop(deps.Log),
		clock:    clk,
	}
	add := func(mode model.Mode, power float64) {
		id := string(rune('A' + len(s.order)))
		s.piles[id] = NewPile(id, mode, power, cfg.ChargingQueueLen, clk, billing)
		s.order = append(s.order, id)
	}
	for i := 0; i < cfg.FastPiles; i++ {
		add(model.ModeFast, cfg.FastPower)
	}
	for i := 0; i < cfg.TricklePiles; i++ {
		add(model.ModeTrickle, cfg.TricklePower)
	}
	s.withLock(s.refreshGaugesLocked)
	return s, nil
}

// withLock runs fn holding the station mutex. The mutex is released even when
// fn panics so a recovered panic never leaves the station blocked.
func (s *Station) withLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Config returns the effective configuration.
func (s *Station) Config() Config { return s.cfg }

// PileIDs returns the pile ids in iteration order.
func (s *Station) PileIDs() []string { return append([]string(nil), s.order...) }

// effects collects what a locked operation produced so it can be persisted
// and published once the lock is released.
type effects struct {
	events []events.Event
	bills  []model.Bill
}

func (fx *effects) bill(b *model.Bill, mode model.Mode) {
	if b == nil {
		return
	}
	fx.bills = append(fx.bills, *b)
	fx.events = append(fx.events, events.BillIssued{Bill: *b, Mode: mode})
}

func (fx *effects) emit(e events.Event) { fx.events = append(fx.events, e) }

// flush persists bills and publishes events. Persistence failures are logged
// and reported; the in-memory transition stands.
func (s *Station) flush(ctx context.Context, fx *effects) {
	for _, b := range fx.bills {
		billsIssued.Inc()
		billedEnergy.Add(b.Energy)
		if s.bills == nil {
			continue
		}
		if err := s.bills.SaveBill(ctx, b); err != nil {
			s.log.Errorf("save bill %s for %s: %v", b.ID, b.Ticket, err)
			monitoring.CaptureException(err, map[string]string{"op": "save_bill", "pile": b.PileID})
		}
	}
	for _, e := range fx.events {
		if d, ok := e.(events.RequestDispatched); ok {
			dispatchedTotal.WithLabelValues(string(d.Source)).Inc()
		}
		if s.bus != nil {
			s.bus.Publish(e)
		}
	}
}

func (s *Station) nextTicketLocked(mode model.Mode) model.Ticket {
	s.counters[mode]++
	return model.Ticket{Mode: mode, Seq: s.counters[mode]}
}

func (s *Station) waitingTotalLocked() int {
	n := 0
	for _, q := range s.waiting {
		n += len(q)
	}
	return n
}

// findWaitingLocked returns the mode and index of the user's waiting entry.
func (s *Station) findWaitingLocked(userID string) (model.Mode, int, bool) {
	for _, m := range model.Modes {
		for i, e := range s.waiting[m] {
			if e.UserID == userID {
				return m, i, true
			}
		}
	}
	return "", 0, false
}

// pileOfLocked returns the pile holding the user, active or queued.
func (s *Station) pileOfLocked(userID string) (*Pile, model.Ticket, bool) {
	for _, id := range s.order {
		if t, ok := s.piles[id].holds(userID); ok {
			return s.piles[id], t, true
		}
	}
	return nil, model.Ticket{}, false
}

func (s *Station) checkUser(ctx context.Context, userID string) error {
	if s.users == nil {
		return nil
	}
	if _, err := s.users.UserByID(ctx, userID); err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		return fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return nil
}

// SubmitRequest admits a charging request into the waiting area of its mode
// and returns the issued ticket.
func (s *Station) SubmitRequest(ctx context.Context, userID string, mode model.Mode, amount, batteryCapacity float64) (model.Ticket, error) {
	req := model.ChargingRequest{Mode: mode, Amount: amount, BatteryCapacity: batteryCapacity}
	if err := req.Validate(); err != nil {
		return model.Ticket{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := s.checkUser(ctx, userID); err != nil {
		return model.Ticket{}, err
	}

	var (
		t   model.Ticket
		err error
	)
	s.withLock(func() { t, err = s.admitLocked(userID, req) })
	if err != nil {
		return model.Ticket{}, err
	}

	s.log.Debugw("request admitted", logger.Fields{"user": userID, "ticket": t.String(), "amount": amount})
	if s.cfg.DispatchOnSubmit {
		if _, err := s.Tick(ctx); err != nil {
			s.log.Warnf("dispatch after submit: %v", err)
		}
	}
	return t, nil
}

func (s *Station) admitLocked(userID string, req model.ChargingRequest) (model.Ticket, error) {
	if _, _, ok := s.findWaitingLocked(userID); ok {
		return model.Ticket{}, fmt.Errorf("%w: user %s already has a waiting request", ErrInvalidState, userID)
	}
	if _, _, ok := s.pileOfLocked(userID); ok {
		return model.Ticket{}, fmt.Errorf("%w: user %s is already at a pile", ErrInvalidState, userID)
	}
	if s.waitingTotalLocked() >= s.cfg.WaitingAreaSize {
		return model.Ticket{}, fmt.Errorf("%w: waiting area holds %d requests", ErrCapacityExceeded, s.cfg.WaitingAreaSize)
	}
	now := s.clock.Now()
	req.CreatedAt = now
	t := s.nextTicketLocked(req.Mode)
	s.waiting[req.Mode] = append(s.waiting[req.Mode], model.QueueEntry{UserID: userID, Ticket: t, Request: req, QueuedAt: now})
	s.refreshGaugesLocked()
	return t, nil
}

// ModifyAmount changes the requested energy of a waiting request.
func (s *Station) ModifyAmount(userID string, amount float64) error {
	if !model.ValidAmount(amount) {
		return fmt.Errorf("%w: requested amount must be a positive finite number", ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, i, ok := s.findWaitingLocked(userID)
	if !ok {
		return s.notWaitingErrLocked(userID)
	}
	s.waiting[m][i].Request.Amount = amount
	return nil
}

// ModifyMode moves a waiting request to the other mode's waiting area under a
// freshly issued ticket.
func (s *Station) ModifyMode(userID string, mode model.Mode) (model.Ticket, error) {
	if !mode.Valid() {
		return model.Ticket{}, fmt.Errorf("%w: invalid mode %q", ErrInvalidState, mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, i, ok := s.findWaitingLocked(userID)
	if !ok {
		return model.Ticket{}, s.notWaitingErrLocked(userID)
	}
	e := s.waiting[m][i]
	s.waiting[m] = append(s.waiting[m][:i], s.waiting[m][i+1:]...)
	e.Request.Mode = mode
	e.Ticket = s.nextTicketLocked(mode)
	s.waiting[mode] = append(s.waiting[mode], e)
	s.refreshGaugesLocked()
	return e.Ticket, nil
}

func (s *Station) notWaitingErrLocked(userID string) error {
	if _, _, ok := s.pileOfLocked(userID); ok {
		return fmt.Errorf("%w: request of %s already left the waiting area", ErrInvalidState, userID)
	}
	return fmt.Errorf("%w: no request for user %s", ErrNotFound, userID)
}

// Cancel withdraws the user's request. A waiting request is dropped; a request
// on a pile is removed, and an active session is billed for what it delivered.
func (s *Station) Cancel(ctx context.Context, userID string) (*model.Bill, error) {
	var (
		fx   effects
		bill *model.Bill
		err  error
	)
	s.withLock(func() { bill, err = s.cancelLocked(userID, &fx) })
	if err != nil {
		return nil, err
	}
	s.flush(ctx, &fx)
	return bill, nil
}

func (s *Station) cancelLocked(userID string, fx *effects) (*model.Bill, error) {
	defer s.refreshGaugesLocked()
	if m, i, ok := s.findWaitingLocked(userID); ok {
		s.waiting[m] = append(s.waiting[m][:i], s.waiting[m][i+1:]...)
		return nil, nil
	}
	p, t, ok := s.pileOfLocked(userID)
	if !ok {
		return nil, fmt.Errorf("%w: no request for user %s", ErrNotFound, userID)
	}
	before := p.Status()
	bill, _ := p.RemoveFromQueue(userID, t)
	fx.bill(bill, p.Mode())
	s.statusChangeLocked(p, before, fx)
	return bill, nil
}

// EndCharging finalises the user's active session and persists its bill.
func (s *Station) EndCharging(ctx context.Context, userID string) (model.Bill, error) {
	var (
		fx   effects
		bill model.Bill
		err  error
	)
	s.withLock(func() { bill, err = s.endChargingLocked(userID, &fx) })
	if err != nil {
		return model.Bill{}, err
	}
	s.flush(ctx, &fx)
	return bill, nil
}

func (s *Station) endChargingLocked(userID string, fx *effects) (model.Bill, error) {
	for _, id := range s.order {
		p := s.piles[id]
		if sess, ok := p.Session(); ok && sess.UserID == userID {
			before := p.Status()
			bill := p.FinishCharging()
			s.statusChangeLocked(p, before, fx)
			fx.bill(bill, p.Mode())
			s.refreshGaugesLocked()
			return *bill, nil
		}
	}
	_, _, waiting := s.findWaitingLocked(userID)
	_, _, queued := s.pileOfLocked(userID)
	if waiting || queued {
		return model.Bill{}, fmt.Errorf("%w: user %s is not charging", ErrInvalidState, userID)
	}
	return model.Bill{}, fmt.Errorf("%w: no session for user %s", ErrNotFound, userID)
}

// Ticket returns the user's current ticket, searching the waiting areas and
// then the piles.
func (s *Station) Ticket(userID string) (model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, i, ok := s.findWaitingLocked(userID); ok {
		return s.waiting[m][i].Ticket, nil
	}
	if _, t, ok := s.pileOfLocked(userID); ok {
		return t, nil
	}
	return model.Ticket{}, fmt.Errorf("%w: no ticket for user %s", ErrNotFound, userID)
}

// WaitingCount returns how many requests of the same mode are ahead of the
// user in the waiting area. A user already on a pile has none ahead.
func (s *Station) WaitingCount(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, i, ok := s.findWaitingLocked(userID); ok {
		return i, nil
	}
	if _, _, ok := s.pileOfLocked(userID); ok {
		return 0, nil
	}
	return 0, fmt.Errorf("%w: no ticket for user %s", ErrNotFound, userID)
}

// Bills lists the user's bills from the gateway.
func (s *Station) Bills(ctx context.Context, userID string) ([]model.Bill, error) {
	if s.bills == nil {
		return nil, nil
	}
	return s.bills.UserBills(ctx, userID)
}

// WaitingCar describes a request in the waiting area.
type WaitingCar struct {
	UserID          string       `json:"user_id"`
	Ticket          model.Ticket `json:"queue_number"`
	Amount          float64      `json:"request_amount"`
	BatteryCapacity float64      `json:"battery_capacity"`
	Waited          float64      `json:"waited_seconds"`
}

// WaitingAreaInfo is a snapshot of both waiting areas.
type WaitingAreaInfo struct {
	Capacity int                         `json:"capacity"`
	Total    int                         `json:"total"`
	Paused   bool                        `json:"paused"`
	Modes    map[model.Mode][]WaitingCar `json:"modes"`
}

// WaitingArea returns the waiting area contents in queue order.
func (s *Station) WaitingArea() WaitingAreaInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	info := WaitingAreaInfo{
		Capacity: s.cfg.WaitingAreaSize,
		Total:    s.waitingTotalLocked(),
		Paused:   s.paused,
		Modes:    make(map[model.Mode][]WaitingCar, len(model.Modes)),
	}
	for _, m := range model.Modes {
		cars := make([]WaitingCar, 0, len(s.waiting[m]))
		for _, e := range s.waiting[m] {
			cars = append(cars, WaitingCar{
				UserID:          e.UserID,
				Ticket:          e.Ticket,
				Amount:          e.Request.Amount,
				BatteryCapacity: e.Request.BatteryCapacity,
				Waited:          now.Sub(e.QueuedAt).Seconds(),
			})
		}
		info.Modes[m] = cars
	}
	return info
}

// PileStatus returns the info of one pile, or of every pile when id is empty.
func (s *Station) PileStatus(id string) ([]PileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		p, ok := s.piles[id]
		if !ok {
			return nil, fmt.Errorf("%w: pile %s", ErrNotFound, id)
		}
		return []PileInfo{p.Info()}, nil
	}
	out := make([]PileInfo, 0, len(s.order))
	for _, pid := range s.order {
		out = append(out, s.piles[pid].Info())
	}
	return out, nil
}

// QueueCars returns the vehicles on one pile, or on every pile when id is
// empty, keyed by pile id.
func (s *Station) QueueCars(id string) (map[string][]QueueCar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]QueueCar)
	if id != "" {
		p, ok := s.piles[id]
		if !ok {
			return nil, fmt.Errorf("%w: pile %s", ErrNotFound, id)
		}
		out[id] = p.QueueCars()
		return out, nil
	}
	for _, pid := range s.order {
		out[pid] = s.piles[pid].QueueCars()
	}
	return out, nil
}

// bestPileLocked picks the eligible pile of mode minimising the estimated
// completion time of amount. exclude names a pile to skip. Ties go to the
// first pile in id order.
func (s *Station) bestPileLocked(mode model.Mode, amount float64, exclude string) *Pile {
	var best *Pile
	bestCost := 0.0
	for _, id := range s.order {
		p := s.piles[id]
		if id == exclude || p.Mode() != mode || !p.Eligible() {
			continue
		}
		cost := p.EstimateWaitingTime() + p.EstimateChargingTime(amount)
		if best == nil || cost < bestCost {
			best, bestCost = p, cost
		}
	}
	return best
}

// placeLocked pushes e onto p and records the dispatch event.
func (s *Station) placeLocked(p *Pile, e model.QueueEntry, src events.Source, fx *effects) error {
	before := p.Status()
	ok, started := p.AddToQueue(e)
	if !ok {
		return fmt.Errorf("%w: pile %s queue is full", ErrCapacityExceeded, p.ID())
	}
	fx.emit(events.RequestDispatched{UserID: e.UserID, Ticket: e.Ticket, PileID: p.ID(), Source: src, Started: started, At: s.clock.Now()})
	s.statusChangeLocked(p, before, fx)
	return nil
}

func (s *Station) statusChangeLocked(p *Pile, before model.PileStatus, fx *effects) {
	if after := p.Status(); after != before {
		fx.emit(events.PileStatusChanged{PileID: p.ID(), Mode: p.Mode(), From: before, To: after, At: s.clock.Now()})
	}
}

// requeueFrontLocked puts entries back at the head of their mode's waiting
// list keeping their relative order.
func (s *Station) requeueFrontLocked(mode model.Mode, entries []model.QueueEntry) {
	if len(entries) == 0 {
		return
	}
	q := make([]model.QueueEntry, 0, len(entries)+len(s.waiting[mode]))
	q = append(q, entries...)
	s.waiting[mode] = append(q, s.waiting[mode]...)
}

func sortByTicket(entries []model.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Ticket.Seq < entries[j].Ticket.Seq })
}

func (s *Station) refreshGaugesLocked() {
	for _, m := range model.Modes {
		waitingRequests.WithLabelValues(m.Name()).Set(float64(len(s.waiting[m])))
	}
	for _, id := range s.order {
		p := s.piles[id]
		pileStatus.WithLabelValues(id).Set(float64(p.Status()))
		pileQueueLength.WithLabelValues(id).Set(float64(len(p.queue)))
	}
}

// GenerateReport summarises the bills starting in [start, end] per pile.
func (s *Station) GenerateReport(ctx context.Context, start, end time.Time, period string) ([]report.Row, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: report window ends before it starts", ErrInvalidState)
	}
	if s.bills == nil {
		return []report.Row{}, nil
	}
	bills, err := s.bills.BillsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load bills: %w", err)
	}
	return report.Generate(bills, start, end, period), nil
}

// Now returns the station clock's time.
func (s *Station) Now() time.Time { return s.clock.Now() }
