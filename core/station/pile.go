package station

import (
	"math"
	"time"

	"github.com/kilianp07/evstation/core/clock"
	"github.com/kilianp07/evstation/core/model"
	"github.com/kilianp07/evstation/core/tariff"
)

// Pile is the state machine of one charger. It holds at most one session and
// a bounded FIFO of requests waiting for the slot.
//
// Pile is not safe for concurrent use; the owning Station serialises access.
type Pile struct {
	id     string
	mode   model.Mode
	power  float64
	status model.PileStatus

	session  *model.Session
	queue    []model.QueueEntry
	queueCap int

	sessions    int
	totalEnergy float64
	totalHours  float64

	clock   clock.Clock
	billing *tariff.Calculator
}

// NewPile builds an idle Available pile. chargingQueueLen counts the active
// slot, so the local queue holds chargingQueueLen-1 entries.
func NewPile(id string, mode model.Mode, power float64, chargingQueueLen int, clk clock.Clock, billing *tariff.Calculator) *Pile {
	if clk == nil {
		clk = clock.Real{}
	}
	if billing == nil {
		billing = &tariff.Calculator{Prices: tariff.DefaultPrices(), Clock: clk}
	}
	return &Pile{
		id:       id,
		mode:     mode,
		power:    power,
		status:   model.StatusAvailable,
		queueCap: chargingQueueLen - 1,
		clock:    clk,
		billing:  billing,
	}
}

func (p *Pile) ID() string               { return p.id }
func (p *Pile) Mode() model.Mode         { return p.mode }
func (p *Pile) Power() float64           { return p.power }
func (p *Pile) Status() model.PileStatus { return p.status }

// Session returns a copy of the active session, if any.
func (p *Pile) Session() (model.Session, bool) {
	if p.session == nil {
		return model.Session{}, false
	}
	return *p.session, true
}

// Queue returns a copy of the local queue.
func (p *Pile) Queue() []model.QueueEntry {
	return append([]model.QueueEntry(nil), p.queue...)
}

// IsQueueFull reports whether the local queue reached its bound.
func (p *Pile) IsQueueFull() bool { return len(p.queue) >= p.queueCap }

// IsEmpty reports whether the pile has neither a session nor queued entries.
func (p *Pile) IsEmpty() bool { return p.session == nil && len(p.queue) == 0 }

// InService reports whether the pile can accept work, i.e. it is neither
// faulted nor switched off.
func (p *Pile) InService() bool {
	return p.status == model.StatusAvailable || p.status == model.StatusCharging
}

// Eligible reports whether dispatch may place a request on the pile: it is in
// service and either idle or its local queue has room.
func (p *Pile) Eligible() bool {
	return p.InService() && (p.IsEmpty() || !p.IsQueueFull())
}

// SpareSlots counts the places left including the charging slot.
func (p *Pile) SpareSlots() int {
	n := p.queueCap + 1 - len(p.queue)
	if p.session != nil {
		n--
	}
	if n < 0 {
		return 0
	}
	return n
}

// AddToQueue places the entry on the pile. An idle in-service pile starts the
// session at once, otherwise the entry joins the local queue. It returns
// false when the queue is full. started tells whether a session began.
func (p *Pile) AddToQueue(e model.QueueEntry) (ok, started bool) {
	if p.IsEmpty() && p.InService() {
		p.start(e)
		return true, true
	}
	if p.IsQueueFull() {
		return false, false
	}
	p.queue = append(p.queue, e)
	return true, false
}

// RemoveFromQueue drops the user's ticket from the pile. An active session is
// finalised and its bill returned. found is false when the ticket is not on
// this pile.
func (p *Pile) RemoveFromQueue(userID string, t model.Ticket) (bill *model.Bill, found bool) {
	if p.session != nil && p.session.UserID == userID && p.session.Ticket == t {
		return p.FinishCharging(), true
	}
	for i, e := range p.queue {
		if e.UserID == userID && e.Ticket == t {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return nil, true
		}
	}
	return nil, false
}

// FinishCharging finalises the active session and bills it, then moves the
// next queued entry into the slot. It returns nil when the pile is idle.
func (p *Pile) FinishCharging() *model.Bill {
	return p.finish(true)
}

func (p *Pile) finish(advance bool) *model.Bill {
	if p.session == nil {
		return nil
	}
	s := *p.session
	p.session = nil

	now := p.clock.Now()
	elapsed := now.Sub(s.StartedAt).Hours()
	if elapsed < 0 {
		elapsed = 0
	}
	energy := math.Min(s.Request.Amount, elapsed*p.power)
	hours := energy / p.power

	p.sessions++
	p.totalEnergy += energy
	p.totalHours += hours

	end := s.StartedAt.Add(time.Duration(math.Round(hours * float64(time.Hour))))
	bill := p.billing.ComputeBill(s.UserID, p.id, s.Ticket, s.StartedAt, end, energy, hours)

	if p.status == model.StatusCharging {
		p.status = model.StatusAvailable
	}
	if advance {
		p.startNext()
	}
	return &bill
}

// startNext pops the queue head into the slot when the pile is idle and in
// service.
func (p *Pile) startNext() bool {
	if p.session != nil || len(p.queue) == 0 || !p.InService() {
		return false
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	p.start(next)
	return true
}

func (p *Pile) start(e model.QueueEntry) {
	p.session = &model.Session{QueueEntry: e, StartedAt: p.clock.Now()}
	p.status = model.StatusCharging
}

// SetStatus applies an operator transition. Entering Fault or Off finalises an
// active session first and leaves the local queue untouched for the caller to
// redistribute. Returning to Available from Fault or Off starts the queue head
// when the pile is idle. The partial bill, if any, is returned.
func (p *Pile) SetStatus(to model.PileStatus) *model.Bill {
	from := p.status
	if from == to {
		return nil
	}
	switch to {
	case model.StatusFault, model.StatusOff:
		bill := p.finish(false)
		p.status = to
		return bill
	case model.StatusAvailable:
		if from == model.StatusCharging {
			return nil
		}
		p.status = model.StatusAvailable
		p.startNext()
	case model.StatusCharging:
		if p.session != nil {
			p.status = model.StatusCharging
		}
	}
	return nil
}

// takeQueue empties the local queue and returns its entries in FIFO order.
func (p *Pile) takeQueue() []model.QueueEntry {
	q := p.queue
	p.queue = nil
	return q
}

// EstimateChargingTime returns the hours needed to deliver amount kWh.
func (p *Pile) EstimateChargingTime(amount float64) float64 {
	return amount / p.power
}

// EstimateWaitingTime returns the hours until the pile drains its current
// work at rated power. It is a comparative load metric only.
func (p *Pile) EstimateWaitingTime() float64 {
	var wait float64
	if p.session != nil {
		total := p.session.Request.Amount / p.power
		elapsed := p.clock.Now().Sub(p.session.StartedAt).Hours()
		wait += math.Max(total-elapsed, 0)
	}
	for _, e := range p.queue {
		wait += e.Request.Amount / p.power
	}
	return wait
}

// holds reports whether the user's ticket sits on this pile.
func (p *Pile) holds(userID string) (model.Ticket, bool) {
	if p.session != nil && p.session.UserID == userID {
		return p.session.Ticket, true
	}
	for _, e := range p.queue {
		if e.UserID == userID {
			return e.Ticket, true
		}
	}
	return model.Ticket{}, false
}

// PileInfo is a read-only view of a pile.
type PileInfo struct {
	ID             string           `json:"pile_id"`
	Mode           model.Mode       `json:"mode"`
	Power          float64          `json:"power"`
	Status         model.PileStatus `json:"status"`
	TotalSessions  int              `json:"total_charging_times"`
	TotalDuration  float64          `json:"total_charging_duration"`
	TotalEnergy    float64          `json:"total_charging_amount"`
	QueueLength    int              `json:"queue_length"`
	ChargingTicket *model.Ticket    `json:"charging_vehicle,omitempty"`
	WaitEstimate   float64          `json:"waiting_estimate_hours"`
}

// Info returns the pile's status and cumulative statistics.
func (p *Pile) Info() PileInfo {
	info := PileInfo{
		ID:            p.id,
		Mode:          p.mode,
		Power:         p.power,
		Status:        p.status,
		TotalSessions: p.sessions,
		TotalDuration: p.totalHours,
		TotalEnergy:   p.totalEnergy,
		QueueLength:   len(p.queue),
		WaitEstimate:  p.EstimateWaitingTime(),
	}
	if p.session != nil {
		t := p.session.Ticket
		info.ChargingTicket = &t
		info.QueueLength++
	}
	return info
}

// Car states reported by QueueCars.
const (
	CarCharging      = "charging"
	CarQueuingAtPile = "queuing_at_pile"
)

// QueueCar describes a vehicle on a pile.
type QueueCar struct {
	UserID          string        `json:"user_id"`
	Ticket          model.Ticket  `json:"queue_number"`
	BatteryCapacity float64       `json:"battery_capacity"`
	RequestAmount   float64       `json:"request_amount"`
	QueueTime       time.Duration `json:"queue_time"`
	Status          string        `json:"status"`
}

// QueueCars lists the charging vehicle first, then the local queue.
func (p *Pile) QueueCars() []QueueCar {
	now := p.clock.Now()
	cars := make([]QueueCar, 0, len(p.queue)+1)
	if s := p.session; s != nil {
		cars = append(cars, QueueCar{
			UserID:          s.UserID,
			Ticket:          s.Ticket,
			BatteryCapacity: s.Request.BatteryCapacity,
			RequestAmount:   s.Request.Amount,
			QueueTime:       now.Sub(s.StartedAt),
			Status:          CarCharging,
		})
	}
	for _, e := range p.queue {
		cars = append(cars, QueueCar{
			UserID:          e.UserID,
			Ticket:          e.Ticket,
			BatteryCapacity: e.Request.BatteryCapacity,
			RequestAmount:   e.Request.Amount,
			QueueTime:       now.Sub(e.QueuedAt),
			Status:          CarQueuingAtPile,
		})
	}
	return cars
}
