package station

import (
	"context"
	"fmt"
	"sort"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/model"
)

// Assignment is one request placed by a batch run.
type Assignment struct {
	UserID  string       `json:"user_id"`
	Ticket  model.Ticket `json:"queue_number"`
	PileID  string       `json:"pile_id"`
	Started bool         `json:"started"`
}

// BatchResult lists the assignments of a successful batch run in commit order.
type BatchResult struct {
	Assignments []Assignment `json:"assignments"`
}

type slot struct {
	pile  *Pile
	space int
	load  float64
}

type planned struct {
	entry model.QueueEntry
	slot  *slot
}

// spareSlotsLocked lists in-service piles with room, sorted by ascending live
// waiting estimate. An empty mode selects every mode.
func (s *Station) spareSlotsLocked(mode model.Mode) ([]*slot, int) {
	var slots []*slot
	total := 0
	for _, id := range s.order {
		p := s.piles[id]
		if !p.InService() || (mode != "" && p.Mode() != mode) {
			continue
		}
		if n := p.SpareSlots(); n > 0 {
			slots = append(slots, &slot{pile: p, space: n, load: p.EstimateWaitingTime()})
			total += n
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].load < slots[j].load })
	return slots, total
}

// plan assigns the requests, largest first, to the same-mode slot with the
// lowest cost. The running load of the chosen slot grows by the request's
// charging time. It fails when any request finds no slot.
func plan(reqs []model.QueueEntry, slots []*slot, cost func(*slot, model.QueueEntry) float64) ([]planned, bool) {
	sorted := append([]model.QueueEntry(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Request.Amount > sorted[j].Request.Amount })

	out := make([]planned, 0, len(sorted))
	for _, e := range sorted {
		var best *slot
		bestCost := 0.0
		for _, sl := range slots {
			if sl.space == 0 || sl.pile.Mode() != e.Request.Mode {
				continue
			}
			c := cost(sl, e)
			if best == nil || c < bestCost {
				best, bestCost = sl, c
			}
		}
		if best == nil {
			return nil, false
		}
		best.space--
		best.load += best.pile.EstimateChargingTime(e.Request.Amount)
		out = append(out, planned{entry: e, slot: best})
	}
	return out, true
}

func byLoad(sl *slot, _ model.QueueEntry) float64 { return sl.load }

func byCompletion(sl *slot, e model.QueueEntry) float64 {
	return sl.load + sl.pile.EstimateChargingTime(e.Request.Amount)
}

// BatchScheduleMode takes as many head requests of mode as there are free
// places on its in-service piles and spreads them greedily. Either every
// taken request is placed or the waiting area is left untouched.
func (s *Station) BatchScheduleMode(ctx context.Context, mode model.Mode) (BatchResult, error) {
	if !mode.Valid() {
		return BatchResult{}, fmt.Errorf("%w: invalid mode %q", ErrInvalidState, mode)
	}
	var (
		fx  effects
		res BatchResult
		err error
	)
	s.withLock(func() { res, err = s.batchModeLocked(mode, &fx) })
	if err != nil {
		return BatchResult{}, err
	}
	s.flush(ctx, &fx)
	return res, nil
}

func (s *Station) batchModeLocked(mode model.Mode, fx *effects) (BatchResult, error) {
	slots, spare := s.spareSlotsLocked(mode)
	if spare == 0 {
		return BatchResult{}, fmt.Errorf("%w: no free place on %s piles", ErrCapacityExceeded, mode.Name())
	}
	n := min(spare, len(s.waiting[mode]))
	if n == 0 {
		return BatchResult{}, fmt.Errorf("%w: %s waiting area is empty", ErrNoWork, mode.Name())
	}
	taken := s.waiting[mode][:n]
	steps, ok := plan(taken, slots, byLoad)
	if !ok {
		return BatchResult{}, fmt.Errorf("%w: no complete assignment for %d requests", ErrInvalidState, n)
	}
	s.waiting[mode] = append([]model.QueueEntry(nil), s.waiting[mode][n:]...)
	res := s.commitLocked(steps, fx)
	s.refreshGaugesLocked()
	return res, nil
}

// BatchScheduleAll pools both modes. It only runs when the waiting area holds
// at least as many requests as the station has free places; each mode then
// contributes up to its own free places and every request goes to the
// same-mode pile minimising its load plus charging time.
func (s *Station) BatchScheduleAll(ctx context.Context) (BatchResult, error) {
	var (
		fx  effects
		res BatchResult
		err error
	)
	s.withLock(func() { res, err = s.batchAllLocked(&fx) })
	if err != nil {
		return BatchResult{}, err
	}
	s.flush(ctx, &fx)
	return res, nil
}

func (s *Station) batchAllLocked(fx *effects) (BatchResult, error) {
	slots, spare := s.spareSlotsLocked("")
	waiting := s.waitingTotalLocked()
	if spare == 0 {
		return BatchResult{}, fmt.Errorf("%w: no free place on any pile", ErrCapacityExceeded)
	}
	if waiting < spare {
		return BatchResult{}, fmt.Errorf("%w: %d waiting for %d free places", ErrNoWork, waiting, spare)
	}
	perMode := make(map[model.Mode]int, len(model.Modes))
	for _, sl := range slots {
		perMode[sl.pile.Mode()] += sl.space
	}
	var taken []model.QueueEntry
	for _, m := range model.Modes {
		taken = append(taken, s.waiting[m][:min(perMode[m], len(s.waiting[m]))]...)
	}
	if len(taken) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no request matches a free pile", ErrNoWork)
	}
	steps, ok := plan(taken, slots, byCompletion)
	if !ok {
		return BatchResult{}, fmt.Errorf("%w: no complete assignment for %d requests", ErrInvalidState, len(taken))
	}
	for _, m := range model.Modes {
		k := min(perMode[m], len(s.waiting[m]))
		s.waiting[m] = append([]model.QueueEntry(nil), s.waiting[m][k:]...)
	}
	res := s.commitLocked(steps, fx)
	s.refreshGaugesLocked()
	return res, nil
}

func (s *Station) commitLocked(steps []planned, fx *effects) BatchResult {
	res := BatchResult{Assignments: make([]Assignment, 0, len(steps))}
	for _, st := range steps {
		p := st.slot.pile
		if err := s.placeLocked(p, st.entry, events.SourceBatch, fx); err != nil {
			s.log.Errorf("batch commit %s: %v", st.entry.Ticket, err)
			s.requeueFrontLocked(st.entry.Request.Mode, []model.QueueEntry{st.entry})
			continue
		}
		started := false
		if sess, ok := p.Session(); ok {
			started = sess.Ticket == st.entry.Ticket
		}
		res.Assignments = append(res.Assignments, Assignment{
			UserID:  st.entry.UserID,
			Ticket:  st.entry.Ticket,
			PileID:  p.ID(),
			Started: started,
		})
	}
	return res
}
