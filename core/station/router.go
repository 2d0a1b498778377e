package station

import (
	"context"
	"fmt"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/logger"
	"github.com/kilianp07/evstation/core/model"
)

// Reroute summarises a fault or recovery pass.
type Reroute struct {
	Type        events.RerouteKind `json:"type"`
	Rescheduled int                `json:"rescheduled"`
	Requeued    int                `json:"requeued"`
}

// StatusChange is the outcome of SetPileStatus.
type StatusChange struct {
	Pile    PileInfo    `json:"pile"`
	Bill    *model.Bill `json:"bill,omitempty"`
	Reroute *Reroute    `json:"reroute,omitempty"`
}

// SetPileStatus applies an operator status change. Fault and Off finalise the
// active session and redistribute the local queue; coming back to Available
// rebalances queued work of the same mode.
func (s *Station) SetPileStatus(ctx context.Context, pileID string, to model.PileStatus) (StatusChange, error) {
	if to == model.StatusCharging {
		return StatusChange{}, fmt.Errorf("%w: charging is not an operator status", ErrInvalidState)
	}
	var (
		fx  effects
		out StatusChange
		err error
	)
	s.withLock(func() { out, err = s.setPileStatusLocked(pileID, to, &fx) })
	if err != nil {
		return StatusChange{}, err
	}

	s.flush(ctx, &fx)
	if out.Reroute != nil {
		s.log.Warnw("pile rerouted", logger.Fields{
			"pile":        pileID,
			"type":        string(out.Reroute.Type),
			"rescheduled": out.Reroute.Rescheduled,
			"requeued":    out.Reroute.Requeued,
		})
	}
	return out, nil
}

func (s *Station) setPileStatusLocked(pileID string, to model.PileStatus, fx *effects) (StatusChange, error) {
	p, ok := s.piles[pileID]
	if !ok {
		return StatusChange{}, fmt.Errorf("%w: pile %s", ErrNotFound, pileID)
	}
	from := p.Status()
	var out StatusChange
	switch {
	case to == model.StatusFault || to == model.StatusOff:
		out.Bill = p.SetStatus(to)
		fx.bill(out.Bill, p.Mode())
		s.statusChangeLocked(p, from, fx)
		if from == model.StatusFault || from == model.StatusOff {
			break
		}
		r := s.handleFaultLocked(p, fx)
		out.Reroute = &r
	case to == model.StatusAvailable && (from == model.StatusFault || from == model.StatusOff):
		p.SetStatus(to)
		s.statusChangeLocked(p, from, fx)
		if p.IsEmpty() {
			if r, ran := s.handleRecoveryLocked(p, fx); ran {
				out.Reroute = &r
			}
		}
	}
	out.Pile = p.Info()
	s.refreshGaugesLocked()
	return out, nil
}

// handleFaultLocked moves the faulted pile's local queue, in FIFO order, to
// the best other pile of the same mode. Entries with no eligible pile go back
// to the front of the waiting area ahead of newer arrivals.
func (s *Station) handleFaultLocked(p *Pile, fx *effects) Reroute {
	s.paused = true
	defer func() { s.paused = false }()

	r := Reroute{Type: events.RerouteFault}
	displaced := p.takeQueue()
	var requeue []model.QueueEntry
	for _, e := range displaced {
		if s.rerouteLocked(e, p.ID(), events.SourceFault, fx) {
			r.Rescheduled++
			continue
		}
		requeue = append(requeue, e)
	}
	s.requeueFrontLocked(p.Mode(), requeue)
	r.Requeued = len(requeue)
	s.finishRerouteLocked(p, r, fx)
	return r
}

// handleRecoveryLocked rebalances every locally queued entry of the
// recovered pile's mode by ascending ticket number when another pile of that
// mode has a queue. It reports whether a rebalance ran.
func (s *Station) handleRecoveryLocked(p *Pile, fx *effects) (Reroute, bool) {
	busy := false
	for _, id := range s.order {
		o := s.piles[id]
		if id != p.ID() && o.Mode() == p.Mode() && len(o.queue) > 0 {
			busy = true
			break
		}
	}
	if !busy {
		return Reroute{}, false
	}

	s.paused = true
	defer func() { s.paused = false }()

	var pending []model.QueueEntry
	for _, id := range s.order {
		if o := s.piles[id]; o.Mode() == p.Mode() {
			pending = append(pending, o.takeQueue()...)
		}
	}
	sortByTicket(pending)

	r := Reroute{Type: events.RerouteRecovery}
	var requeue []model.QueueEntry
	for _, e := range pending {
		if s.rerouteLocked(e, "", events.SourceRecovery, fx) {
			r.Rescheduled++
			continue
		}
		requeue = append(requeue, e)
	}
	s.requeueFrontLocked(p.Mode(), requeue)
	r.Requeued = len(requeue)
	s.finishRerouteLocked(p, r, fx)
	return r, true
}

func (s *Station) rerouteLocked(e model.QueueEntry, exclude string, src events.Source, fx *effects) bool {
	target := s.bestPileLocked(e.Request.Mode, e.Request.Amount, exclude)
	if target == nil {
		return false
	}
	return s.placeLocked(target, e, src, fx) == nil
}

func (s *Station) finishRerouteLocked(p *Pile, r Reroute, fx *effects) {
	rerouteTotal.WithLabelValues(string(r.Type), "rescheduled").Add(float64(r.Rescheduled))
	rerouteTotal.WithLabelValues(string(r.Type), "requeued").Add(float64(r.Requeued))
	fx.emit(events.RerouteCompleted{
		PileID:      p.ID(),
		Mode:        p.Mode(),
		Type:        r.Type,
		Rescheduled: r.Rescheduled,
		Requeued:    r.Requeued,
		At:          s.clock.Now(),
	})
}

// Paused reports whether a reroute pass is holding back dispatch.
func (s *Station) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
