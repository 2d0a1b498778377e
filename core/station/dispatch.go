package station

import (
	"context"
	"time"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/model"
	"github.com/kilianp07/evstation/core/monitoring"
)

// Tick runs one dispatch pass and returns the number of requests placed on
// piles. For each mode it pops the waiting head and places it on the best
// eligible pile; when none is eligible the head goes back to the front and
// the mode is done for this pass. A matched request leaves the waiting area
// in the same critical section, so repeated passes never double assign.
func (s *Station) Tick(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { tickDuration.Observe(time.Since(start).Seconds()) }()

	var (
		fx  effects
		n   int
		err error
	)
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.paused {
			return
		}
		n, err = s.dispatchLocked(&fx)
		s.refreshGaugesLocked()
	}()

	s.flush(ctx, &fx)
	return n, err
}

func (s *Station) dispatchLocked(fx *effects) (int, error) {
	placed := 0
	for _, mode := range model.Modes {
		for len(s.waiting[mode]) > 0 {
			head := s.waiting[mode][0]
			s.waiting[mode] = s.waiting[mode][1:]
			p := s.bestPileLocked(mode, head.Request.Amount, "")
			if p == nil {
				s.requeueFrontLocked(mode, []model.QueueEntry{head})
				break
			}
			if err := s.placeLocked(p, head, events.SourceTick, fx); err != nil {
				s.requeueFrontLocked(mode, []model.QueueEntry{head})
				return placed, err
			}
			placed++
		}
	}
	return placed, nil
}

// Run executes the dispatch tick every configured interval until ctx is
// cancelled. A failing or panicking tick is logged, reported and followed by
// the error backoff; the loop itself never stops on its own.
func (s *Station) Run(ctx context.Context) {
	interval := s.cfg.DispatchInterval()
	if interval <= 0 {
		interval = time.Second
	}
	backoff := s.cfg.ErrorBackoff()
	timer := time.NewTimer(interval)
	defer timer.Stop()
	s.log.Infof("dispatch loop started, interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Infof("dispatch loop stopped")
			return
		case <-timer.C:
		}
		wait := interval
		if err := s.safeTick(ctx); err != nil {
			tickErrors.Inc()
			s.log.Errorf("dispatch tick: %v", err)
			monitoring.CaptureException(err, map[string]string{"op": "dispatch_tick"})
			wait = backoff
		}
		timer.Reset(wait)
	}
}

func (s *Station) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = monitoring.CapturePanic(r, map[string]string{"op": "dispatch_tick"})
		}
	}()
	_, err = s.Tick(ctx)
	return err
}
