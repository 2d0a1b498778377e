// Package breaker guards a gateway.Gateway with a circuit breaker so a dead
// database fails fast instead of stalling every request.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kilianp07/evstation/core/gateway"
	"github.com/kilianp07/evstation/core/logger"
	"github.com/kilianp07/evstation/core/model"
)

// Settings configures the breaker.
type Settings struct {
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
}

func (s *Settings) setDefaults() {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
}

// Store decorates a gateway.
type Store struct {
	next gateway.Gateway
	cb   *gobreaker.CircuitBreaker
}

// Wrap returns next guarded by a breaker named name.
func Wrap(name string, next gateway.Gateway, s Settings, log logger.Logger) *Store {
	s.setDefaults()
	log = logger.OrNop(log)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Timeout:     s.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("gateway breaker state changed", logger.Fields{"breaker": name, "from": from.String(), "to": to.String()})
		},
	})
	return &Store{next: next, cb: cb}
}

// isSuccessful keeps domain answers from tripping the breaker.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, gateway.ErrNotFound) ||
		errors.Is(err, gateway.ErrUserExists) ||
		errors.Is(err, gateway.ErrInvalidCredentials) ||
		errors.Is(err, context.Canceled)
}

// State returns the breaker state name.
func (s *Store) State() string { return s.cb.State().String() }

func run[T any](s *Store, fn func() (T, error)) (T, error) {
	v, err := s.cb.Execute(func() (any, error) { return fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	return run(s, func() (model.User, error) { return s.next.CreateUser(ctx, u) })
}

func (s *Store) UserByID(ctx context.Context, id string) (model.User, error) {
	return run(s, func() (model.User, error) { return s.next.UserByID(ctx, id) })
}

func (s *Store) UserByName(ctx context.Context, name string) (model.User, error) {
	return run(s, func() (model.User, error) { return s.next.UserByName(ctx, name) })
}

func (s *Store) SaveBill(ctx context.Context, b model.Bill) error {
	_, err := run(s, func() (struct{}, error) { return struct{}{}, s.next.SaveBill(ctx, b) })
	return err
}

func (s *Store) UserBills(ctx context.Context, userID string) ([]model.Bill, error) {
	return run(s, func() ([]model.Bill, error) { return s.next.UserBills(ctx, userID) })
}

func (s *Store) AllBills(ctx context.Context) ([]model.Bill, error) {
	return run(s, func() ([]model.Bill, error) { return s.next.AllBills(ctx) })
}

func (s *Store) BillsBetween(ctx context.Context, start, end time.Time) ([]model.Bill, error) {
	return run(s, func() ([]model.Bill, error) { return s.next.BillsBetween(ctx, start, end) })
}

// Close closes the wrapped gateway.
func (s *Store) Close() error { return s.next.Close() }

var _ gateway.Gateway = (*Store)(nil)
