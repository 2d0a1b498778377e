// Package memory keeps users and bills in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/evstation/core/gateway"
	"github.com/kilianp07/evstation/core/model"
)

// Store is an in-memory gateway.Gateway. Bills are returned in insertion
// order.
type Store struct {
	mu     sync.RWMutex
	users  map[string]model.User
	byName map[string]string
	bills  []model.Bill
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:  make(map[string]model.User),
		byName: make(map[string]string),
	}
}

func (s *Store) CreateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[u.Username]; ok {
		return model.User{}, fmt.Errorf("%w: %s", gateway.ErrUserExists, u.Username)
	}
	if _, ok := s.users[u.ID]; ok {
		return model.User{}, fmt.Errorf("%w: id %s", gateway.ErrUserExists, u.ID)
	}
	s.users[u.ID] = u
	s.byName[u.Username] = u.ID
	return u, nil
}

func (s *Store) UserByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("%w: user %s", gateway.ErrNotFound, id)
	}
	return u, nil
}

func (s *Store) UserByName(_ context.Context, name string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return model.User{}, fmt.Errorf("%w: user %s", gateway.ErrNotFound, name)
	}
	return s.users[id], nil
}

func (s *Store) SaveBill(_ context.Context, b model.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bills = append(s.bills, b)
	return nil
}

func (s *Store) UserBills(_ context.Context, userID string) ([]model.Bill, error) {
	return s.filter(func(b model.Bill) bool { return b.UserID == userID }), nil
}

func (s *Store) AllBills(context.Context) ([]model.Bill, error) {
	return s.filter(func(model.Bill) bool { return true }), nil
}

func (s *Store) BillsBetween(_ context.Context, start, end time.Time) ([]model.Bill, error) {
	return s.filter(func(b model.Bill) bool {
		return !b.StartTime.Before(start) && !b.StartTime.After(end)
	}), nil
}

func (s *Store) filter(keep func(model.Bill) bool) []model.Bill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Bill, 0)
	for _, b := range s.bills {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var _ gateway.Gateway = (*Store)(nil)
