// Package gateway declares the persistence contract of the station: user
// accounts and issued bills. Implementations live under infra/store.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/evstation/core/model"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnavailable        = errors.New("persistence unavailable")
)

// UserStore persists accounts.
type UserStore interface {
	// CreateUser stores u and returns it with ID and CreatedAt filled in when
	// they were empty. Returns ErrUserExists on a duplicate username.
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	UserByName(ctx context.Context, username string) (model.User, error)
}

// BillStore persists bills.
type BillStore interface {
	SaveBill(ctx context.Context, b model.Bill) error
	UserBills(ctx context.Context, userID string) ([]model.Bill, error)
	AllBills(ctx context.Context) ([]model.Bill, error)
	// BillsBetween returns bills whose start time lies in [start, end].
	BillsBetween(ctx context.Context, start, end time.Time) ([]model.Bill, error)
}

// Gateway is the full persistence surface consumed by the station.
type Gateway interface {
	UserStore
	BillStore
	Close() error
}
