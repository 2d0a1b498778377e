// Package account registers station users and checks their credentials.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kilianp07/evstation/core/clock"
	"github.com/kilianp07/evstation/core/gateway"
	"github.com/kilianp07/evstation/core/logger"
	"github.com/kilianp07/evstation/core/model"
)

// ErrInvalidInput reports a registration request that fails validation.
var ErrInvalidInput = errors.New("invalid account input")

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// RegisterInput carries the fields of a new user account.
type RegisterInput struct {
	Username        string  `json:"username"`
	Password        string  `json:"password"`
	Phone           string  `json:"phone"`
	CarID           string  `json:"car_id"`
	BatteryCapacity float64 `json:"battery_capacity"`
}

// AdminAccount is an administrator created at startup.
type AdminAccount struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 6
)

// Service implements user registration and login on top of a UserStore.
type Service struct {
	users  gateway.UserStore
	hasher Hasher
	clock  clock.Clock
	log    logger.Logger
}

// NewService returns an account service. clk and log may be nil.
func NewService(users gateway.UserStore, hasher Hasher, clk clock.Clock, log logger.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{users: users, hasher: hasher, clock: clk, log: logger.OrNop(log)}
}

func (in RegisterInput) validate() error {
	name := strings.TrimSpace(in.Username)
	switch {
	case len(name) < minUsernameLen || len(name) > maxUsernameLen:
		return fmt.Errorf("%w: username must be %d to %d characters", ErrInvalidInput, minUsernameLen, maxUsernameLen)
	case strings.ContainsAny(name, " \t\n"):
		return fmt.Errorf("%w: username must not contain spaces", ErrInvalidInput)
	case len(in.Password) < minPasswordLen:
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	case in.BatteryCapacity < 0:
		return fmt.Errorf("%w: battery capacity must not be negative", ErrInvalidInput)
	}
	return nil
}

// Register creates a user account with the default user role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	if err := in.validate(); err != nil {
		return model.User{}, err
	}
	return s.create(ctx, strings.TrimSpace(in.Username), in.Password, model.RoleUser, in)
}

func (s *Service) create(ctx context.Context, username, password string, role model.Role, in RegisterInput) (model.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		ID:              uuid.NewString(),
		Username:        username,
		PasswordHash:    hash,
		Role:            role,
		Phone:           in.Phone,
		CarID:           in.CarID,
		BatteryCapacity: in.BatteryCapacity,
		CreatedAt:       s.clock.Now(),
	}
	created, err := s.users.CreateUser(ctx, u)
	if err != nil {
		return model.User{}, fmt.Errorf("create user %s: %w", username, err)
	}
	s.log.Infof("account %s registered with role %s", username, role)
	return created, nil
}

// Login returns the user whose credentials match. Unknown users and wrong
// passwords both yield gateway.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (model.User, error) {
	u, err := s.users.UserByName(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.User{}, gateway.ErrInvalidCredentials
		}
		return model.User{}, fmt.Errorf("lookup %s: %w", username, err)
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return model.User{}, gateway.ErrInvalidCredentials
	}
	return u, nil
}

// SeedAdmins creates the administrator accounts that do not exist yet.
// Running it again is a no-op.
func (s *Service) SeedAdmins(ctx context.Context, admins []AdminAccount) error {
	for _, a := range admins {
		if a.Username == "" || a.Password == "" {
			return fmt.Errorf("%w: admin account needs username and password", ErrInvalidInput)
		}
		_, err := s.users.UserByName(ctx, a.Username)
		if err == nil {
			continue
		}
		if !errors.Is(err, gateway.ErrNotFound) {
			return fmt.Errorf("lookup admin %s: %w", a.Username, err)
		}
		if _, err := s.create(ctx, a.Username, a.Password, model.RoleAdmin, RegisterInput{}); err != nil {
			if errors.Is(err, gateway.ErrUserExists) {
				continue
			}
			return err
		}
	}
	return nil
}

// UserExists reports whether id names a registered user.
func (s *Service) UserExists(ctx context.Context, id string) (bool, error) {
	_, err := s.users.UserByID(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gateway.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
