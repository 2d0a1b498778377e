// Package postgres persists users and bills in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/evstation/core/gateway"
	"github.com/kilianp07/evstation/core/model"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const schema = `
create table if not exists users (
    id text primary key,
    username text not null unique,
    password_hash text not null,
    role text not null,
    phone text not null default '',
    car_id text not null default '',
    battery_capacity double precision not null default 0,
    created_at timestamptz not null
);
create table if not exists bills (
    seq bigserial primary key,
    id text not null unique,
    user_id text not null,
    pile_id text not null,
    ticket text not null,
    start_time timestamptz not null,
    end_time timestamptz not null,
    energy double precision not null,
    duration double precision not null,
    charging_fee double precision not null,
    service_fee double precision not null,
    total_fee double precision not null,
    generated_at timestamptz not null,
    peak_minutes double precision not null,
    flat_minutes double precision not null,
    valley_minutes double precision not null,
    peak_energy double precision not null default 0,
    flat_energy double precision not null default 0,
    valley_energy double precision not null default 0
);
create index if not exists bills_user_idx on bills(user_id);
create index if not exists bills_start_idx on bills(start_time);
`

const (
	userColumns = "id, username, password_hash, role, phone, car_id, battery_capacity, created_at"
	billColumns = "id, user_id, pile_id, ticket, start_time, end_time, energy, duration, charging_fee, service_fee, total_fee, generated_at, peak_minutes, flat_minutes, valley_minutes, peak_energy, flat_energy, valley_energy"
)

// Store is a gateway.Gateway backed by PostgreSQL.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

// New wraps an existing connection.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, checks the connection and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	tag, err := s.db.Exec(ctx,
		"insert into users ("+userColumns+") values ($1, $2, $3, $4, $5, $6, $7, $8) on conflict do nothing",
		u.ID, u.Username, u.PasswordHash, string(u.Role), u.Phone, u.CarID, u.BatteryCapacity, u.CreatedAt)
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.User{}, fmt.Errorf("%w: %s", gateway.ErrUserExists, u.Username)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (model.User, error) {
	return s.userWhere(ctx, "id", id)
}

func (s *Store) UserByName(ctx context.Context, name string) (model.User, error) {
	return s.userWhere(ctx, "username", name)
}

func (s *Store) userWhere(ctx context.Context, column, value string) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := s.db.QueryRow(ctx, "select "+userColumns+" from users where "+column+" = $1", value).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.Phone, &u.CarID, &u.BatteryCapacity, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("%w: user %s", gateway.ErrNotFound, value)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("select user: %w", err)
	}
	u.Role = model.Role(role)
	return u, nil
}

func (s *Store) SaveBill(ctx context.Context, b model.Bill) error {
	_, err := s.db.Exec(ctx,
		"insert into bills ("+billColumns+") values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)",
		b.ID, b.UserID, b.PileID, b.Ticket.String(), b.StartTime, b.EndTime,
		b.Energy, b.Duration, b.ChargingFee, b.ServiceFee, b.TotalFee, b.GeneratedAt,
		b.PeakMinutes, b.FlatMinutes, b.ValleyMinutes, b.PeakEnergy, b.FlatEnergy, b.ValleyEnergy)
	if err != nil {
		return fmt.Errorf("insert bill %s: %w", b.ID, err)
	}
	return nil
}

func (s *Store) UserBills(ctx context.Context, userID string) ([]model.Bill, error) {
	return s.bills(ctx, "where user_id = $1", userID)
}

func (s *Store) AllBills(ctx context.Context) ([]model.Bill, error) {
	return s.bills(ctx, "")
}

func (s *Store) BillsBetween(ctx context.Context, start, end time.Time) ([]model.Bill, error) {
	return s.bills(ctx, "where start_time >= $1 and start_time <= $2", start, end)
}

func (s *Store) bills(ctx context.Context, where string, args ...any) ([]model.Bill, error) {
	rows, err := s.db.Query(ctx, "select "+billColumns+" from bills "+where+" order by seq", args...)
	if err != nil {
		return nil, fmt.Errorf("select bills: %w", err)
	}
	defer rows.Close()
	out := make([]model.Bill, 0)
	for rows.Next() {
		var (
			b      model.Bill
			ticket string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.PileID, &ticket, &b.StartTime, &b.EndTime, &b.Energy, &b.Duration,
			&b.ChargingFee, &b.ServiceFee, &b.TotalFee, &b.GeneratedAt, &b.PeakMinutes, &b.FlatMinutes, &b.ValleyMinutes,
			&b.PeakEnergy, &b.FlatEnergy, &b.ValleyEnergy); err != nil {
			return nil, err
		}
		if err := b.Ticket.UnmarshalText([]byte(ticket)); err != nil {
			return nil, fmt.Errorf("bill %s: %w", b.ID, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the pool opened by Open.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

var _ gateway.Gateway = (*Store)(nil)
