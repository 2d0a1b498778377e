// Package sqlite persists users and bills in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/evstation/core/gateway"
	"github.com/kilianp07/evstation/core/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL,
    phone TEXT NOT NULL DEFAULT '',
    car_id TEXT NOT NULL DEFAULT '',
    battery_capacity REAL NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS bills (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL,
    pile_id TEXT NOT NULL,
    ticket TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    energy REAL NOT NULL,
    duration REAL NOT NULL,
    charging_fee REAL NOT NULL,
    service_fee REAL NOT NULL,
    total_fee REAL NOT NULL,
    generated_at INTEGER NOT NULL,
    peak_minutes REAL NOT NULL,
    flat_minutes REAL NOT NULL,
    valley_minutes REAL NOT NULL,
    peak_energy REAL NOT NULL DEFAULT 0,
    flat_energy REAL NOT NULL DEFAULT 0,
    valley_energy REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS bills_user ON bills(user_id);
CREATE INDEX IF NOT EXISTS bills_start ON bills(start_time);
`

const (
	userColumns = `id, username, password_hash, role, phone, car_id, battery_capacity, created_at`
	billColumns = `id, user_id, pile_id, ticket, start_time, end_time, energy, duration,
    charging_fee, service_fee, total_fee, generated_at, peak_minutes, flat_minutes, valley_minutes,
    peak_energy, flat_energy, valley_energy`
)

// Store is a gateway.Gateway backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		u.ID, u.Username, u.PasswordHash, string(u.Role), u.Phone, u.CarID, u.BatteryCapacity, u.CreatedAt.UnixNano())
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.User{}, err
	}
	if n == 0 {
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
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	var (
		u       model.User
		role    string
		created int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.Phone, &u.CarID, &u.BatteryCapacity, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("%w: user %s", gateway.ErrNotFound, value)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("select user: %w", err)
	}
	u.Role = model.Role(role)
	u.CreatedAt = time.Unix(0, created).UTC()
	return u, nil
}

func (s *Store) SaveBill(ctx context.Context, b model.Bill) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bills (`+billColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.PileID, b.Ticket.String(), b.StartTime.UnixNano(), b.EndTime.UnixNano(),
		b.Energy, b.Duration, b.ChargingFee, b.ServiceFee, b.TotalFee, b.GeneratedAt.UnixNano(),
		b.PeakMinutes, b.FlatMinutes, b.ValleyMinutes, b.PeakEnergy, b.FlatEnergy, b.ValleyEnergy)
	if err != nil {
		return fmt.Errorf("insert bill %s: %w", b.ID, err)
	}
	return nil
}

func (s *Store) UserBills(ctx context.Context, userID string) ([]model.Bill, error) {
	return s.bills(ctx, `WHERE user_id = ?`, userID)
}

func (s *Store) AllBills(ctx context.Context) ([]model.Bill, error) {
	return s.bills(ctx, ``)
}

func (s *Store) BillsBetween(ctx context.Context, start, end time.Time) ([]model.Bill, error) {
	return s.bills(ctx, `WHERE start_time >= ? AND start_time <= ?`, start.UnixNano(), end.UnixNano())
}

func (s *Store) bills(ctx context.Context, where string, args ...any) ([]model.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+billColumns+` FROM bills `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("select bills: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]model.Bill, 0)
	for rows.Next() {
		var (
			b                     model.Bill
			ticket                string
			start, end, generated int64
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.PileID, &ticket, &start, &end, &b.Energy, &b.Duration,
			&b.ChargingFee, &b.ServiceFee, &b.TotalFee, &generated, &b.PeakMinutes, &b.FlatMinutes, &b.ValleyMinutes,
			&b.PeakEnergy, &b.FlatEnergy, &b.ValleyEnergy); err != nil {
			return nil, err
		}
		if err := b.Ticket.UnmarshalText([]byte(ticket)); err != nil {
			return nil, fmt.Errorf("bill %s: %w", b.ID, err)
		}
		b.StartTime = time.Unix(0, start).UTC()
		b.EndTime = time.Unix(0, end).UTC()
		b.GeneratedAt = time.Unix(0, generated).UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

var _ gateway.Gateway = (*Store)(nil)
