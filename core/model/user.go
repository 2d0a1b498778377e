package model

import "time"

// Role distinguishes regular users from station operators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID              string    `json:"user_id"`
	Username        string    `json:"username"`
	PasswordHash    string    `json:"-"`
	Role            Role      `json:"role"`
	Phone           string    `json:"phone,omitempty"`
	CarID           string    `json:"car_id,omitempty"`
	BatteryCapacity float64   `json:"battery_capacity,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsAdmin reports whether the user may operate piles.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
