package model

import (
	"fmt"
	"math"
	"time"
)

// ChargingRequest is what a user asks the station for.
type ChargingRequest struct {
	Mode            Mode      `json:"mode"`
	Amount          float64   `json:"amount"`           // requested energy in kWh
	BatteryCapacity float64   `json:"battery_capacity"` // informational, kWh
	CreatedAt       time.Time `json:"created_at"`
}

// ValidAmount reports whether a is a usable energy amount: finite and
// strictly positive.
func ValidAmount(a float64) bool {
	return !math.IsNaN(a) && !math.IsInf(a, 0) && a > 0
}

// Validate checks the request can be admitted.
func (r ChargingRequest) Validate() error {
	if !r.Mode.Valid() {
		return fmt.Errorf("invalid mode %q", r.Mode)
	}
	if !ValidAmount(r.Amount) {
		return fmt.Errorf("requested amount must be a positive finite number")
	}
	if r.BatteryCapacity != 0 && !ValidAmount(r.BatteryCapacity) {
		return fmt.Errorf("battery capacity must be a non-negative finite number")
	}
	return nil
}

// QueueEntry is a ticketed request waiting in a waiting area or a pile queue.
type QueueEntry struct {
	UserID   string          `json:"user_id"`
	Ticket   Ticket          `json:"ticket"`
	Request  ChargingRequest `json:"request"`
	QueuedAt time.Time       `json:"queued_at"`
}

// Session is the active occupancy of a pile.
type Session struct {
	QueueEntry
	StartedAt time.Time `json:"started_at"`
}
