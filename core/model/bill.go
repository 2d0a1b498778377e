package model

import "time"

// Bill is the immutable record of a finished or aborted session.
type Bill struct {
	ID          string    `json:"bill_id"`
	UserID      string    `json:"user_id"`
	PileID      string    `json:"pile_id"`
	Ticket      Ticket    `json:"queue_number"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Energy      float64   `json:"charging_amount"`   // kWh delivered
	Duration    float64   `json:"charging_duration"` // hours
	ChargingFee float64   `json:"charging_fee"`
	ServiceFee  float64   `json:"service_fee"`
	TotalFee    float64   `json:"total_fee"`
	GeneratedAt time.Time `json:"generated_time"`

	PeakMinutes   float64 `json:"peak_minutes"`
	FlatMinutes   float64 `json:"flat_minutes"`
	ValleyMinutes float64 `json:"valley_minutes"`
	PeakEnergy    float64 `json:"peak_energy"`
	FlatEnergy    float64 `json:"flat_energy"`
	ValleyEnergy  float64 `json:"valley_energy"`
}
