// Package tariff prices charging sessions under a time-of-use tariff.
//
// Sessions are walked in one minute buckets and every bucket is classified by
// its start time of day:
//
//	Peak   10:00-15:00 and 18:00-21:00
//	Valley 23:00-07:00 (wraps midnight)
//	Flat   everything else
//
// Delivered energy is spread over the tiers in proportion to their minutes.
package tariff

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/kilianp07/evstation/core/clock"
	"github.com/kilianp07/evstation/core/model"
)

// Tier is a pricing period.
type Tier int

const (
	Flat Tier = iota
	Peak
	Valley
)

func (t Tier) String() string {
	switch t {
	case Peak:
		return "peak"
	case Valley:
		return "valley"
	default:
		return "flat"
	}
}

// Classify returns the tier of the instant t using only its clock time.
func Classify(t time.Time) Tier {
	h := t.Hour()
	switch {
	case (h >= 10 && h < 15) || (h >= 18 && h < 21):
		return Peak
	case h >= 23 || h < 7:
		return Valley
	default:
		return Flat
	}
}

// Prices holds the per kWh tier prices and the service rate.
type Prices struct {
	Peak        float64 `json:"peak_price"`
	Flat        float64 `json:"flat_price"`
	Valley      float64 `json:"valley_price"`
	ServiceRate float64 `json:"service_rate"`
	// Timezone names the location used for classification. Empty keeps the
	// location carried by the timestamps.
	Timezone string `json:"timezone"`
}

// DefaultPrices returns the station's standard tariff.
func DefaultPrices() Prices {
	return Prices{Peak: 1.0, Flat: 0.7, Valley: 0.4, ServiceRate: 0.8}
}

func (p Prices) price(t Tier) float64 {
	switch t {
	case Peak:
		return p.Peak
	case Valley:
		return p.Valley
	default:
		return p.Flat
	}
}

// Breakdown is the tier split of one session.
type Breakdown struct {
	PeakMinutes   float64
	FlatMinutes   float64
	ValleyMinutes float64
	PeakEnergy    float64
	FlatEnergy    float64
	ValleyEnergy  float64
	ChargingFee   float64
	ServiceFee    float64
	TotalFee      float64
}

// TotalMinutes is the sum of all tier minutes.
func (b Breakdown) TotalMinutes() float64 {
	return b.PeakMinutes + b.FlatMinutes + b.ValleyMinutes
}

// Minutes partitions [start, end) into tier minutes. The last bucket may be
// shorter than a minute.
func Minutes(start, end time.Time, loc *time.Location) (peak, flat, valley float64) {
	for cur := start; cur.Before(end); {
		next := cur.Add(time.Minute)
		if next.After(end) {
			next = end
		}
		at := cur
		if loc != nil {
			at = cur.In(loc)
		}
		d := next.Sub(cur).Minutes()
		switch Classify(at) {
		case Peak:
			peak += d
		case Valley:
			valley += d
		default:
			flat += d
		}
		cur = next
	}
	return peak, flat, valley
}

// Split prices energy delivered over [start, end) after resolving Timezone.
func (p Prices) Split(start, end time.Time, energy float64) (Breakdown, error) {
	loc, err := p.Location()
	if err != nil {
		return Breakdown{}, err
	}
	return p.SplitIn(loc, start, end, energy), nil
}

// SplitIn prices energy delivered over [start, end), classifying minutes in
// loc. A nil loc keeps the location carried by the timestamps.
func (p Prices) SplitIn(loc *time.Location, start, end time.Time, energy float64) Breakdown {
	var b Breakdown
	b.PeakMinutes, b.FlatMinutes, b.ValleyMinutes = Minutes(start, end, loc)
	total := b.TotalMinutes()
	if total == 0 {
		return b
	}
	b.PeakEnergy = energy * b.PeakMinutes / total
	b.FlatEnergy = energy * b.FlatMinutes / total
	b.ValleyEnergy = energy * b.ValleyMinutes / total
	b.ChargingFee = b.PeakEnergy*p.price(Peak) + b.FlatEnergy*p.price(Flat) + b.ValleyEnergy*p.price(Valley)
	b.ServiceFee = energy * p.ServiceRate
	b.TotalFee = b.ChargingFee + b.ServiceFee
	return b
}

// Location resolves Timezone. An empty Timezone yields a nil location.
func (p Prices) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("tariff timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// Calculator issues bills.
type Calculator struct {
	Prices Prices
	Clock  clock.Clock

	loc *time.Location
}

// NewCalculator returns a calculator using the given prices and clock. A nil
// clock falls back to the wall clock. The tariff timezone is resolved once
// here.
func NewCalculator(p Prices, c clock.Clock) (*Calculator, error) {
	if c == nil {
		c = clock.Real{}
	}
	loc, err := p.Location()
	if err != nil {
		return nil, err
	}
	return &Calculator{Prices: p, Clock: c, loc: loc}, nil
}

// ComputeBill prices a session of energy kWh delivered over [start, end).
// duration is in hours and copied to the bill as is.
func (c *Calculator) ComputeBill(userID, pileID string, ticket model.Ticket, start, end time.Time, energy, duration float64) model.Bill {
	b := c.Prices.SplitIn(c.loc, start, end, energy)
	return model.Bill{
		ID:            uuid.NewString(),
		UserID:        userID,
		PileID:        pileID,
		Ticket:        ticket,
		StartTime:     start,
		EndTime:       end,
		Energy:        energy,
		Duration:      duration,
		ChargingFee:   b.ChargingFee,
		ServiceFee:    b.ServiceFee,
		TotalFee:      b.TotalFee,
		GeneratedAt:   c.Clock.Now(),
		PeakMinutes:   b.PeakMinutes,
		FlatMinutes:   b.FlatMinutes,
		ValleyMinutes: b.ValleyMinutes,
		PeakEnergy:    b.PeakEnergy,
		FlatEnergy:    b.FlatEnergy,
		ValleyEnergy:  b.ValleyEnergy,
	}
}
