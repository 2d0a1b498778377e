// Package report aggregates bills into per pile operating statistics.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/evstation/core/model"
)

// Row is the summary of one pile over the report window.
type Row struct {
	Period        string  `json:"time_period"`
	PileID        string  `json:"pile_id"`
	Sessions      int     `json:"total_charging_times"`
	Duration      float64 `json:"total_charging_duration"`
	Energy        float64 `json:"total_charging_amount"`
	ChargingFee   float64 `json:"total_charging_fee"`
	ServiceFee    float64 `json:"total_service_fee"`
	TotalFee      float64 `json:"total_fee"`
	AverageEnergy float64 `json:"average_charging_amount"`
}

// Window maps a period name to the window ending at now.
func Window(period string, now time.Time) (time.Time, time.Time, error) {
	switch strings.ToLower(period) {
	case "day", "":
		return now.AddDate(0, 0, -1), now, nil
	case "week":
		return now.AddDate(0, 0, -7), now, nil
	case "month":
		return now.AddDate(0, 0, -30), now, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown report period %q", period)
}

type columns struct {
	duration, energy, charging, service, total []float64
}

// Generate keeps the bills starting within [start, end] and groups them by
// pile. Rows are sorted by pile id.
func Generate(bills []model.Bill, start, end time.Time, period string) []Row {
	if period == "" {
		period = "day"
	}
	byPile := make(map[string]*columns)
	for _, b := range bills {
		if b.StartTime.Before(start) || b.StartTime.After(end) {
			continue
		}
		c, ok := byPile[b.PileID]
		if !ok {
			c = &columns{}
			byPile[b.PileID] = c
		}
		c.duration = append(c.duration, b.Duration)
		c.energy = append(c.energy, b.Energy)
		c.charging = append(c.charging, b.ChargingFee)
		c.service = append(c.service, b.ServiceFee)
		c.total = append(c.total, b.TotalFee)
	}

	ids := make([]string, 0, len(byPile))
	for id := range byPile {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		c := byPile[id]
		r := Row{
			Period:      period,
			PileID:      id,
			Sessions:    len(c.energy),
			Duration:    floats.Sum(c.duration),
			Energy:      floats.Sum(c.energy),
			ChargingFee: floats.Sum(c.charging),
			ServiceFee:  floats.Sum(c.service),
			TotalFee:    floats.Sum(c.total),
		}
		r.AverageEnergy = r.Energy / float64(r.Sessions)
		rows = append(rows, r)
	}
	return rows
}

// Totals sums every row into one station wide row with an empty pile id.
func Totals(rows []Row) Row {
	var t Row
	for _, r := range rows {
		t.Period = r.Period
		t.Sessions += r.Sessions
		t.Duration += r.Duration
		t.Energy += r.Energy
		t.ChargingFee += r.ChargingFee
		t.ServiceFee += r.ServiceFee
		t.TotalFee += r.TotalFee
	}
	if t.Sessions > 0 {
		t.AverageEnergy = t.Energy / float64(t.Sessions)
	}
	return t
}
