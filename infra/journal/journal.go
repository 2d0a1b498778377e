// Package journal keeps an append-only audit trail of station events.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/evstation/core/events"
)

// Record is one journal line.
type Record struct {
	ID      string          `json:"id"`
	Time    time.Time       `json:"time"`
	Kind    string          `json:"kind"`
	PileID  string          `json:"pile_id,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
	Ticket  string          `json:"ticket,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Filter selects records. Zero fields match everything; Limit keeps the
// most recent records.
type Filter struct {
	Kind   string
	PileID string
	Since  time.Time
	Until  time.Time
	Limit  int
}

func (f Filter) matches(r Record) bool {
	switch {
	case f.Kind != "" && r.Kind != f.Kind:
		return false
	case f.PileID != "" && r.PileID != f.PileID:
		return false
	case !f.Since.IsZero() && r.Time.Before(f.Since):
		return false
	case !f.Until.IsZero() && r.Time.After(f.Until):
		return false
	}
	return true
}

func (f Filter) tail(recs []Record) []Record {
	if f.Limit > 0 && len(recs) > f.Limit {
		return recs[len(recs)-f.Limit:]
	}
	return recs
}

// Store persists records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, f Filter) ([]Record, error)
	Close() error
}

// FromEvent converts a station event into a record.
func FromEvent(e events.Event) (Record, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s event: %w", e.Kind(), err)
	}
	rec := Record{ID: uuid.NewString(), Time: e.OccurredAt(), Kind: e.Kind(), Payload: payload}
	switch ev := e.(type) {
	case events.PileStatusChanged:
		rec.PileID = ev.PileID
	case events.RequestDispatched:
		rec.PileID, rec.UserID, rec.Ticket = ev.PileID, ev.UserID, ev.Ticket.String()
	case events.RerouteCompleted:
		rec.PileID = ev.PileID
	case events.BillIssued:
		rec.PileID, rec.UserID, rec.Ticket = ev.Bill.PileID, ev.Bill.UserID, ev.Bill.Ticket.String()
	}
	return rec, nil
}
