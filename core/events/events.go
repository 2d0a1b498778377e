package events

import (
	"time"

	"github.com/kilianp07/evstation/core/model"
)

// Event is implemented by every station event.
type Event interface {
	Kind() string
	OccurredAt() time.Time
}

const (
	KindPileStatus = "pile_status"
	KindDispatch   = "dispatch"
	KindReroute    = "reroute"
	KindBill       = "bill"
)

// PileStatusChanged is published on every effective status transition.
type PileStatusChanged struct {
	PileID string           `json:"pile_id"`
	Mode   model.Mode       `json:"mode"`
	From   model.PileStatus `json:"from"`
	To     model.PileStatus `json:"to"`
	At     time.Time        `json:"at"`
}

func (e PileStatusChanged) Kind() string          { return KindPileStatus }
func (e PileStatusChanged) OccurredAt() time.Time { return e.At }

// Source tells which station path placed a request on a pile.
type Source string

const (
	SourceTick     Source = "tick"
	SourceFault    Source = "fault"
	SourceRecovery Source = "recovery"
	SourceBatch    Source = "batch"
)

// RequestDispatched is published when a request lands on a pile. Started is
// true when the request took the charging slot directly.
type RequestDispatched struct {
	UserID  string       `json:"user_id"`
	Ticket  model.Ticket `json:"ticket"`
	PileID  string       `json:"pile_id"`
	Source  Source       `json:"source"`
	Started bool         `json:"started"`
	At      time.Time    `json:"at"`
}

func (e RequestDispatched) Kind() string          { return KindDispatch }
func (e RequestDispatched) OccurredAt() time.Time { return e.At }

// RerouteKind is either "fault" or "recovery".
type RerouteKind string

const (
	RerouteFault    RerouteKind = "fault"
	RerouteRecovery RerouteKind = "recovery"
)

// RerouteCompleted summarises a fault or recovery pass. Rescheduled entries
// landed on a pile, Requeued ones went back to the front of the waiting area.
type RerouteCompleted struct {
	PileID      string      `json:"pile_id"`
	Mode        model.Mode  `json:"mode"`
	Type        RerouteKind `json:"type"`
	Rescheduled int         `json:"rescheduled"`
	Requeued    int         `json:"requeued"`
	At          time.Time   `json:"at"`
}

func (e RerouteCompleted) Kind() string          { return KindReroute }
func (e RerouteCompleted) OccurredAt() time.Time { return e.At }

// BillIssued carries a freshly generated bill.
type BillIssued struct {
	Bill model.Bill `json:"bill"`
	Mode model.Mode `json:"mode"`
}

func (e BillIssued) Kind() string          { return KindBill }
func (e BillIssued) OccurredAt() time.Time { return e.Bill.GeneratedAt }
