package model

import (
	"fmt"
	"strconv"
)

// Ticket identifies a request for its whole lifetime. The sequence is per mode
// and starts at 1.
type Ticket struct {
	Mode Mode
	Seq  int
}

// String renders the ticket as mode prefix followed by the sequence, e.g. "F7".
func (t Ticket) String() string { return fmt.Sprintf("%s%d", t.Mode, t.Seq) }

// IsZero reports whether the ticket was never issued.
func (t Ticket) IsZero() bool { return t.Seq == 0 }

// ParseTicket parses the String form.
func ParseTicket(s string) (Ticket, error) {
	if len(s) < 2 {
		return Ticket{}, fmt.Errorf("invalid ticket %q", s)
	}
	mode, err := ParseMode(s[:1])
	if err != nil {
		return Ticket{}, fmt.Errorf("invalid ticket %q: %w", s, err)
	}
	seq, err := strconv.Atoi(s[1:])
	if err != nil || seq < 1 {
		return Ticket{}, fmt.Errorf("invalid ticket sequence %q", s)
	}
	return Ticket{Mode: mode, Seq: seq}, nil
}

// MarshalText encodes the ticket in its String form.
func (t Ticket) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return []byte{}, nil
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes the String form. An empty value yields the zero ticket.
func (t *Ticket) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = Ticket{}
		return nil
	}
	v, err := ParseTicket(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
