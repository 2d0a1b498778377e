package model

import (
	"fmt"
	"strings"
)

// Mode is the charging tier of a pile or request.
type Mode string

const (
	ModeFast    Mode = "F"
	ModeTrickle Mode = "T"
)

// Modes lists every mode in dispatch order.
var Modes = []Mode{ModeFast, ModeTrickle}

// ParseMode accepts the ticket prefix letter or the long name, case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f", "fast":
		return ModeFast, nil
	case "t", "trickle", "slow":
		return ModeTrickle, nil
	}
	return "", fmt.Errorf("unknown charging mode %q", s)
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool { return m == ModeFast || m == ModeTrickle }

// Name returns the human readable mode name.
func (m Mode) Name() string {
	switch m {
	case ModeFast:
		return "fast"
	case ModeTrickle:
		return "trickle"
	default:
		return "unknown"
	}
}

// PileStatus is the operational state of a pile.
type PileStatus int

const (
	StatusAvailable PileStatus = iota
	StatusCharging
	StatusFault
	StatusOff
)

// String returns the upper-case status name used on the wire.
func (s PileStatus) String() string {
	switch s {
	case StatusAvailable:
		return "AVAILABLE"
	case StatusCharging:
		return "CHARGING"
	case StatusFault:
		return "FAULT"
	case StatusOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParsePileStatus parses a status name case-insensitively.
func ParsePileStatus(s string) (PileStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AVAILABLE":
		return StatusAvailable, nil
	case "CHARGING":
		return StatusCharging, nil
	case "FAULT":
		return StatusFault, nil
	case "OFF":
		return StatusOff, nil
	}
	return 0, fmt.Errorf("unknown pile status %q", s)
}

// MarshalText encodes the status as its name.
func (s PileStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name.
func (s *PileStatus) UnmarshalText(b []byte) error {
	v, err := ParsePileStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
