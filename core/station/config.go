package station

import (
	"fmt"
	"time"
)

// Config defines the station layout and scheduling settings.
type Config struct {
	FastPiles          int     `json:"fast_piles"`
	TricklePiles       int     `json:"trickle_piles"`
	WaitingAreaSize    int     `json:"waiting_area_size"`
	ChargingQueueLen   int     `json:"charging_queue_len"`
	FastPower          float64 `json:"fast_power"`
	TricklePower       float64 `json:"trickle_power"`
	DispatchIntervalMS int     `json:"dispatch_interval_ms"`
	ErrorBackoffMS     int     `json:"error_backoff_ms"`
	// DispatchOnSubmit runs a dispatch pass right after each admitted request
	// instead of waiting for the next tick.
	DispatchOnSubmit bool `json:"dispatch_on_submit"`
}

// SetDefaults fills zero values with the standard station layout.
func (c *Config) SetDefaults() {
	if c.FastPiles == 0 && c.TricklePiles == 0 {
		c.FastPiles = 2
		c.TricklePiles = 3
	}
	if c.WaitingAreaSize == 0 {
		c.WaitingAreaSize = 6
	}
	if c.ChargingQueueLen == 0 {
		c.ChargingQueueLen = 2
	}
	if c.FastPower == 0 {
		c.FastPower = 30
	}
	if c.TricklePower == 0 {
		c.TricklePower = 7
	}
	if c.DispatchIntervalMS == 0 {
		c.DispatchIntervalMS = 1000
	}
	if c.ErrorBackoffMS == 0 {
		c.ErrorBackoffMS = 5000
	}
}

// Validate ensures the configuration describes a usable station.
func (c Config) Validate() error {
	switch {
	case c.FastPiles < 0 || c.TricklePiles < 0:
		return fmt.Errorf("pile counts must not be negative")
	case c.FastPiles+c.TricklePiles == 0:
		return fmt.Errorf("station needs at least one pile")
	case c.FastPiles+c.TricklePiles > 26:
		return fmt.Errorf("at most 26 piles are supported, got %d", c.FastPiles+c.TricklePiles)
	case c.WaitingAreaSize < 1:
		return fmt.Errorf("waiting_area_size must be positive")
	case c.ChargingQueueLen < 1:
		return fmt.Errorf("charging_queue_len must be positive")
	case c.FastPower <= 0 || c.TricklePower <= 0:
		return fmt.Errorf("pile power must be positive")
	case c.DispatchIntervalMS < 0 || c.ErrorBackoffMS < 0:
		return fmt.Errorf("intervals must not be negative")
	}
	return nil
}

// DispatchInterval returns the tick period.
func (c Config) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalMS) * time.Millisecond
}

// ErrorBackoff returns the pause applied after a failed tick.
func (c Config) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffMS) * time.Millisecond
}
