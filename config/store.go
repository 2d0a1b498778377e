package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/evstation/infra/store/breaker"
)

// StoreConfig selects the persistence gateway.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite" or "postgres".
	Backend string `json:"backend"`
	// Path is the sqlite database file.
	Path string `json:"path"`
	// DSN is the postgres connection string.
	DSN     string        `json:"dsn"`
	Breaker BreakerConfig `json:"breaker"`
}

// BreakerConfig guards the gateway with a circuit breaker.
type BreakerConfig struct {
	Enabled             bool   `json:"enabled"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	TimeoutMS           int    `json:"timeout_ms"`
	MaxRequests         uint32 `json:"max_requests"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "evstation.db"
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		c.Breaker.ConsecutiveFailures = 5
	}
	if c.Breaker.TimeoutMS == 0 {
		c.Breaker.TimeoutMS = 30000
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 1
	}
}

func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("sqlite backend requires path")
		}
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("postgres backend requires dsn")
		}
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Breaker.TimeoutMS < 0 {
		return fmt.Errorf("breaker timeout must not be negative")
	}
	return nil
}

// Settings converts the breaker section for the breaker store.
func (c BreakerConfig) Settings() breaker.Settings {
	return breaker.Settings{
		ConsecutiveFailures: c.ConsecutiveFailures,
		Timeout:             time.Duration(c.TimeoutMS) * time.Millisecond,
		MaxRequests:         c.MaxRequests,
	}
}
