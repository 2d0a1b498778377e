package config

import (
	"fmt"
	"time"
)

// HTTPConfig defines the API listener and token settings.
type HTTPConfig struct {
	Addr            string `json:"addr"`
	JWTSecret       string `json:"jwt_secret"`
	TokenTTLMinutes int    `json:"token_ttl_minutes"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.TokenTTLMinutes == 0 {
		c.TokenTTLMinutes = 24 * 60
	}
}

func (c HTTPConfig) Validate() error {
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("jwt_secret must be at least 16 characters")
	}
	if c.TokenTTLMinutes < 0 {
		return fmt.Errorf("token_ttl_minutes must not be negative")
	}
	return nil
}

// TokenTTL is the lifetime of issued tokens.
func (c HTTPConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}
