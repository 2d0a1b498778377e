package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/evstation/core/account"
	"github.com/kilianp07/evstation/core/station"
	"github.com/kilianp07/evstation/core/tariff"
	"github.com/kilianp07/evstation/infra/logger"
	"github.com/kilianp07/evstation/infra/mqtt"
)

// EnvPrefix marks environment overrides: EVS_STATION__FAST_PILES=4 sets
// station.fast_piles.
const EnvPrefix = "EVS_"

type Config struct {
	Station station.Config         `json:"station"`
	Tariff  TariffConfig           `json:"tariff"`
	Store   StoreConfig            `json:"store"`
	Journal JournalConfig          `json:"journal"`
	HTTP    HTTPConfig             `json:"http"`
	Metrics MetricsConfig          `json:"metrics"`
	MQTT    mqtt.Config            `json:"mqtt"`
	Sentry  SentryConfig           `json:"sentry"`
	Logging logger.Options         `json:"logging"`
	Admins  []account.AdminAccount `json:"admins"`
}

// Load reads a YAML or JSON file, applies EVS_ environment overrides, fills
// defaults and validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Station.SetDefaults()
	c.Tariff.SetDefaults()
	c.Store.SetDefaults()
	c.Journal.SetDefaults()
	c.HTTP.SetDefaults()
	c.Metrics.SetDefaults()
	c.MQTT.SetDefaults()
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if len(c.Admins) == 0 {
		c.Admins = DefaultAdmins()
	}
}

// Validate checks every section and reports all failures at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	check("station", c.Station.Validate())
	check("tariff", c.Tariff.Validate())
	check("store", c.Store.Validate())
	check("journal", c.Journal.Validate())
	check("http", c.HTTP.Validate())
	check("metrics", c.Metrics.Validate())
	check("mqtt", c.MQTT.Validate())
	for i, a := range c.Admins {
		if a.Username == "" || a.Password == "" {
			check("admins", fmt.Errorf("entry %d needs username and password", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// DefaultAdmins are the accounts seeded on a fresh store.
func DefaultAdmins() []account.AdminAccount {
	return []account.AdminAccount{
		{Username: "admina", Password: "passworda"},
		{Username: "adminb", Password: "passwordb"},
		{Username: "adminc", Password: "passwordc"},
	}
}

// TariffConfig wraps the tier prices.
type TariffConfig struct {
	tariff.Prices `json:",squash"`
}

// SetDefaults fills unset prices with the standard tariff.
func (c *TariffConfig) SetDefaults() {
	d := tariff.DefaultPrices()
	if c.Peak == 0 {
		c.Peak = d.Peak
	}
	if c.Flat == 0 {
		c.Flat = d.Flat
	}
	if c.Valley == 0 {
		c.Valley = d.Valley
	}
	if c.ServiceRate == 0 {
		c.ServiceRate = d.ServiceRate
	}
}

// Validate rejects negative prices and unknown timezones.
func (c TariffConfig) Validate() error {
	if c.Peak < 0 || c.Flat < 0 || c.Valley < 0 || c.ServiceRate < 0 {
		return fmt.Errorf("prices must not be negative")
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}
