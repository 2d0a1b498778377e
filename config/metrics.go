package config

import (
	"fmt"

	"github.com/kilianp07/evstation/infra/metrics"
)

// MetricsConfig enables the prometheus endpoint and the influx bill sink.
type MetricsConfig struct {
	Prometheus PrometheusConfig `json:"prometheus"`
	Influx     InfluxConfig     `json:"influx"`
}

type PrometheusConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

type InfluxConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token"`
	Org     string `json:"org"`
	Bucket  string `json:"bucket"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Prometheus.Port == 0 {
		c.Prometheus.Port = 9100
	}
}

func (c MetricsConfig) Validate() error {
	if c.Prometheus.Port < 0 || c.Prometheus.Port > 65535 {
		return fmt.Errorf("prometheus port %d out of range", c.Prometheus.Port)
	}
	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Bucket == "") {
		return fmt.Errorf("influx requires url and bucket")
	}
	return nil
}

// Addr is the listen address of the metrics server.
func (c PrometheusConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Client converts the section for the influx sink.
func (c InfluxConfig) Client() metrics.InfluxConfig {
	return metrics.InfluxConfig{URL: c.URL, Token: c.Token, Org: c.Org, Bucket: c.Bucket}
}
