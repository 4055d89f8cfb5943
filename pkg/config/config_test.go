package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wyfcoding/tradestream/pkg/config"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Cache.KeyPrefix != "price:latest:" || cfg.Cache.TTL != 60*time.Second {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Stream.StreamSuffix != "@bookTicker" || len(cfg.Stream.Symbols) != 2 {
		t.Errorf("unexpected stream defaults: %+v", cfg.Stream)
	}
	if cfg.Snapshot.PriceSource != "mid" {
		t.Errorf("price source = %s", cfg.Snapshot.PriceSource)
	}
	threshold, err := cfg.Snapshot.ThresholdDecimal()
	if err != nil || threshold.String() != "0.01" {
		t.Errorf("threshold = %s err=%v", threshold, err)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
service_name = "marketdata-test"

[stream]
symbols = ["solusdt"]
max_attempts = 0
initial_backoff = "250ms"
max_backoff = "5s"

[cache]
backend = "redis"
ttl = "15s"

[snapshot]
threshold = "0.005"
price_source = "bid"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APP_HTTP_PORT", "9090")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "marketdata-test" {
		t.Errorf("service name = %s", cfg.ServiceName)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("env override not applied: port = %d", cfg.HTTP.Port)
	}
	if len(cfg.Stream.Symbols) != 1 || cfg.Stream.Symbols[0] != "solusdt" {
		t.Errorf("symbols = %v", cfg.Stream.Symbols)
	}
	if cfg.Stream.MaxAttempts != 0 || cfg.Stream.InitialBackoff != 250*time.Millisecond {
		t.Errorf("stream = %+v", cfg.Stream)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.TTL != 15*time.Second {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Snapshot.PriceSource != "bid" {
		t.Errorf("price source = %s", cfg.Snapshot.PriceSource)
	}
}

func TestValidate(t *testing.T) {
	base, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"bad cache backend", func(c *config.Config) { c.Cache.Backend = "memcached" }},
		{"zero ttl", func(c *config.Config) { c.Cache.TTL = 0 }},
		{"sql without dsn", func(c *config.Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }},
		{"unknown driver", func(c *config.Config) { c.Database.Driver = "oracle" }},
		{"negative attempts", func(c *config.Config) { c.Stream.MaxAttempts = -1 }},
		{"max backoff below initial", func(c *config.Config) { c.Stream.MaxBackoff = time.Millisecond }},
		{"bad threshold", func(c *config.Config) { c.Snapshot.Threshold = "one percent" }},
		{"negative threshold", func(c *config.Config) { c.Snapshot.Threshold = "-0.01" }},
		{"bad price source", func(c *config.Config) { c.Snapshot.PriceSource = "last" }},
		{"kafka without brokers", func(c *config.Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
		{"zero shutdown timeout", func(c *config.Config) { c.Stream.ShutdownTimeout = 0 }},
		{"negative shutdown timeout", func(c *config.Config) { c.Stream.ShutdownTimeout = -time.Second }},
		{"rate limit without qps", func(c *config.Config) { c.HTTP.RateLimit.Enabled = true; c.HTTP.RateLimit.QPS = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
