package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so defaults are observable
// regardless of the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LOG_LEVEL", "LOG_PRETTY", "METRICS_ADDR",
		"DB_PATH",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"SETTLE_CRON", "SETTLE_BATCH_SIZE", "SETTLE_BACKOFF_BASE", "SETTLE_BACKOFF_CAP", "SETTLE_RETRY_BUDGET",
		"GATEWAY_URL", "GATEWAY_TIMEOUT", "GATEWAY_SUBMIT_RPS", "GATEWAY_SUBMIT_BURST",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "info" || cfg.LogPretty {
		t.Fatalf("logging defaults wrong: %+v", cfg)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Fatalf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	if cfg.DBPath != "votes.db" {
		t.Fatalf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 0 {
		t.Fatalf("redis defaults wrong: %+v", cfg.Redis)
	}
	if cfg.Settlement.CronSpec != "@every 1m" ||
		cfg.Settlement.BatchSize != 100 ||
		cfg.Settlement.BackoffBase != time.Second ||
		cfg.Settlement.BackoffCap != 60*time.Second ||
		cfg.Settlement.RetryBudget != 5 {
		t.Fatalf("settlement defaults wrong: %+v", cfg.Settlement)
	}
	if cfg.Gateway.BaseURL != "http://localhost:8545" ||
		cfg.Gateway.Timeout != 30*time.Second ||
		cfg.Gateway.SubmitRPS != 1.0 ||
		cfg.Gateway.SubmitBurst != 1 {
		t.Fatalf("gateway defaults wrong: %+v", cfg.Gateway)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 1.0 || cfg.OTEL.ServiceName != "go-voting-backend" {
		t.Fatalf("otel defaults wrong: %+v", cfg.OTEL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "WARNING") // normalized to warn
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("DB_PATH", "/data/votes.db")
	t.Setenv("SETTLE_CRON", "@every 30s")
	t.Setenv("SETTLE_BATCH_SIZE", "250")
	t.Setenv("SETTLE_BACKOFF_BASE", "500ms")
	t.Setenv("SETTLE_BACKOFF_CAP", "2m")
	t.Setenv("GATEWAY_SUBMIT_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty {
		t.Fatalf("logging overrides wrong: %+v", cfg)
	}
	if cfg.DBPath != "/data/votes.db" {
		t.Fatalf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Settlement.CronSpec != "@every 30s" ||
		cfg.Settlement.BatchSize != 250 ||
		cfg.Settlement.BackoffBase != 500*time.Millisecond ||
		cfg.Settlement.BackoffCap != 2*time.Minute {
		t.Fatalf("settlement overrides wrong: %+v", cfg.Settlement)
	}
	if cfg.Gateway.SubmitRPS != 2.5 {
		t.Fatalf("SubmitRPS = %v", cfg.Gateway.SubmitRPS)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		value   string
		wantMsg string
	}{
		{"bad log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"bad batch size", "SETTLE_BATCH_SIZE", "0", "SETTLE_BATCH_SIZE"},
		{"cap below base", "SETTLE_BACKOFF_CAP", "100ms", "SETTLE_BACKOFF_CAP"},
		{"bad retry budget", "SETTLE_RETRY_BUDGET", "0", "SETTLE_RETRY_BUDGET"},
		{"negative rps", "GATEWAY_SUBMIT_RPS", "-1", "GATEWAY_SUBMIT_RPS"},
		{"bad burst", "GATEWAY_SUBMIT_BURST", "0", "GATEWAY_SUBMIT_BURST"},
		{"bad sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected validation error for %s=%s", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q does not mention %s", err, tc.wantMsg)
			}
		})
	}
}

func TestGetbool(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"1", true}, {"true", true}, {"YES", true}, {"on", true},
		{"0", false}, {"false", false}, {"No", false}, {"off", false},
		{"maybe", true}, // unparseable falls back to the default
	}
	for _, tc := range cases {
		t.Setenv("X_BOOL", tc.value)
		if got := getbool("X_BOOL", true); got != tc.want {
			t.Fatalf("getbool(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
