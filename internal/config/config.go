// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// settlement worker: database path, cache backend, settlement scheduling and
// retry policy, chain gateway limits, logging, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-voting-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RedisConfig defines the cache backend connection.
type RedisConfig struct {
	Addr     string // REDIS_ADDR host:port
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// SettlementConfig defines scheduling and retry policy for the processor.
type SettlementConfig struct {
	CronSpec    string        // SETTLE_CRON (robfig/cron spec)
	BatchSize   int           // SETTLE_BATCH_SIZE
	BackoffBase time.Duration // SETTLE_BACKOFF_BASE
	BackoffCap  time.Duration // SETTLE_BACKOFF_CAP
	RetryBudget int           // SETTLE_RETRY_BUDGET
}

// GatewayConfig locates and bounds calls to the external chain gateway.
type GatewayConfig struct {
	BaseURL     string        // GATEWAY_URL of the chain gateway service
	Timeout     time.Duration // GATEWAY_TIMEOUT per call
	SubmitRPS   float64       // GATEWAY_SUBMIT_RPS (0 disables throttling)
	SubmitBurst int           // GATEWAY_SUBMIT_BURST
}

// Config holds all configuration values for the application.
type Config struct {
	// Logging / Metrics
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	MetricsAddr string // listen address for the Prometheus /metrics endpoint

	// App
	DBPath string // SQLite path

	Redis      RedisConfig
	Settlement SettlementConfig
	Gateway    GatewayConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Logging / Metrics
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		MetricsAddr: getenv("METRICS_ADDR", ":9090"),

		// App
		DBPath: getenv("DB_PATH", "votes.db"),

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		Settlement: SettlementConfig{
			CronSpec:    getenv("SETTLE_CRON", "@every 1m"),
			BatchSize:   getint("SETTLE_BATCH_SIZE", 100),
			BackoffBase: getdur("SETTLE_BACKOFF_BASE", time.Second),
			BackoffCap:  getdur("SETTLE_BACKOFF_CAP", 60*time.Second),
			RetryBudget: getint("SETTLE_RETRY_BUDGET", 5),
		},

		Gateway: GatewayConfig{
			BaseURL:     getenv("GATEWAY_URL", "http://localhost:8545"),
			Timeout:     getdur("GATEWAY_TIMEOUT", 30*time.Second),
			SubmitRPS:   getfloat("GATEWAY_SUBMIT_RPS", 1.0),
			SubmitBurst: getint("GATEWAY_SUBMIT_BURST", 1),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-voting-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, errors.New("REDIS_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.Settlement.CronSpec) == "" {
		return cfg, errors.New("SETTLE_CRON must not be empty")
	}
	if cfg.Settlement.BatchSize < 1 {
		return cfg, errors.New("SETTLE_BATCH_SIZE must be >= 1")
	}
	if cfg.Settlement.BackoffBase <= 0 || cfg.Settlement.BackoffCap <= 0 {
		return cfg, errors.New("backoff durations must be positive")
	}
	if cfg.Settlement.BackoffCap < cfg.Settlement.BackoffBase {
		return cfg, errors.New("SETTLE_BACKOFF_CAP must be >= SETTLE_BACKOFF_BASE")
	}
	if cfg.Settlement.RetryBudget < 1 {
		return cfg, errors.New("SETTLE_RETRY_BUDGET must be >= 1")
	}
	if strings.TrimSpace(cfg.Gateway.BaseURL) == "" {
		return cfg, errors.New("GATEWAY_URL must not be empty")
	}
	if cfg.Gateway.Timeout <= 0 {
		return cfg, errors.New("GATEWAY_TIMEOUT must be a positive duration")
	}
	if cfg.Gateway.SubmitRPS < 0 {
		return cfg, errors.New("GATEWAY_SUBMIT_RPS must be >= 0")
	}
	if cfg.Gateway.SubmitBurst < 1 {
		return cfg, errors.New("GATEWAY_SUBMIT_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
