// Command settlementd runs the vote settlement worker: it periodically
// drains pending votes per proposal through the chain gateway, mirrors the
// committed ledger locally, and exposes Prometheus metrics. HTTP request
// handling for vote intake lives in a separate service; this process owns
// only the settlement loop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/brandvote/go-voting-backend/internal/cache"
	"github.com/brandvote/go-voting-backend/internal/chain"
	"github.com/brandvote/go-voting-backend/internal/config"
	"github.com/brandvote/go-voting-backend/internal/observability"
	"github.com/brandvote/go-voting-backend/internal/repo"
	"github.com/brandvote/go-voting-backend/internal/services"
	"github.com/brandvote/go-voting-backend/internal/sysutil"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	log := sysutil.NewLogger(cfg.LogPretty).With().Str("service", "settlementd").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() { _ = shutdownOTel(context.Background()) }()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// Cache is best-effort: an unreachable Redis only costs cache hits.
	rdb := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer rdb.Close()
	c := cache.New(rdb, log)
	if err := c.Health(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("cache backend unreachable, continuing without cache hits")
	}

	gateway := chain.NewLimitedGateway(
		chain.NewHTTPGateway(cfg.Gateway.BaseURL, nil),
		cfg.Gateway.SubmitRPS, cfg.Gateway.SubmitBurst, cfg.Gateway.Timeout,
	)
	resolver := newEnvResolver()

	settler := &services.SettlementService{
		DB:          db,
		Gateway:     gateway,
		Resolver:    resolver,
		Cache:       c,
		Log:         log,
		BatchSize:   cfg.Settlement.BatchSize,
		BackoffBase: cfg.Settlement.BackoffBase,
		BackoffCap:  cfg.Settlement.BackoffCap,
		RetryBudget: cfg.Settlement.RetryBudget,
	}

	// Immediate pass before the scheduler takes over.
	if err := settler.SweepOnce(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("initial settlement sweep failed")
	}

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.Settlement.CronSpec, func() {
		if err := settler.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("settlement sweep failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.Settlement.CronSpec).Msg("invalid cron spec")
	}
	sched.Start()
	log.Info().Str("spec", cfg.Settlement.CronSpec).Msg("settlement scheduler started")

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	// Let an in-flight sweep finish its gateway call before stopping.
	<-sched.Stop().Done()
	_ = srv.Shutdown(context.Background())
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// newEnvResolver resolves contract addresses from CONTRACT_ADDR_<BUSINESS>
// environment variables. Deployments with a business configuration service
// substitute their own chain.ContractResolver here.
func newEnvResolver() chain.ContractResolver {
	return chain.ContractResolverFunc(func(_ context.Context, businessID string) (string, error) {
		return os.Getenv("CONTRACT_ADDR_" + sanitizeEnvKey(businessID)), nil
	})
}

func sanitizeEnvKey(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			out = append(out, r-('a'-'A'))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
