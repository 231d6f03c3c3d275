package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "github.com/khaleddesign/chantierpro-sub001/internal/jwt_token"
	"github.com/khaleddesign/chantierpro-sub001/internal/kvstore"
	"github.com/khaleddesign/chantierpro-sub001/internal/monitor"
	monitorhandler "github.com/khaleddesign/chantierpro-sub001/internal/monitor/handler"
	"github.com/khaleddesign/chantierpro-sub001/internal/monitor/workers"
	"github.com/khaleddesign/chantierpro-sub001/internal/platform/config"
	"github.com/khaleddesign/chantierpro-sub001/internal/platform/health"
	"github.com/khaleddesign/chantierpro-sub001/internal/platform/kafka/producer"
	"github.com/khaleddesign/chantierpro-sub001/internal/platform/logger"
	"github.com/khaleddesign/chantierpro-sub001/internal/platform/metrics"
	"github.com/khaleddesign/chantierpro-sub001/internal/platform/middleware"
	"github.com/khaleddesign/chantierpro-sub001/internal/platform/tracing"
	ratelimithandler "github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/handler"
	"github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/limiter"
	ratelimitmetrics "github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/metrics"
	ratelimitmw "github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/middleware"
	"github.com/khaleddesign/chantierpro-sub001/internal/securelog"
)

const (
	shutdownTimeout = 10 * time.Second
	tokenTTL        = 15 * time.Minute
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.IsProduction())

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing chantierpro gateway",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"redis_configured", cfg.Redis.URL != "",
		"kafka_configured", cfg.Kafka.Brokers != "",
	)

	store := kvstore.Open(ctx, cfg.Redis,
		kvstore.WithLogger(log),
		kvstore.WithMetrics(kvstore.NewMetrics(nil)),
		kvstore.WithTracer(tracing.NewOTel("chantierpro/kvstore")),
	)
	defer store.Close()

	rl, err := limiter.New(store,
		limiter.WithLogger(log),
		limiter.WithMetrics(ratelimitmetrics.New(nil)),
	)
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}

	var (
		sink     securelog.Sink = securelog.DiscardSink{}
		kafkaLog *producer.Producer
	)
	if cfg.Kafka.Brokers != "" {
		kafkaLog, err = producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), log)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		if sink, err = securelog.NewKafkaSink(kafkaLog, cfg.Kafka.LogTopic); err != nil {
			return fmt.Errorf("create secure log sink: %w", err)
		}
	}
	seclog := securelog.New(
		securelog.WithProduction(cfg.IsProduction()),
		securelog.WithConsole(log),
		securelog.WithSink(sink),
		securelog.WithMetrics(securelog.NewMetrics(nil)),
	)

	monitorMetrics := monitor.NewMetrics(nil)
	mon, err := monitor.New(seclog,
		monitor.WithLogger(log),
		monitor.WithMetrics(monitorMetrics),
	)
	if err != nil {
		return fmt.Errorf("create security monitor: %w", err)
	}
	scheduler := workers.New(mon,
		workers.WithLogger(log),
		workers.WithMetrics(monitorMetrics),
		workers.WithSweeper(store.Fallback()),
		workers.WithPoolRecorder(store),
	)

	healthHandler := health.New(cfg.Environment)
	healthHandler.RegisterCheck("kvstore", func(context.Context) error {
		if store.UsingFallback() {
			return fmt.Errorf("%w: serving from in-process store", health.ErrDegraded)
		}
		return nil
	})
	if kafkaLog != nil {
		healthHandler.RegisterCheck("kafka", func(ctx context.Context) error {
			if !kafkaLog.Healthy(ctx) {
				return fmt.Errorf("%w: secure logs fall back to console", health.ErrDegraded)
			}
			return nil
		})
	}

	upstream, err := newUpstream(cfg.UpstreamURL, log)
	if err != nil {
		return fmt.Errorf("create upstream proxy: %w", err)
	}

	jwtValidator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, tokenTTL),
	)
	rateLimit := ratelimitmw.New(rl, log, ratelimitmw.WithReporter(mon))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(metrics.New(nil).Middleware)
	r.Use(middleware.Logger(log))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.AdminToken, mon, log))
		r.Use(middleware.ClientMetadata)
		r.Use(middleware.ContentTypeJSON)
		ratelimithandler.New(rl, log).WithAuditor(mon).RegisterAdmin(r)
		monitorhandler.New(mon, log).RegisterAdmin(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(jwtValidator, mon, log))
		r.Use(middleware.ClientMetadata)
		r.Use(rateLimit.Auto())
		r.Handle("/api/*", upstream)
		r.Handle("/auth/*", upstream)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return seclog.Run(gctx)
	})
	g.Go(func() error {
		if err := scheduler.Start(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if closeErr := seclog.Close(closeCtx); closeErr != nil {
		log.Error("failed to flush secure logs", "error", closeErr)
	}
	return err
}
