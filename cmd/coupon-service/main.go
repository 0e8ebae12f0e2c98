package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Cheertaboi/storefront-coupon-service/internal/api"
	"github.com/Cheertaboi/storefront-coupon-service/internal/config"
	"github.com/Cheertaboi/storefront-coupon-service/internal/events"
	"github.com/Cheertaboi/storefront-coupon-service/internal/metrics"
	"github.com/Cheertaboi/storefront-coupon-service/internal/orchestrator"
	"github.com/Cheertaboi/storefront-coupon-service/internal/repository"
	"github.com/Cheertaboi/storefront-coupon-service/internal/service"
	"github.com/Cheertaboi/storefront-coupon-service/internal/store"
	"github.com/Cheertaboi/storefront-coupon-service/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	logger := newLogger(cfg.Log)
	log.Logger = logger

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()

	if cfg.Database.RunMigrations {
		if err := db.RunMigrations(cfg.Database.DSN, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrations")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var pub events.Publisher = events.NopPublisher{}
	if cfg.AMQP.URL != "" {
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp connect")
		}
		defer conn.Close()

		p, err := events.NewAMQPPublisher(conn)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp publisher")
		}
		defer p.Close()
		pub = p
		logger.Info().Str("exchange", events.EventsExchange).Msg("publishing coupon events")
	}

	svc := service.NewCouponService(repository.NewCouponRepo(pool), pub, m, service.Options{
		Timeout: cfg.Service.RequestTimeout,
		FanOut:  cfg.Service.FanOut,
	})

	deps := api.Deps{
		Logger:   logger,
		Coupons:  svc,
		Metrics:  m,
		Gatherer: reg,
	}
	if cfg.Orchestrator.Enabled {
		codes, closeStore := newCodeStore(ctx, cfg.Redis, logger)
		defer closeStore()
		deps.Carts = orchestrator.NewRegistry(svc, codes, orchestrator.Options{
			CallTimeout: cfg.Orchestrator.CallTimeout,
			IdleTTL:     cfg.Orchestrator.SessionIdleTTL,
		})
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("http server shutdown")
		}
		close(idleConnsClosed)
	}()

	logger.Info().Str("addr", cfg.HTTP.Addr).Msg("starting coupon-service")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("listen")
	}

	<-idleConnsClosed
	logger.Info().Msg("server stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, _ := zerolog.ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.With().Timestamp().Str("service", "coupon-service").Logger()
}

// newCodeStore falls back to process memory when Redis is not configured.
func newCodeStore(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (store.CodeStore, func()) {
	if cfg.Addr == "" {
		logger.Warn().Msg("REDIS_ADDR not set, applied codes are kept in memory")
		return store.NewMemoryStore(), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Addr).Msg("redis connect")
	}
	return store.NewRedisStore(rdb, cfg.TTL), func() { _ = rdb.Close() }
}
