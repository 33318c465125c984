package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/engine"
	"github.com/example/ride-dispatch/internal/geo"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var store storage.OrderStore
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			if err := runMigrations(cfg.PGDSN); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		store = pg
		logger.Info("using postgres order store")
	} else {
		store = storage.NewMemoryStore()
		logger.Warn("PG_DSN not set, using in-memory order store")
	}

	registry := presence.NewRegistry()

	var journal *notify.Journal
	var locations *ingest.Producer
	if len(cfg.KafkaBrokers) > 0 {
		journal = notify.NewJournal(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		defer journal.Close()
		locations = ingest.NewProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic)
		defer locations.Close()
	}
	bus := notify.NewBus(registry, journal, logger)

	var geoIdx geo.Index
	if cfg.RedisAddr != "" {
		geoIdx = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		logger.Info("using redis candidate index", "addr", cfg.RedisAddr)
	}

	eng := &engine.Engine{
		Store:      store,
		Bus:        bus,
		Drivers:    registry,
		Candidates: geoIdx,
		Pricing:    pricing.Config{BaseFare: cfg.BaseFare, PerKmRate: cfg.PerKmRate, MinimumFare: cfg.MinimumFare},
		Currency:   cfg.Currency,
		RadiusKm:   cfg.MatchRadiusKm,
		TopN:       cfg.MatchTopN,
		Log:        logger,
	}
	if key := os.Getenv("STRIPE_API_KEY"); key != "" {
		eng.Payments = payments.NewStripeClient(key)
		logger.Info("payment holds enabled")
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	api := httpapi.NewServer(eng, registry, bus, geoIdx, locations, verifier, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.BroadcastTTL > 0 {
		go expiryJanitor(ctx, eng, cfg.BroadcastTTL, logger)
	}

	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// expiryJanitor sweeps overdue broadcasts so unaccepted orders do not linger
// forever. The sweep interval tracks the TTL but stays within sane bounds.
func expiryJanitor(ctx context.Context, eng *engine.Engine, ttl time.Duration, logger *slog.Logger) {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := eng.ExpireOverdue(ctx, ttl)
			if err != nil {
				logger.Error("expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired overdue broadcasts", "count", n)
			}
		}
	}
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_orders.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
