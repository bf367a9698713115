// cmd/coach-runtime/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"flowcoach/internal/cards"
	"flowcoach/internal/chat"
	"flowcoach/internal/common/config"
	"flowcoach/internal/common/database"
	"flowcoach/internal/common/logger"
	"flowcoach/internal/common/observability"
	"flowcoach/internal/events"
	"flowcoach/internal/mandate"
	"flowcoach/internal/notify"
	"flowcoach/internal/reconcile"
	"flowcoach/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting coach runtime...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("coach-runtime")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init API Clients ---
	apiTimeout := config.GetDuration(cfg.API.Timeout)

	mandateClient := mandate.NewClient(cfg.API.BaseURL, cfg.API.BearerToken, apiTimeout, log)
	cardsClient := cards.NewClient(
		cfg.API.BaseURL, cfg.API.BearerToken, apiTimeout,
		redis.GetClient(), config.GetDuration(cfg.Coach.CatalogCacheTTL), log,
	)

	// --- Wire Workflow Components ---
	bus := events.NewBus()
	journal := store.NewJournal(pg.GetDB(), log)
	notices := notify.NewHandler(&notify.LogSink{Logger: log}, log)

	conversation := chat.NewConversation(mandateClient, bus, journal, notices, cfg.Coach.ProposalMessage, log)
	defer conversation.Close()

	reconciler := reconcile.NewReconciler(mandateClient, cardsClient, bus, notices, log)
	defer reconciler.Close()

	// Prime the authoritative list before serving interactions.
	if err := reconciler.Refresh(ctx); err != nil {
		zapLog.Warn("initial linked-cards refresh failed", zap.Error(err))
	}

	zapLog.Info("Workflow components wired successfully")

	// --- Periodic Authoritative Refresh ---
	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go func() {
		ticker := time.NewTicker(config.GetDuration(cfg.Coach.RefreshInterval))
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				if err := reconciler.Refresh(refreshCtx); err != nil {
					zapLog.Warn("linked-cards refresh failed", zap.Error(err))
				}
			}
		}
	}()

	// --- Health & Metrics Server ---
	if cfg.Metrics.Enabled {
		go func() {
			http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "healthy",
					"time":   time.Now().Format(time.RFC3339),
				})
			})
			http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "ready",
					"time":   time.Now().Format(time.RFC3339),
				})
			})
			http.Handle("/metrics", promhttp.Handler())
			zapLog.Info("Health/Metrics server listening on " + cfg.Metrics.Address)
			if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping coach runtime...")
	stopRefresh()

	zapLog.Info("Coach runtime stopped gracefully")
}
