package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/carebook/clinic-booking/internal/booking"
	"github.com/carebook/clinic-booking/internal/config"
	"github.com/carebook/clinic-booking/internal/db"
	"github.com/carebook/clinic-booking/internal/logger"
)

// The anomaly worker periodically reports appointments stuck in pending.
// Payment state only moves through the gateway's webhook, so the worker
// never mutates anything; a pending appointment well past the checkout
// window means a notification was lost or never sent, and an operator has
// to replay it against the gateway.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() {
		_ = zlog.Sync()
	}()

	zlog.Info("anomaly-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("stale_after", cfg.StaleAfter),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		zlog.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zlog.Info("connected to Postgres")

	store := booking.NewPgStore(pgPool)

	// Run once at startup
	runOnce(rootCtx, store, cfg.StaleAfter, zlog)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			zlog.Info("shutdown signal received, stopping anomaly worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, store, cfg.StaleAfter, zlog)
		}
	}
}

func runOnce(ctx context.Context, store booking.Store, staleAfter time.Duration, zlog *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	stale, err := store.FindStalePending(runCtx, time.Now().Add(-staleAfter))
	if err != nil {
		zlog.Error("anomaly scan failed", zap.Error(err))
		return
	}

	for _, appt := range stale {
		zlog.Error("reconciliation anomaly: appointment stuck in pending",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("patient_id", appt.PatientID.String()),
			zap.String("slot_id", appt.SlotID.String()),
			zap.Time("created_at", appt.CreatedAt),
		)
	}

	zlog.Info("anomaly scan complete",
		zap.Int("stale_pending", len(stale)),
		zap.Duration("took", time.Since(start)),
	)
}
