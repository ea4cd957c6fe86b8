package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/carebook/clinic-booking/internal/api"
	"github.com/carebook/clinic-booking/internal/booking"
	"github.com/carebook/clinic-booking/internal/config"
	"github.com/carebook/clinic-booking/internal/db"
	"github.com/carebook/clinic-booking/internal/logger"
	"github.com/carebook/clinic-booking/internal/payments"
	redisclient "github.com/carebook/clinic-booking/internal/redis"
)

const version = "0.3.0"

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

	zlog.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		zlog.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zlog.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		zlog.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			zlog.Warn("error closing redis", zap.Error(err))
		}
	}()
	zlog.Info("connected to Redis")

	store := booking.NewPgStore(pgPool)
	locker := redisclient.NewRedisPatientLocker(rdb, cfg.LockTTL)
	gateway := payments.NewStripeGateway(payments.StripeConfig{
		APIKey:      cfg.StripeAPIKey,
		ProductName: cfg.CheckoutProductName,
		SuccessURL:  cfg.CheckoutSuccessURL,
		CancelURL:   cfg.CheckoutCancelURL,
		Timeout:     cfg.GatewayTimeout,
	}, zlog.Named("stripe"))

	engine := booking.NewEngine(store, gateway, locker, booking.Fee{
		Amount:   cfg.FeeAmount,
		Currency: cfg.FeeCurrency,
	}, zlog.Named("engine"))
	reconciler := booking.NewReconciler(store, zlog.Named("reconciler"))

	router := api.NewRouter(api.RouterConfig{
		Service:       engine,
		Reconciler:    reconciler,
		SigningSecret: cfg.StripeWebhookSecret,
		PgPool:        pgPool,
		Redis:         rdb,
		Log:           zlog.Named("http"),
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		zlog.Info("listening", zap.String("addr", srv.Addr))
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("http server error", zap.Error(err))
		}
	case <-rootCtx.Done():
		zlog.Info("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			zlog.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}
