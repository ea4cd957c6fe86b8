package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Service       BookingService
	Reconciler    PaymentReconciler
	SigningSecret string
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Log           *zap.Logger
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Patient-facing booking endpoints
	r.Get("/time-slots", listTimeSlotsHandler(cfg.Service))
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Service))

	// Gateway side channel
	r.Post("/payments/webhook", paymentWebhookHandler(cfg.Reconciler, cfg.SigningSecret, cfg.Log))

	return r
}
