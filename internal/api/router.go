package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduling/internal/metrics"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service   *scheduling.Service
	Collector *metrics.Collector
	Logger    *zap.Logger
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Collector))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/appointments", createAppointmentHandler(cfg.Service, cfg.Collector))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service, cfg.Collector))
	r.Post("/appointments/{id}/check-in", checkInHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Service))
	r.Post("/appointments/{id}/complete", completeHandler(cfg.Service))
	r.Post("/appointments/{id}/no-show", noShowHandler(cfg.Service))

	r.Get("/doctors/{id}/availability", doctorAvailabilityHandler(cfg.Service))

	return r
}
