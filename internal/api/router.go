package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/auth"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/healthrecord"
	"github.com/hackgods/clinic-portal/internal/referral"
)

type RouterConfig struct {
	Appointments   *appointment.Service
	HealthRecords  *healthrecord.Service
	Referrals      *referral.Service
	Tokens         *auth.Tokens
	Log            logrus.FieldLogger
	MaxUploadBytes int64
	PgPool         *pgxpool.Pool // optional
	Redis          *redis.Client // optional
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 5 << 20
	}
	h := &handlers{
		appointments: cfg.Appointments,
		records:      cfg.HealthRecords,
		referrals:    cfg.Referrals,
		maxUpload:    maxUpload,
		validate:     fault.NewValidator(),
		log:          cfg.Log,
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api/user", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Log))

		r.Get("/departments", h.listDepartments)
		r.Get("/check-slot", h.checkSlot)

		r.Get("/appointments", h.listAppointments)
		r.Post("/book-appointment", h.bookAppointment)
		r.Post("/cancel-appointment", h.cancelAppointment)
		r.Delete("/delete-appointment/{id}", h.deleteAppointment)

		r.Get("/health-records", h.listHealthRecords)
		r.Post("/health-record", h.createHealthRecord)
		r.Delete("/health-record/{id}", h.deleteHealthRecord)

		r.Post("/mark-as-read", h.markAsRead)
		r.Get("/referral/{ref}", h.getReferral)
	})

	return r
}
