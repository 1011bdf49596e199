package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/citasalud/citasalud-api/internal/appointments"
	httpmiddleware "github.com/citasalud/citasalud-api/internal/http/middleware"
	"github.com/citasalud/citasalud-api/internal/schedule"
	"github.com/citasalud/citasalud-api/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *appointments.Handler
	ScheduleHandler     *schedule.Handler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// BookingRateLimit throttles booking writes per client IP,
	// requests per second. Zero disables throttling.
	BookingRateLimit float64
	BookingBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.AppointmentsHandler != nil {
			api.Route("/availability/{doctorID}", func(r chi.Router) {
				r.Get("/", cfg.AppointmentsHandler.ListSlots)
				r.Get("/next", cfg.AppointmentsHandler.NextSlots)
			})

			api.Route("/appointments", func(r chi.Router) {
				if cfg.BookingRateLimit > 0 {
					r.With(httpmiddleware.RateLimit(cfg.BookingRateLimit, cfg.BookingBurst)).
						Post("/", cfg.AppointmentsHandler.Book)
				} else {
					r.Post("/", cfg.AppointmentsHandler.Book)
				}
				r.Get("/", cfg.AppointmentsHandler.List)
				r.Get("/{id}", cfg.AppointmentsHandler.Get)
				r.Post("/{id}/confirm", cfg.AppointmentsHandler.Confirm)
				r.Post("/{id}/cancel", cfg.AppointmentsHandler.Cancel)
				r.Post("/{id}/complete", cfg.AppointmentsHandler.Complete)
				r.Patch("/{id}/reschedule", cfg.AppointmentsHandler.Reschedule)
			})
		}

		if cfg.ScheduleHandler != nil {
			api.Route("/schedule", func(r chi.Router) {
				r.Post("/rules", cfg.ScheduleHandler.CreateRule)
				r.Get("/rules/{doctorID}", cfg.ScheduleHandler.ListRules)
				r.Put("/rules/{ruleID}", cfg.ScheduleHandler.UpdateRule)
				r.Delete("/rules/{ruleID}", cfg.ScheduleHandler.DeleteRule)
				r.Post("/exceptions", cfg.ScheduleHandler.CreateException)
				r.Get("/exceptions/{doctorID}", cfg.ScheduleHandler.ListExceptions)
				r.Delete("/exceptions/{exceptionID}", cfg.ScheduleHandler.DeleteException)
			})
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
