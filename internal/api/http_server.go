package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"slotbook/internal/config"
	"slotbook/internal/domain"
	"slotbook/internal/metrics"
	"slotbook/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API servers dispatch to.
type Deps struct {
	Bookings *service.BookingService
	Catalog  *service.CatalogService
	Reviews  *service.ReviewService
	Store    Pinger
	Limiter  domain.RateLimiter
	// Location interprets date query parameters; UTC when nil.
	Location *time.Location
	// RequestTimeout cancels API requests that run longer; zero disables it.
	RequestTimeout time.Duration
}

func (d Deps) location() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

// HTTPServer exposes the booking API over JSON.
type HTTPServer struct {
	cfg    *config.APIConfig
	deps   Deps
	auth   *Authenticator
	server *http.Server
	log    zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:  cfg,
		deps: deps,
		auth: NewAuthenticator(cfg, deps.Limiter, logger),
		log:  log,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if s.deps.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.deps.RequestTimeout))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		public := r.With(s.auth.Public())
		public.Get("/services", s.handleSearchServices)
		public.Get("/services/{serviceID}", s.handleServiceDetail)
		public.Get("/services/{serviceID}/availability", s.handleAvailability)
		public.Get("/services/{serviceID}/reviews/stats", s.handleServiceRatingStats)
		public.Get("/companies", s.handleSearchCompanies)

		r.Route("/bookings", func(r chi.Router) {
			r.With(s.auth.Require(permRead)).Get("/", s.handleListBookings)
			r.With(s.auth.Require(permWrite)).Post("/", s.handleCreateBooking)
			r.With(s.auth.Require(permRead)).Get("/{bookingID}", s.handleGetBooking)
			r.With(s.auth.Require(permWrite)).Patch("/{bookingID}/cancel", s.handleCancelBooking)
			r.With(s.auth.Require(permManage)).Patch("/{bookingID}/status", s.handleUpdateStatus)
		})

		r.With(s.auth.Require(permWrite)).Post("/companies", s.handleCreateCompany)

		r.Route("/reviews", func(r chi.Router) {
			r.With(s.auth.Public()).Get("/", s.handleListReviews)
			r.With(s.auth.Public()).Get("/{reviewID}", s.handleGetReview)
			r.With(s.auth.Require(permWrite)).Post("/", s.handleCreateReview)
			r.With(s.auth.Require(permWrite)).Patch("/{reviewID}", s.handleUpdateReview)
			r.With(s.auth.Require(permWrite)).Delete("/{reviewID}", s.handleDeleteReview)
		})

		r.Route("/companies/{companyID}", func(r chi.Router) {
			r.With(s.auth.Public()).Get("/", s.handleCompanyDetail)
			r.With(s.auth.Public()).Get("/reviews/stats", s.handleCompanyRatingStats)
			r.With(s.auth.Require(permRead)).Get("/services", s.handleListServices)

			manage := r.With(s.auth.Require(permManage))
			manage.Get("/bookings", s.handleCompanyBookings)
			manage.Get("/bookings/export", s.handleExport)
			manage.Get("/windows", s.handleListWindows)
			manage.Post("/windows", s.handleAddWindow)
			manage.Patch("/windows/{windowID}", s.handleUpdateWindow)
			manage.Delete("/windows/{windowID}", s.handleDeleteWindow)
			manage.Post("/services", s.handleCreateService)
			manage.Patch("/services/{serviceID}", s.handleSetServiceActive)
			manage.Get("/stats", s.handleStats)
		})

		r.With(s.auth.Require(permAdmin)).Get("/admin/companies/pending", s.handlePendingCompanies)
		r.With(s.auth.Require(permAdmin)).Patch("/admin/companies/{companyID}/status", s.handleCompanyStatus)
	})

	return r
}

// Handler is the fully wired router.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		metrics.IncHTTP(r.Method+" "+route, fmt.Sprint(code))

		s.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", code).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// fail writes err as a JSON error. Internal failures are logged and hidden.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, reason := httpStatus(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = "internal error"
	}
	writeError(w, code, reason, msg)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message, "code": code})
}
