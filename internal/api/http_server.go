package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"druktour/internal/config"
	"druktour/internal/pricing"
	"druktour/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// ReadyCheck is one dependency probed by /readyz and the gRPC health service.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// runChecks returns the names of failing checks, sorted.
func runChecks(ctx context.Context, checks []ReadyCheck) []string {
	var failed []string
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := c.Check(checkCtx); err != nil {
			failed = append(failed, c.Name)
		}
		cancel()
	}
	sort.Strings(failed)
	return failed
}

// Services are the application services the HTTP API drives.
type Services struct {
	Bookings    *service.BookingService
	Itineraries *service.ItineraryService
	Reviews     *service.ReviewService
	Pricing     *pricing.Calculator
	Checks      []ReadyCheck
}

// HTTPServer is the JSON API used by the website and staff tools.
type HTTPServer struct {
	cfg      *config.APIConfig
	svc      Services
	router   *httprouter.Router
	server   *http.Server
	auth     *HTTPAuth
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc Services, limiter *rateLimiter, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if limiter == nil {
		limiter = newRateLimiter(cfg)
	}

	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		router:   httprouter.New(),
		auth:     NewHTTPAuth(cfg, limiter),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
	srv.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	srv.router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	srv.routes()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: nonEmpty(
			"Content-Type", headerEditorID, headerEditorRole, requestIDHeader,
			cfg.Auth.HeaderAPIKey, cfg.Auth.HeaderExtra,
		),
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(srv.auth.Wrap(srv.router))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           loggingMiddleware(logger, corsHandler),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() {
	s.route(http.MethodGet, "/healthz", "", s.handleHealth)
	s.route(http.MethodGet, "/readyz", "", s.handleReady)

	s.route(http.MethodPut, "/api/v1/bookings/:bookingID", permWriteBookings, s.handleImportBooking)
	s.route(http.MethodGet, "/api/v1/bookings/:bookingID/itinerary", permReadItinerary, s.handleGetItinerary)
	s.route(http.MethodGet, "/api/v1/bookings/:bookingID/itinerary/export", permReadItinerary, s.handleExportItinerary)
	s.route(http.MethodGet, "/api/v1/bookings/:bookingID/changes", permReadItinerary, s.handleListChanges)
	s.route(http.MethodGet, "/api/v1/bookings/:bookingID/approvals", permReadItinerary, s.handleListBookingApprovals)

	s.route(http.MethodPost, "/api/v1/bookings/:bookingID/session", permEditItinerary, s.handleStartSession)
	s.route(http.MethodGet, "/api/v1/bookings/:bookingID/session", permEditItinerary, s.handleGetSession)
	s.route(http.MethodDelete, "/api/v1/bookings/:bookingID/session", permEditItinerary, s.handleCancelSession)
	s.route(http.MethodPatch, "/api/v1/bookings/:bookingID/session/days/:dayID", permEditItinerary, s.handleUpdateDayField)
	s.route(http.MethodPost, "/api/v1/bookings/:bookingID/session/days/:dayID/activities", permEditItinerary, s.handleAddActivity)
	s.route(http.MethodPut, "/api/v1/bookings/:bookingID/session/days/:dayID/activities/:index", permEditItinerary, s.handleUpdateActivity)
	s.route(http.MethodDelete, "/api/v1/bookings/:bookingID/session/days/:dayID/activities/:index", permEditItinerary, s.handleRemoveActivity)
	s.route(http.MethodPost, "/api/v1/bookings/:bookingID/session/save", permEditItinerary, s.handleSave)
	s.route(http.MethodPost, "/api/v1/bookings/:bookingID/session/approval", permEditItinerary, s.handleOpenApproval)
	s.route(http.MethodPut, "/api/v1/bookings/:bookingID/session/approval", permEditItinerary, s.handleSetSummary)
	s.route(http.MethodDelete, "/api/v1/bookings/:bookingID/session/approval", permEditItinerary, s.handleCloseApproval)
	s.route(http.MethodPost, "/api/v1/bookings/:bookingID/session/approval/submit", permEditItinerary, s.handleSubmit)

	s.route(http.MethodGet, "/api/v1/approvals", permReviewItinerary, s.handleListApprovals)
	s.route(http.MethodGet, "/api/v1/approvals/:requestID", permReviewItinerary, s.handleGetApproval)
	s.route(http.MethodPost, "/api/v1/approvals/:requestID/decision", permReviewItinerary, s.handleDecide)

	s.route(http.MethodGet, "/api/v1/payments/quote", permReadPricing, s.handleQuote)
}

// route registers h and wraps it with the route label and permission check.
func (s *HTTPServer) route(method, path, permission string, h httprouter.Handle) {
	s.router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if info := routeInfo(r.Context()); info != nil {
			info.route = method + " " + path
		}
		if !s.auth.authorize(r, permission) {
			writeError(w, http.StatusForbidden, errPermissionDenied.Error())
			return
		}
		h(w, r, ps)
	})
}

func nonEmpty(vals ...string) []string {
	out := vals[:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Handler is the full middleware stack, exposed for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
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

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if failed := runChecks(r.Context(), s.svc.Checks); len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
