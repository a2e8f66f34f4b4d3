// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/okian/rsvp/internal/adapters/http/swagger"
	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
	"github.com/okian/rsvp/pkg/metrics"
)

const defaultMaxBodyBytes = 1 << 20

// Submitter stores one RSVP.
type Submitter interface {
	Submit(ctx context.Context, g model.Guest) (model.Guest, error)
}

// Reader exposes stored RSVPs to the admin routes.
type Reader interface {
	List(ctx context.Context, f model.Filter) ([]model.Guest, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Submitter
	Reader
	Pinger
}

// Server wires HTTP routes for the RSVP API.
type Server struct {
	rsvpHandler   *RSVPHandler
	adminHandler  *AdminHandler
	healthHandler *HealthHandler

	admins       map[string][]byte
	live         http.Handler
	corsOrigins  []string
	maxBodyBytes int64
	qrTarget     string
	logger       logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{maxBodyBytes: defaultMaxBodyBytes, qrTarget: "/"}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named("http")

	s.rsvpHandler = NewRSVPHandler(deps, s.maxBodyBytes, s.logger)
	s.adminHandler = NewAdminHandler(deps, s.logger)
	s.healthHandler = NewHealthHandler(deps)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	r.HandleFunc("/rsvp", MetricsMiddleware(s.rsvpHandler.HandlePost, "rsvp")).Methods(http.MethodPost)
	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/qr", MetricsMiddleware(s.handleQR, "qr")).Methods(http.MethodGet)

	if len(s.admins) == 0 {
		s.logger.Info(context.Background(), "admin routes disabled; no admin users configured")
	} else {
		admin := r.NewRoute().Subrouter()
		admin.Use(BasicAuth(s.admins, "rsvp admin"))
		admin.HandleFunc("/rsvps", MetricsMiddleware(s.adminHandler.HandleList, "rsvps")).Methods(http.MethodGet)
		admin.HandleFunc("/rsvps/stats", MetricsMiddleware(s.adminHandler.HandleStats, "rsvps_stats")).Methods(http.MethodGet)
		if s.live != nil {
			admin.Handle("/rsvps/live", s.live).Methods(http.MethodGet)
		}
	}

	r.MethodNotAllowedHandler = MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, NewKind("api.route", ErrMethodNotAllowed))
	}, "method_not_allowed")
	r.NotFoundHandler = MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, NewKind("api.route", ErrNotFound))
	}, "not_found")
}

// Handler builds the full handler: routes, docs and the global middleware.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := mux.NewRouter()
	swagger.Register(ctx, r)
	s.Register(ctx, r)

	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	})

	return Recover(s.logger, RequestLog(s.logger, c.Handler(r)))
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.qrTarget, http.StatusPermanentRedirect)
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = publicMessage(err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
