// Package api serves the todo item REST endpoints next to the WebSocket hub,
// the diagnostics endpoints and the Prometheus scrape handler.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/drblury/todobridge/internal/events"
	"github.com/drblury/todobridge/internal/record"
	errspkg "github.com/drblury/todobridge/internal/runtime/errors"
	"github.com/drblury/todobridge/internal/runtime/jsoncodec"
	"github.com/drblury/todobridge/internal/runtime/logging"
)

const (
	TodoItemsPath = "/api/todoitems"
	HubPath       = "/ws/todos"
	StatusPath    = "/api/status"
	HealthPath    = "/healthz"
	MetricsPath   = "/metrics"
)

// Dependencies are the collaborators of the HTTP surface. Store is required;
// nil optional handlers leave their route unmounted.
type Dependencies struct {
	Store  record.Store
	Events events.Sink
	Logger logging.ServiceLogger

	// Hub is mounted on HubPath.
	Hub http.Handler
	// Status renders the body of StatusPath.
	Status func() any
	// Metrics is mounted on MetricsPath.
	Metrics http.Handler

	CORSAllowedOrigins []string
	Now                func() time.Time
}

type server struct {
	store   record.Store
	events  events.Sink
	logger  logging.ServiceLogger
	origins []string
	now     func() time.Time
}

// NewRouter builds the HTTP handler tree.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errspkg.ErrStoreRequired
	}
	s := &server{
		store:   deps.Store,
		events:  deps.Events,
		logger:  deps.Logger,
		origins: deps.CORSAllowedOrigins,
		now:     deps.Now,
	}
	if s.events == nil {
		s.events = events.NewMulti()
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Route(TodoItemsPath, func(r chi.Router) {
		r.Get("/", s.listTodos)
		r.Post("/", s.createTodo)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getTodo)
			r.Put("/", s.replaceTodo)
			r.Patch("/", s.patchTodo)
			r.Delete("/", s.deleteTodo)
		})
	})

	if deps.Hub != nil {
		r.Handle(HubPath, deps.Hub)
	}
	if deps.Status != nil {
		status := deps.Status
		r.Get(StatusPath, func(w http.ResponseWriter, _ *http.Request) {
			s.writeJSON(w, http.StatusOK, status())
		})
	}
	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Handle(MetricsPath, deps.Metrics)
	}

	return otelhttp.NewHandler(r, "todobridge.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	), nil
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := logging.LogFields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Warn("http request failed", fields)
			return
		}
		s.logger.Debug("http request", fields)
	})
}

func (s *server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.origins) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if allowed := s.allowedOrigin(r.Header.Get("Origin")); allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Expose-Headers", "Location")
			if allowed != "*" {
				h.Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not configured.
func (s *server) allowedOrigin(origin string) string {
	for _, allowed := range s.origins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := jsoncodec.Marshal(body)
	if err != nil {
		s.logger.Error("failed to encode response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}

// writeStoreError maps a failed store call to a response.
func (s *server) writeStoreError(w http.ResponseWriter, op string, err error) {
	var verr *record.ValidationError
	switch {
	case errors.Is(err, record.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Item not found")
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, verr.Error())
	default:
		s.logger.Error("record store call failed", err, logging.LogFields{"operation": op})
		s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
