package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"netscope/internal/domain"
	"netscope/internal/infra"
)

const (
	requestIDHeader = "X-Request-ID"
	unmatchedRoute  = "unmatched"
)

// Dependencies are the collaborators of the HTTP API.
type Dependencies struct {
	Telemetry  Ingester
	Aggregator Aggregator
	Health     HealthChecker
	Pinger     domain.Pinger
	Logger     *infra.Logger
	Config     infra.Config
	// Backend is the speed-test upstream; nil leaves the proxy unmounted.
	Backend *url.URL
}

// NewRouter wires the routes, middleware and rate limiters.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Telemetry == nil || deps.Aggregator == nil || deps.Health == nil || deps.Pinger == nil {
		return nil, errors.New("http api: telemetry, aggregator, health and pinger are required")
	}

	general, err := NewRateLimiter("general", deps.Config.GeneralRateLimit)
	if err != nil {
		return nil, err
	}
	api, err := NewRateLimiter("api", deps.Config.APIRateLimit)
	if err != nil {
		return nil, err
	}
	submissions, err := NewRateLimiter("telemetry", deps.Config.TelemetryRateLimit)
	if err != nil {
		return nil, err
	}

	h := &handler{
		telemetry:    deps.Telemetry,
		aggregator:   deps.Aggregator,
		health:       deps.Health,
		pinger:       deps.Pinger,
		logger:       deps.Logger,
		exposeDetail: deps.Config.IsDevelopment(),
	}

	root := chi.NewRouter()
	root.Use(
		middleware.CleanPath,
		requestContext(deps.Logger),
		infra.HTTPMiddleware(routePattern),
		middleware.Recoverer,
	)

	if deps.Backend != nil {
		proxy := NewProxy(deps.Backend, deps.Logger)
		root.Handle(ProxyPrefix, proxy)
		root.Handle(ProxyPrefix+"/*", proxy)
	}

	app := chi.NewRouter()
	app.Use(corsHandler(deps.Config.FrontendURL).Handler, general.Middleware)
	app.Get("/health", h.handleHealth)
	app.Route("/speedtest/results", func(r chi.Router) {
		r.Use(submissions.Middleware, h.requireDatabase)
		r.Post("/", h.handleTelemetry)
		r.Post("/telemetry.php", h.handleTelemetry)
	})
	app.Route("/api", func(r chi.Router) {
		r.Use(api.Middleware, h.requireDatabase)
		r.Get("/average-speed", h.handleAverageSpeed)
	})
	root.Mount("/", app)

	return root, nil
}

func corsHandler(frontendURL string) *cors.Cors {
	origins := []string{"*"}
	if frontendURL != "" {
		origins = []string{frontendURL}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type", "Authorization", "Content-Encoding", "Accept", "Origin",
			"X-Requested-With", "Access-Control-Request-Method", "Access-Control-Request-Headers",
		},
		ExposedHeaders:   []string{"Content-Encoding", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	})
}

// requestContext attaches a correlation id and logs each completed request.
func requestContext(logger *infra.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)
			ctx := infra.WithCorrelationID(r.Context(), id)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.Infow(ctx, "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}

// Server exposes the HTTP transport.
type Server struct {
	httpServer *http.Server
	logger     *infra.Logger
}

// NewServer returns a server for handler listening on port.
func NewServer(port string, handler http.Handler, logger *infra.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe blocks until the server stops; a clean shutdown returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.logger.Printf(ctx, "http server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP allows Server to satisfy the http.Handler interface directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
