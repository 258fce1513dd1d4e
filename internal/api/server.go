// Package api exposes the place lifecycle engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/ledger"
	"github.com/sells-group/placepulse/internal/maintenance"
	"github.com/sells-group/placepulse/internal/metrics"
	"github.com/sells-group/placepulse/internal/resolver"
)

// Config holds HTTP server settings.
type Config struct {
	Port           int
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Deps are the services behind the routes. Resolver and Sweep may be nil;
// their routes then answer 502 and 503.
type Deps struct {
	Ledger   *ledger.Ledger
	Sweep    *maintenance.Sweep
	Resolver *resolver.Resolver
}

// Server is the HTTP server.
type Server struct {
	srv *http.Server
}

// NewServer builds the server and its router.
func NewServer(cfg Config, deps Deps) *Server {
	return &Server{srv: &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// ListenAndServe blocks until the server stops. A graceful shutdown is not
// an error.
func (s *Server) ListenAndServe() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// NewRouter wires middleware and routes.
func NewRouter(cfg Config, deps Deps) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handler{deps: deps}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Route("/places", func(r chi.Router) {
			r.Get("/", h.listPlaces)
			r.Post("/endorse", h.endorse)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getPlace)
				r.Get("/history", h.history)
				r.Post("/downvote", h.downvote)
				r.Post("/renew", h.renew)
				r.Post("/unhide", h.unhide)
			})
		})
		r.Get("/stats", h.stats)
		r.Get("/resolve", h.resolve)
		r.Post("/maintenance", h.maintenance)
	})

	return r
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
