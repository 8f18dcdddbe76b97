// Package api provides the HTTP JSON API for niftypulse.
//
// It exposes the same market snapshots as the CLI: constituents, top
// movers, index performance, overviews, price history, headlines and the
// combined dashboard, plus health and Prometheus metrics endpoints.
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
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/seenimoa/niftypulse/internal/config"
	"github.com/seenimoa/niftypulse/internal/datasource"
	"github.com/seenimoa/niftypulse/internal/logging"
	"github.com/seenimoa/niftypulse/internal/metrics"
)

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	market  datasource.MarketData
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewServer creates a configured API server with all routes and middleware.
// m may be nil, in which case /metrics is not mounted.
func NewServer(cfg *config.Config, market datasource.MarketData, m *metrics.Metrics, logger *zap.Logger) *Server {
	srv := &Server{
		cfg:     cfg,
		market:  market,
		metrics: m,
		logger:  logging.OrNop(logger),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Market data
		r.Route("/market", func(r chi.Router) {
			r.Get("/tickers", s.handleTickers)
			r.Get("/movers", s.handleMovers)
			r.Get("/indices", s.handleIndices)
			r.Get("/headlines", s.handleHeadlines)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/overview", s.handleOverview)
			r.Get("/overview/{symbol}", s.handleOverview)
			r.Get("/history/{symbol}", s.handleHistory)
		})

		// Configuration (read-only)
		r.Get("/config", s.handleGetConfig)
		r.Get("/config/settings", s.handleGetSettings)
	})

	return r
}

// requestLogger logs one line per request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("code", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ============================================================
// Response envelope
// ============================================================

// APIResponse is the standard JSON envelope. Status carries the retrieval
// status ("ok", "empty", "transport_error", "parse_error") of market
// endpoints; Success is true only for "ok".
type APIResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
}

// writeResult answers 200 with the envelope of a retrieval result. Upstream
// unavailability is data, not an HTTP failure.
func writeResult[T any](w http.ResponseWriter, res datasource.Result[T]) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: res.OK(),
		Status:  string(res.Status),
		Data:    res.Data,
		Error:   res.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
