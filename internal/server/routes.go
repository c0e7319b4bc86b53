// Package server wires HTTP handlers into a chi router for the Hearth
// application via routing helpers.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter configures the application routes: health check, Prometheus
// metrics, the WebSocket endpoint, and the built-in test page.
func NewRouter(hub *Hub, gateway *Gateway, cfg Config, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/", TestPageHandler)
	r.Get("/healthz", HealthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", WebSocketHandler(hub, gateway, cfg, logger))

	return r
}

// requestLogger logs each completed HTTP request with zerolog.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
