package api

import (
	"net/http"
	"time"

	"ai-trader/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout(cfg)))
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)

		r.Post("/ai/analyze", h.HandleAnalyze)

		r.Route("/trading", func(r chi.Router) {
			r.Post("/execute", h.HandleExecuteTrade)
			r.Post("/cancel-all", h.HandleCancelAll)
		})

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", h.HandleGetPortfolio)
			r.Get("/history", h.HandleGetPortfolioHistory)
		})

		r.Route("/auto", func(r chi.Router) {
			r.Get("/", h.HandleGetAutoTrading)
			r.Post("/start", h.HandleStartAutoTrading)
			r.Post("/stop", h.HandleStopAutoTrading)
		})

		// Run journal
		r.Get("/runs", h.HandleGetRuns)
		r.Get("/runs/{id}", h.HandleGetRun)
		r.Get("/trades", h.HandleGetTrades)
	})

	return r
}

// RequestTimeout bounds a request by the advisor and order timeouts plus headroom for
// the exchange reads around them
func RequestTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Advisor.TimeoutSeconds+cfg.Exchange.OrderTimeoutSeconds+15) * time.Second
}

// CORSMiddleware returns CORS middleware with the specified allowed origins
func CORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
