package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rifalabs/raffle-engine/internal/observability"
	"github.com/rifalabs/raffle-engine/internal/rateLimit"
)

func NewRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/raffles", func(r chi.Router) {
		r.Use(IdentityMiddleware)
		r.Use(RateLimitMiddleware(rl))
		r.Use(IdempotencyKeyMiddleware)

		r.Post("/", h.CreateRaffle)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/tickets", h.PurchaseTickets)
			r.Get("/tickets", h.ListSoldNumbers)
			r.Post("/confirm", h.ConfirmPayment)
			r.Post("/draw", h.DrawWinners)
			r.Get("/draw", h.GetDrawResult)
		})
	})

	return r
}
