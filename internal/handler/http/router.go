package http

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dhanbg/traditionalalley-sub002/pkg/health"
	"github.com/dhanbg/traditionalalley-sub002/pkg/middleware"
)

// NewRouter builds the HTTP router with the full middleware stack, health
// endpoints, Prometheus metrics, and the cart API.
func NewRouter(cartHandler *CartHandler, healthHandler *health.Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics())
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(UserIDFromHeader)

		r.Get("/", cartHandler.GetCart)
		r.Post("/items", cartHandler.AddItem)
		r.Put("/items/{localId}/quantity", cartHandler.UpdateQuantity)
		r.Delete("/items/{localId}", cartHandler.RemoveItem)
		r.Post("/items/{localId}/toggle", cartHandler.ToggleSelection)
		r.Post("/selection", cartHandler.SetSelection)
		r.Post("/reconcile", cartHandler.Reconcile)
		r.Delete("/session", cartHandler.TeardownSession)
	})

	return r
}
