package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Cheertaboi/storefront-coupon-service/internal/api/handlers"
	"github.com/Cheertaboi/storefront-coupon-service/internal/api/middleware"
	"github.com/Cheertaboi/storefront-coupon-service/internal/metrics"
	"github.com/Cheertaboi/storefront-coupon-service/internal/orchestrator"
)

// Deps are the router's collaborators. Carts and Gatherer are optional: without them the
// /api/carts and /metrics routes are not mounted.
type Deps struct {
	Logger   zerolog.Logger
	Coupons  handlers.CouponService
	Carts    *orchestrator.Registry
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// NewRouter builds the HTTP router for the coupon-service
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.CorrelationID,
		middleware.Logger(d.Logger),
		middleware.Recover,
		middleware.Metrics(d.Metrics),
	)

	couponHandler := handlers.NewCouponHandler(d.Coupons)

	// Public coupon endpoints
	r.Route("/api/coupons", func(r chi.Router) {
		r.Post("/apply", couponHandler.Apply)
		r.Post("/auto-apply", couponHandler.AutoApply)
		r.Post("/revalidate", couponHandler.Revalidate)
	})

	if d.Carts != nil {
		cartHandler := handlers.NewCartHandler(d.Carts)
		r.Route("/api/carts/{cartID}", func(r chi.Router) {
			r.Get("/coupons", cartHandler.Summary)
			r.Post("/coupons", cartHandler.Apply)
			r.Delete("/coupons/{code}", cartHandler.Remove)
			r.Post("/revalidate", cartHandler.Revalidate)
			r.Post("/auto-apply", cartHandler.AutoApply)
		})
	}

	// Admin endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Post("/coupons", couponHandler.CreateCoupon)
		r.Get("/coupons/{code}", couponHandler.GetCoupon)
		r.Post("/coupons/{code}/deactivate", couponHandler.DeactivateCoupon)
	})

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
