// Package handler exposes the HTTP API: coupon preview and administration,
// order placement, and the product catalog.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openkart/coupon-service/internal/domain/coupon"
	"github.com/openkart/coupon-service/internal/domain/order"
	"github.com/openkart/coupon-service/internal/domain/product"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler wires HTTP routes to the domain services.
type Handler struct {
	products     product.Repository
	coupons      coupon.Evaluator
	couponAdmin  coupon.Repository
	orderService *order.Service
	security     *Security
	imageBaseURL string
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	coupons coupon.Evaluator,
	couponAdmin coupon.Repository,
	orderService *order.Service,
	security *Security,
) *Handler {
	return &Handler{
		products:     products,
		coupons:      coupons,
		couponAdmin:  couponAdmin,
		orderService: orderService,
		security:     security,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns the chi router for the /api mount point.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)

	r.Post("/coupons/apply", h.ApplyCoupon)
	r.Post("/orders", h.PlaceOrder)

	// Admin surface, API-key protected.
	r.Group(func(r chi.Router) {
		r.Use(h.security.RequireAPIKey)
		r.Get("/coupons", h.ListCoupons)
		r.Post("/coupons", h.CreateCoupon)
		r.Get("/coupons/{code}", h.GetCoupon)
		r.Patch("/coupons/{code}", h.UpdateCoupon)
		r.Delete("/coupons/{code}", h.DeactivateCoupon)
	})

	return r
}
