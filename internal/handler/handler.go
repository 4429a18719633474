// Package handler exposes the checkout core over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openkart/checkout/internal/domain/coupon"
	"github.com/openkart/checkout/internal/domain/delivery"
	"github.com/openkart/checkout/internal/domain/order"
	"github.com/openkart/checkout/internal/domain/product"
	"github.com/openkart/checkout/internal/handler/auth"
	"github.com/openkart/checkout/internal/payment"
)

// Handler holds the domain services behind the HTTP surface.
type Handler struct {
	orders     *order.Service
	products   product.Repository
	coupons    *coupon.Engine
	couponRepo coupon.Repository
	resolver   *delivery.Resolver
	sessions   payment.SessionStore
	admin      *auth.Authenticator
}

// New constructs a Handler with the required domain dependencies.
func New(
	orders *order.Service,
	products product.Repository,
	coupons *coupon.Engine,
	couponRepo coupon.Repository,
	resolver *delivery.Resolver,
	sessions payment.SessionStore,
	admin *auth.Authenticator,
) *Handler {
	return &Handler{
		orders:     orders,
		products:   products,
		coupons:    coupons,
		couponRepo: couponRepo,
		resolver:   resolver,
		sessions:   sessions,
		admin:      admin,
	}
}

// Routes builds the API router. Customer routes identify the caller through
// the X-User-ID header set by the auth gateway in front of this service;
// admin routes require an API key.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Post("/delivery/validate", h.ValidateAddress)
		r.Post("/coupons/validate", h.ValidateCoupon)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Post("/checkout", h.Checkout)
			r.Post("/checkout/buy-now", h.SaveBuyNow)
			r.Get("/checkout/buy-now", h.LoadBuyNow)
			r.Get("/payment/verify", h.VerifyPayment)
			r.Get("/payment/session", h.PaymentSession)
			r.Get("/orders", h.ListMyOrders)
			r.Get("/orders/{id}", h.GetOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAPIKey)

			r.Get("/orders", h.AdminListOrders)
			r.Patch("/orders/{id}/status", h.AdminUpdateStatus)
			r.Post("/orders/status", h.AdminBulkUpdateStatus)

			r.Get("/coupons", h.AdminListCoupons)
			r.Get("/coupons/stats", h.AdminCouponStats)
			r.Post("/coupons", h.AdminCreateCoupon)
			r.Put("/coupons/{code}", h.AdminUpdateCoupon)
			r.Delete("/coupons/{code}", h.AdminDeleteCoupon)
		})
	})

	return r
}
