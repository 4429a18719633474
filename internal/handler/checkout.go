package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/openkart/checkout/internal/domain/order"
	"github.com/openkart/checkout/internal/payment"
)

type checkoutRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	ShippingAddress addressWire `json:"shippingAddress"`
	CouponCode      string      `json:"couponCode,omitempty"`
	Email           string      `json:"email"`
	PaymentMethod   string      `json:"paymentMethod"`
}

type checkoutResponse struct {
	Order     orderWire    `json:"order"`
	Payment   *paymentWire `json:"payment,omitempty"`
	ClearCart bool         `json:"clearCart"`
}

type paymentWire struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
}

// Checkout turns the submitted cart into a pending order. Card orders get a
// payment intent to redirect to; cash orders are complete at placement and
// the response tells the caller to clear its cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lines := make([]order.CartLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = order.CartLine{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	method := order.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = order.MethodCard
	}

	result, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		UserID:          userID(r.Context()),
		Email:           req.Email,
		Lines:           lines,
		ShippingAddress: req.ShippingAddress.toDomain(),
		CouponCode:      req.CouponCode,
		PaymentMethod:   method,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	zctx.From(r.Context()).Info("order placed",
		zap.String("order_id", result.Order.ID),
		zap.String("method", string(method)),
		zap.String("total", result.Order.Total.String()),
	)

	resp := checkoutResponse{
		Order:     toOrderWire(result.Order),
		ClearCart: result.ClearCart,
	}
	if result.Payment != nil {
		resp.Payment = &paymentWire{
			Reference:        result.Payment.Reference,
			AuthorizationURL: result.Payment.AuthorizationURL,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// SaveBuyNow stores the session-scoped single-item checkout bypass record.
func (h *Handler) SaveBuyNow(w http.ResponseWriter, r *http.Request) {
	var rec payment.BuyNowRecord
	if !decodeJSON(w, r, &rec) {
		return
	}
	if rec.ProductID == "" || rec.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "productId and a positive quantity are required")
		return
	}

	if err := h.sessions.SaveBuyNow(r.Context(), userID(r.Context()), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "could not store buy-now record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadBuyNow returns the stored bypass record, if any.
func (h *Handler) LoadBuyNow(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sessions.LoadBuyNow(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "no buy-now record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
