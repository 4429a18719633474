package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/openkart/checkout/internal/payment"
)

type verifyResponse struct {
	Order     orderWire `json:"order"`
	ClearCart bool      `json:"clearCart"`
	// Retry is set when the attempt failed: the cart is intact and the
	// customer may re-attempt payment.
	Retry bool `json:"retry"`
}

// VerifyPayment reconciles a payment attempt after the customer returns from
// the processor redirect. The verification result is written to the order
// before the response goes out, so the order record stays the durable truth
// even if the browser tab closes.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		// The redirect may have dropped the query parameter; fall back to
		// the session pair stored at initialization time.
		sess, err := h.sessions.Load(r.Context(), userID(r.Context()))
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "payment reference is required")
			return
		}
		reference = sess.Reference
	}

	outcome, err := h.orders.FinalizePayment(r.Context(), reference)
	if err != nil {
		var verr *payment.VerificationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusConflict, "verification_mismatch", verr.Error())
			return
		}
		if errors.Is(err, payment.ErrMissingRef) {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		// Transport failure: no outcome is known. Surface a retryable
		// notification without touching the order.
		zctx.From(r.Context()).Warn("payment verification unavailable",
			zap.String("reference", reference), zap.Error(err))
		writeError(w, http.StatusBadGateway, "verification_unavailable", "could not reach the payment processor, please retry")
		return
	}

	lg := zctx.From(r.Context())
	if outcome.Retry {
		lg.Info("payment verification failed",
			zap.String("order_id", outcome.Order.ID),
			zap.String("reference", reference),
		)
	} else {
		lg.Info("payment confirmed",
			zap.String("order_id", outcome.Order.ID),
			zap.String("reference", reference),
		)
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Order:     toOrderWire(outcome.Order),
		ClearCart: outcome.ClearCart,
		Retry:     outcome.Retry,
	})
}

// PaymentSession returns the reference/order pair persisted across the
// processor redirect, so a returning browser can resume reconciliation.
func (h *Handler) PaymentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Load(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "no pending payment session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
