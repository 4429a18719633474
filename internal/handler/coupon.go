package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/openkart/checkout/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code      string  `json:"code"`
	CartTotal float64 `json:"cartTotal"`
	Items     []struct {
		ProductID string  `json:"productId"`
		Category  string  `json:"category"`
		Price     float64 `json:"price"`
		Quantity  int     `json:"quantity"`
	} `json:"items"`
}

type validateCouponResponse struct {
	IsValid        bool    `json:"isValid"`
	DiscountAmount float64 `json:"discountAmount"`
	FreeShipping   bool    `json:"freeShipping,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// ValidateCoupon checks a discount code against the submitted cart. A
// business-rule rejection is a normal answer, not an HTTP error: the caller
// may remove the code or try another.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "code is required")
		return
	}

	items := make([]coupon.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = coupon.Item{
			ProductID: it.ProductID,
			Category:  it.Category,
			Price:     decimal.NewFromFloat(it.Price),
			Quantity:  it.Quantity,
		}
	}

	disc, err := h.coupons.Validate(r.Context(),
		req.Code, decimal.NewFromFloat(req.CartTotal), r.Header.Get("X-User-ID"), items)
	if err != nil {
		if coupon.IsRejection(err) {
			writeJSON(w, http.StatusOK, validateCouponResponse{IsValid: false, Error: err.Error()})
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, validateCouponResponse{
		IsValid:        true,
		DiscountAmount: disc.Amount.InexactFloat64(),
		FreeShipping:   disc.FreeShipping,
	})
}
