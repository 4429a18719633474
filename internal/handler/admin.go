package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openkart/checkout/internal/domain/coupon"
	"github.com/openkart/checkout/internal/domain/order"
)

// AdminListOrders returns orders matching the filter query parameters.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	orders, err := h.orders.List(r.Context(), order.ListFilter{
		Status: order.Status(q.Get("status")),
		UserID: q.Get("userId"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]orderWire, len(orders))
	for i := range orders {
		out[i] = toOrderWire(&orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// AdminUpdateStatus applies a single status transition to one order.
func (h *Handler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.Status(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderWire(o))
}

type bulkUpdateRequest struct {
	OrderIDs []string `json:"orderIds"`
	Status   string   `json:"status"`
}

// AdminBulkUpdateStatus applies the transition independently to each
// selected order. The response is always the aggregate tally; one order's
// failure neither rolls back nor blocks the others.
func (h *Handler) AdminBulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "orderIds is required")
		return
	}
	next := order.Status(req.Status)
	if !next.Valid() {
		writeError(w, http.StatusBadRequest, "validation_error", "unknown status "+req.Status)
		return
	}

	result := h.orders.BulkUpdateStatus(r.Context(), req.OrderIDs, next)
	writeJSON(w, http.StatusOK, result)
}

type couponWire struct {
	Code           string     `json:"code"`
	Type           string     `json:"type"`
	Value          float64    `json:"value"`
	MinOrderAmount float64    `json:"minOrderAmount,omitempty"`
	MaxDiscount    float64    `json:"maxDiscount,omitempty"`
	UsageLimit     int        `json:"usageLimit,omitempty"`
	UserLimit      int        `json:"userLimit,omitempty"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	IsActive       bool       `json:"isActive"`
	FirstTimeOnly  bool       `json:"isFirstTimeOnly,omitempty"`
	ProductIDs     []string   `json:"applicableProducts,omitempty"`
	Categories     []string   `json:"applicableCategories,omitempty"`
	UsageCount     int        `json:"usageCount"`
}

func toCouponWire(rule coupon.Rule) couponWire {
	return couponWire{
		Code:           rule.Code,
		Type:           string(rule.Type),
		Value:          rule.Value.InexactFloat64(),
		MinOrderAmount: rule.MinOrderAmount.InexactFloat64(),
		MaxDiscount:    rule.MaxDiscount.InexactFloat64(),
		UsageLimit:     rule.UsageLimit,
		UserLimit:      rule.UserLimit,
		StartDate:      rule.ValidFrom,
		EndDate:        rule.ValidUntil,
		IsActive:       rule.Active,
		FirstTimeOnly:  rule.FirstTimeOnly,
		ProductIDs:     rule.ProductIDs,
		Categories:     rule.Categories,
		UsageCount:     rule.Uses,
	}
}

func (c couponWire) toRule() (*coupon.Rule, error) {
	kind := coupon.DiscountType(c.Type)
	if !kind.Valid() {
		return nil, errors.Errorf("unknown coupon type %q", c.Type)
	}
	return &coupon.Rule{
		Code:           c.Code,
		Type:           kind,
		Value:          decimal.NewFromFloat(c.Value),
		MinOrderAmount: decimal.NewFromFloat(c.MinOrderAmount),
		MaxDiscount:    decimal.NewFromFloat(c.MaxDiscount),
		UsageLimit:     c.UsageLimit,
		UserLimit:      c.UserLimit,
		ValidFrom:      c.StartDate,
		ValidUntil:     c.EndDate,
		Active:         c.IsActive,
		FirstTimeOnly:  c.FirstTimeOnly,
		ProductIDs:     c.ProductIDs,
		Categories:     c.Categories,
	}, nil
}

// AdminListCoupons returns all coupons, including inactive ones.
func (h *Handler) AdminListCoupons(w http.ResponseWriter, r *http.Request) {
	rules, err := h.couponRepo.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]couponWire, len(rules))
	for i, rule := range rules {
		out[i] = toCouponWire(rule)
	}
	writeJSON(w, http.StatusOK, out)
}

// AdminCouponStats returns the aggregate coupon numbers.
func (h *Handler) AdminCouponStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.couponRepo.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"total":       stats.Total,
		"active":      stats.Active,
		"redemptions": stats.Redemptions,
	})
}

// AdminCreateCoupon inserts a new coupon rule.
func (h *Handler) AdminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var wire couponWire
	if !decodeJSON(w, r, &wire) {
		return
	}
	if wire.Code == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "code is required")
		return
	}

	rule, err := wire.toRule()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if err := h.couponRepo.Create(r.Context(), rule); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponWire(*rule))
}

// AdminUpdateCoupon rewrites a coupon's rule fields. The usage counter is
// not writable through this path.
func (h *Handler) AdminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var wire couponWire
	if !decodeJSON(w, r, &wire) {
		return
	}
	wire.Code = chi.URLParam(r, "code")

	rule, err := wire.toRule()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if err := h.couponRepo.Update(r.Context(), rule); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "coupon not found")
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponWire(*rule))
}

// AdminDeleteCoupon removes a coupon and its redemption history.
func (h *Handler) AdminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.couponRepo.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "coupon not found")
			return
		}
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
