package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/openkart/checkout/internal/domain/delivery"
)

type validateAddressResponse struct {
	IsValid bool `json:"isValid"`
	Zone    *struct {
		ID   string  `json:"id"`
		City string  `json:"city"`
		Fee  float64 `json:"fee"`
	} `json:"zone,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidateAddress resolves a shipping address to a delivery zone. An address
// outside the served zones is a blocking-but-retryable condition, so it is
// reported as 200 {isValid:false} rather than an error: the caller keeps
// its typed fields and may correct them.
func (h *Handler) ValidateAddress(w http.ResponseWriter, r *http.Request) {
	var addr addressWire
	if !decodeJSON(w, r, &addr) {
		return
	}

	zone, err := h.resolver.Resolve(r.Context(), addr.toDomain())
	if err != nil {
		switch {
		case errors.Is(err, delivery.ErrIncompleteAddress),
			errors.Is(err, delivery.ErrZoneNotServed):
			writeJSON(w, http.StatusOK, validateAddressResponse{
				IsValid: false,
				Message: err.Error(),
			})
		default:
			writeDomainError(w, err)
		}
		return
	}

	resp := validateAddressResponse{IsValid: true}
	resp.Zone = &struct {
		ID   string  `json:"id"`
		City string  `json:"city"`
		Fee  float64 `json:"fee"`
	}{ID: zone.ID, City: zone.City, Fee: zone.Fee.InexactFloat64()}
	writeJSON(w, http.StatusOK, resp)
}
