package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/openkart/checkout/internal/domain/cart"
	"github.com/openkart/checkout/internal/domain/coupon"
	"github.com/openkart/checkout/internal/domain/delivery"
	"github.com/openkart/checkout/internal/domain/order"
	"github.com/openkart/checkout/internal/payment"
	"github.com/openkart/checkout/internal/repository"
)

type addressWire struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
	// ZipCode mirrors PostalCode for clients that still send the legacy name.
	ZipCode string `json:"zipCode,omitempty"`
}

func (a addressWire) toDomain() delivery.Address {
	postal := a.PostalCode
	if postal == "" {
		postal = a.ZipCode
	}
	return delivery.Address{
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		Country:    a.Country,
		PostalCode: postal,
	}
}

type orderItemWire struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image"`
}

type orderWire struct {
	ID               string          `json:"id"`
	Items            []orderItemWire `json:"items"`
	ShippingAddress  addressWire     `json:"shippingAddress"`
	Total            float64         `json:"total"`
	Status           string          `json:"status"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func toOrderWire(o *order.Order) orderWire {
	items := make([]orderItemWire, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemWire{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price.InexactFloat64(),
			Quantity:  it.Quantity,
			Image:     it.Image,
		}
	}
	return orderWire{
		ID:    o.ID,
		Items: items,
		ShippingAddress: addressWire{
			Street:     o.ShippingAddress.Street,
			City:       o.ShippingAddress.City,
			State:      o.ShippingAddress.State,
			Country:    o.ShippingAddress.Country,
			PostalCode: o.ShippingAddress.PostalCode,
			ZipCode:    o.ShippingAddress.PostalCode,
		},
		Total:            o.Total.InexactFloat64(),
		Status:           string(o.Status),
		PaymentReference: o.PaymentReference,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

// writeDomainError maps domain errors onto the HTTP error taxonomy:
// validation failures are 400s raised before any side effect, coupon
// rejections and unknown products are 422s, state-machine violations are
// 409s, and unknown references are 404s.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidAmount),
		errors.Is(err, delivery.ErrIncompleteAddress),
		errors.Is(err, order.ErrZeroTotal),
		errors.Is(err, order.ErrUnknownMethod),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrMissingEmail):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())

	case coupon.IsRejection(err):
		writeError(w, http.StatusUnprocessableEntity, "coupon_rejected", err.Error())

	case errors.Is(err, delivery.ErrZoneNotServed):
		writeError(w, http.StatusUnprocessableEntity, "zone_not_served", err.Error())

	case errors.Is(err, repository.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "not_found", "order not found")

	default:
		var (
			pnf *order.ProductNotFoundError
			itr *order.InvalidTransitionError
		)
		switch {
		case errors.As(err, &pnf):
			writeError(w, http.StatusUnprocessableEntity, "product_not_found", pnf.Error())
		case errors.As(err, &itr):
			writeError(w, http.StatusConflict, "invalid_transition", itr.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "the request could not be completed, please retry")
		}
	}
}
