// Package cart computes order pricing from cart line items, the resolved
// delivery zone, and an optionally applied coupon.
package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openkart/checkout/internal/domain/coupon"
	"github.com/openkart/checkout/internal/domain/delivery"
)

var (
	// ErrEmptyCart blocks checkout before any collaborator is contacted.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidAmount is returned for non-positive prices or quantities.
	// Bad amounts are rejected, never silently coerced.
	ErrInvalidAmount = errors.New("invalid price or quantity")
)

// Line is a cart line item with its snapshot price.
type Line struct {
	ProductID string
	Category  string
	Price     decimal.Decimal
	Quantity  int
}

// Pricing is the full money breakdown of a cart.
// Total = Subtotal + Tax + DeliveryFee - Discount, floored at zero.
type Pricing struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// Aggregator computes cart pricing with a fixed tax rate.
type Aggregator struct {
	taxRate decimal.Decimal
}

// NewAggregator creates an Aggregator. rate is the tax fraction, e.g. 0.08.
func NewAggregator(rate decimal.Decimal) *Aggregator {
	return &Aggregator{taxRate: rate}
}

// Aggregate computes the pricing for the given lines. zone may be nil when
// the address has not resolved yet (the delivery fee is then zero, and
// checkout stays blocked upstream); disc may be nil when no coupon applies.
//
// Shipping-type coupons report the delivery fee as the discount amount, so
// the customer pays no shipping while the total identity still holds.
func (a *Aggregator) Aggregate(lines []Line, zone *delivery.Zone, disc *coupon.Discount) (Pricing, error) {
	if len(lines) == 0 {
		return Pricing{}, ErrEmptyCart
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 || l.Price.IsNegative() {
			return Pricing{}, errors.Wrapf(ErrInvalidAmount, "product %s", l.ProductID)
		}
		subtotal = subtotal.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	tax := subtotal.Mul(a.taxRate).Round(2)

	fee := decimal.Zero
	if zone != nil {
		fee = zone.Fee
	}

	discount := decimal.Zero
	if disc != nil {
		if disc.FreeShipping {
			discount = fee
		} else {
			discount = disc.Amount
		}
	}
	if discount.IsNegative() {
		return Pricing{}, errors.Wrap(ErrInvalidAmount, "discount")
	}

	total := subtotal.Add(tax).Add(fee).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Pricing{
		Subtotal:    subtotal.Round(2),
		Tax:         tax,
		DeliveryFee: fee.Round(2),
		Discount:    discount.Round(2),
		Total:       total.Round(2),
	}, nil
}
