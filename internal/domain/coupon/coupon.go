package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the cart total,
	// optionally capped by MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the cart total.
	DiscountFixed DiscountType = "fixed"
	// DiscountShipping waives the delivery fee.
	DiscountShipping DiscountType = "shipping"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercentage, DiscountFixed, DiscountShipping:
		return true
	default:
		return false
	}
}

// Rejection sentinels, one per business rule. All of them are non-fatal for
// the checkout: the customer may remove the code or try another.
var (
	ErrNotFound        = errors.New("coupon code not found or inactive")
	ErrOutsideWindow   = errors.New("coupon is not valid at this time")
	ErrMinOrderNotMet  = errors.New("cart total is below the coupon minimum")
	ErrUsageLimit      = errors.New("coupon usage limit reached")
	ErrUserLimit       = errors.New("you have already used this coupon the maximum number of times")
	ErrNotApplicable   = errors.New("coupon does not apply to the items in your cart")
	ErrFirstOrderOnly  = errors.New("coupon is valid for first orders only")
	ErrUnsupportedType = errors.New("unsupported coupon discount type")
)

// IsRejection reports whether err is one of the coupon business-rule
// rejections, as opposed to an infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrOutsideWindow, ErrMinOrderNotMet, ErrUsageLimit,
		ErrUserLimit, ErrNotApplicable, ErrFirstOrderOnly,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Rule defines a coupon's discount behaviour and eligibility constraints.
type Rule struct {
	Code           string
	Type           DiscountType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxDiscount    decimal.Decimal // zero means uncapped
	UsageLimit     int             // zero means unlimited
	UserLimit      int             // zero means unlimited per user
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Active         bool
	FirstTimeOnly  bool
	ProductIDs     []string // empty means any product
	Categories     []string // empty means any category
	Uses           int
}

// Discount holds the computed discount for a validated coupon.
type Discount struct {
	Code   string
	Type   DiscountType
	Amount decimal.Decimal
	// FreeShipping is set for shipping-type coupons; Amount then carries the
	// waived delivery fee once it is known.
	FreeShipping bool
}

// Item is a cart line item as seen by the coupon engine.
type Item struct {
	ProductID string
	Category  string
	Price     decimal.Decimal
	Quantity  int
}

// Repository provides lookup and redemption of coupon rules.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// UserRedemptions returns how many distinct orders the user has redeemed
	// the coupon on.
	UserRedemptions(ctx context.Context, code, userID string) (int, error)
	// RedeemForOrder records a redemption keyed by order id and increments
	// the usage counter exactly once per order. Re-running it for the same
	// order is a no-op, so verification polls and client retries of the same
	// order attempt never double-count.
	RedeemForOrder(ctx context.Context, code, userID, orderID string) error

	// Admin surface.
	List(ctx context.Context) ([]Rule, error)
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, code string) error
	Stats(ctx context.Context) (*Stats, error)
}

// Stats is the aggregate view the admin dashboard shows.
type Stats struct {
	Total       int
	Active      int
	Redemptions int
}

// OrderHistory answers the first-time-only check. Implemented by the order
// repository; declared here so the engine does not import the order package.
type OrderHistory interface {
	CountByUser(ctx context.Context, userID string) (int, error)
}
