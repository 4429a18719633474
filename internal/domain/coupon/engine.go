package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Engine validates a discount code against cart and account state and
// computes the discount amount. Redemption accounting happens separately,
// once per successfully placed order, via Repository.RedeemForOrder.
type Engine struct {
	coupons Repository
	orders  OrderHistory
	now     func() time.Time
}

// NewEngine creates an Engine backed by the given repositories.
func NewEngine(coupons Repository, orders OrderHistory) *Engine {
	return &Engine{coupons: coupons, orders: orders, now: time.Now}
}

// Validate checks the code against every eligibility rule, in a fixed order:
// existence/active, validity window, minimum order amount, global usage
// limit, per-user limit, product/category restrictions, first-order-only.
// The first failing rule wins; later rules are not evaluated.
func (e *Engine) Validate(ctx context.Context, code string, cartTotal decimal.Decimal, userID string, items []Item) (*Discount, error) {
	rule, err := e.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !rule.Active {
		return nil, ErrNotFound
	}

	now := e.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrOutsideWindow
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrOutsideWindow
	}

	if rule.MinOrderAmount.IsPositive() && cartTotal.LessThan(rule.MinOrderAmount) {
		return nil, ErrMinOrderNotMet
	}

	if rule.UsageLimit > 0 && rule.Uses >= rule.UsageLimit {
		return nil, ErrUsageLimit
	}

	if rule.UserLimit > 0 {
		used, err := e.coupons.UserRedemptions(ctx, rule.Code, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count user redemptions")
		}
		if used >= rule.UserLimit {
			return nil, ErrUserLimit
		}
	}

	if !applicable(rule, items) {
		return nil, ErrNotApplicable
	}

	if rule.FirstTimeOnly {
		placed, err := e.orders.CountByUser(ctx, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count user orders")
		}
		if placed > 0 {
			return nil, ErrFirstOrderOnly
		}
	}

	return compute(rule, cartTotal)
}

// applicable reports whether the cart satisfies the rule's product/category
// restrictions. A rule with no restrictions applies to any cart; a restricted
// rule applies when at least one line item matches.
func applicable(rule *Rule, items []Item) bool {
	if len(rule.ProductIDs) == 0 && len(rule.Categories) == 0 {
		return true
	}
	for _, item := range items {
		for _, id := range rule.ProductIDs {
			if item.ProductID == id {
				return true
			}
		}
		for _, cat := range rule.Categories {
			if item.Category == cat {
				return true
			}
		}
	}
	return false
}

// compute calculates the discount amount for an eligible rule.
func compute(rule *Rule, cartTotal decimal.Decimal) (*Discount, error) {
	d := &Discount{Code: rule.Code, Type: rule.Type}

	switch rule.Type {
	case DiscountPercentage:
		amount := cartTotal.Mul(rule.Value).Div(hundred)
		if rule.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, rule.MaxDiscount)
		}
		d.Amount = floorAtZero(amount).Round(2)
	case DiscountFixed:
		d.Amount = floorAtZero(decimal.Min(rule.Value, cartTotal)).Round(2)
	case DiscountShipping:
		// The waived fee is only known once the delivery zone is resolved;
		// the cart aggregator fills Amount in with the zeroed fee.
		d.FreeShipping = true
		d.Amount = decimal.Zero
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%q", rule.Type)
	}

	return d, nil
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
