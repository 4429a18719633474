package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkart/checkout/internal/domain/coupon"
)

const (
	couponColumns = `code, discount_type, value, min_order_amount, max_discount,
		usage_limit, user_limit, valid_from, valid_until, active,
		first_time_only, product_ids, categories, uses`

	findCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	userRedemptionsSQL = `SELECT COUNT(*) FROM coupon_redemptions
		WHERE coupon_code = $1 AND user_id = $2`

	insertRedemptionSQL = `INSERT INTO coupon_redemptions (coupon_code, order_id, user_id)
		VALUES ($1, $2, $3) ON CONFLICT (coupon_code, order_id) DO NOTHING`

	// The usage-limit guard rides the UPDATE predicate, so concurrent
	// redemptions can never push uses past usage_limit.
	incrementUsesSQL = `UPDATE coupons SET uses = uses + 1
		WHERE code = $1 AND (usage_limit = 0 OR uses < usage_limit)`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0)`

	updateCouponSQL = `UPDATE coupons SET discount_type = $2, value = $3,
		min_order_amount = $4, max_discount = $5, usage_limit = $6,
		user_limit = $7, valid_from = $8, valid_until = $9, active = $10,
		first_time_only = $11, product_ids = $12, categories = $13
		WHERE code = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE code = $1`

	couponStatsSQL = `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE active),
		COALESCE(SUM(uses), 0)
		FROM coupons`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive). Returns
// coupon.ErrNotFound when no such coupon exists; inactive coupons are
// returned and rejected by the engine, so admin reads still see them.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, findCouponSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &rule, nil
}

// UserRedemptions counts the distinct orders the user redeemed the coupon on.
func (r *CouponRepository) UserRedemptions(ctx context.Context, code, userID string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, userRedemptionsSQL, code, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting redemptions of %q for user %q: %w", code, userID, err)
	}
	return count, nil
}

// RedeemForOrder records a redemption exactly once per order. The unique
// (coupon_code, order_id) row decides whether this attempt is the first; the
// usage counter only moves when it is, inside one transaction.
func (r *CouponRepository) RedeemForOrder(ctx context.Context, code, userID, orderID string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertRedemptionSQL, code, orderID, userID)
		if err != nil {
			return errors.Wrap(err, "insert redemption")
		}
		if tag.RowsAffected() == 0 {
			// Already redeemed for this order: idempotent no-op.
			return nil
		}

		tag, err = tx.Exec(ctx, incrementUsesSQL, code)
		if err != nil {
			return errors.Wrap(err, "increment uses")
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrUsageLimit
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, coupon.ErrUsageLimit) {
			return coupon.ErrUsageLimit
		}
		return fmt.Errorf("redeeming coupon %q for order %q: %w", code, orderID, err)
	}
	return nil
}

// List returns all coupons, most recently created last.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCouponRule)
}

// Create inserts a new coupon rule with a zero usage counter.
func (r *CouponRepository) Create(ctx context.Context, rule *coupon.Rule) error {
	_, err := r.pool.Exec(ctx, insertCouponSQL, couponArgs(rule)...)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", rule.Code, err)
	}
	return nil
}

// Update rewrites a coupon's rule fields. The usage counter is never
// writable through this path.
func (r *CouponRepository) Update(ctx context.Context, rule *coupon.Rule) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL, couponArgs(rule)...)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", rule.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon and its redemption history.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Stats returns the aggregate numbers for the admin dashboard.
func (r *CouponRepository) Stats(ctx context.Context) (*coupon.Stats, error) {
	var s coupon.Stats
	if err := r.pool.QueryRow(ctx, couponStatsSQL).Scan(&s.Total, &s.Active, &s.Redemptions); err != nil {
		return nil, fmt.Errorf("reading coupon stats: %w", err)
	}
	return &s, nil
}

func couponArgs(rule *coupon.Rule) []any {
	return []any{
		rule.Code, string(rule.Type), rule.Value, rule.MinOrderAmount,
		rule.MaxDiscount, rule.UsageLimit, rule.UserLimit,
		rule.ValidFrom, rule.ValidUntil, rule.Active,
		rule.FirstTimeOnly, rule.ProductIDs, rule.Categories,
	}
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule       coupon.Rule
		kind       string
		validFrom  *time.Time
		validUntil *time.Time
	)
	err := row.Scan(
		&rule.Code, &kind, &rule.Value, &rule.MinOrderAmount, &rule.MaxDiscount,
		&rule.UsageLimit, &rule.UserLimit, &validFrom, &validUntil, &rule.Active,
		&rule.FirstTimeOnly, &rule.ProductIDs, &rule.Categories, &rule.Uses,
	)
	rule.Type = coupon.DiscountType(kind)
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	return rule, err
}
