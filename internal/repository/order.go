package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkart/checkout/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, email, items,
		street, city, state, country, postal_code,
		subtotal, tax, delivery_fee, discount, total,
		coupon_code, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	orderColumns = `id, user_id, email, items,
		street, city, state, country, postal_code,
		subtotal, tax, delivery_fee, discount, total,
		coupon_code, payment_method, COALESCE(payment_reference, ''), status,
		created_at, updated_at`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`

	setPaymentReferenceSQL = `UPDATE orders SET payment_reference = $2, updated_at = NOW() WHERE id = $1`

	countOrdersByUserSQL = `SELECT COUNT(*) FROM orders WHERE user_id = $1`
)

// ErrOrderNotFound is returned when no order matches the lookup.
var ErrOrderNotFound = errors.New("order not found")

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The item snapshots are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.Email, itemsJSON,
		o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.State,
		o.ShippingAddress.Country, o.ShippingAddress.PostalCode,
		o.Subtotal, o.Tax, o.DeliveryFee, o.Discount, o.Total,
		o.CouponCode, string(o.PaymentMethod), string(o.Status),
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetByReference returns the single order the payment reference resolves to.
func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (*order.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, reference)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		if isInvalidUUID(err) {
			// A malformed id cannot match any order; callers see the same
			// not-found they would for a well-formed unknown id.
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("querying order %q: %w", arg, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		// pgx reports query errors lazily, so the cast failure can land
		// here rather than on Query.
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("querying order %q: %w", arg, err)
	}
	return &o, nil
}

// isInvalidUUID reports whether err is the postgres invalid-text-
// representation error raised when a non-UUID string hits a uuid column.
func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// ListByUser returns a page of the user's orders, newest first. page is
// 1-based.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]order.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns orders matching the admin filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE ($1 = '' OR status = $1) AND ($2 = '' OR user_id = $2)
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		string(filter.Status), filter.UserID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// CountByUser returns how many orders the user has placed.
func (r *OrderRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, countOrdersByUserSQL, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting orders for user %q: %w", userID, err)
	}
	return count, nil
}

// UpdateStatus persists the new status and bumps updated_at.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetPaymentReference records the gateway reference for the order.
func (r *OrderRepository) SetPaymentReference(ctx context.Context, id, reference string) error {
	tag, err := r.pool.Exec(ctx, setPaymentReferenceSQL, id, reference)
	if err != nil {
		return fmt.Errorf("setting payment reference on order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		method    string
		status    string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Email, &itemsJSON,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.State,
		&o.ShippingAddress.Country, &o.ShippingAddress.PostalCode,
		&o.Subtotal, &o.Tax, &o.DeliveryFee, &o.Discount, &o.Total,
		&o.CouponCode, &method, &o.PaymentReference, &status,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order items: %w", err)
	}
	o.PaymentMethod = order.PaymentMethod(method)
	o.Status = order.Status(status)
	return o, nil
}
