package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openkart/checkout/internal/domain/delivery"
)

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	// MethodCard pays through the external processor: initialize, redirect,
	// verify.
	MethodCard PaymentMethod = "card"
	// MethodCash is cash on delivery: the order stays pending until an admin
	// advances it.
	MethodCash PaymentMethod = "cash"
)

// Item is an order line with the price, name and image snapshotted at order
// time. Snapshots are immutable: later catalog price changes do not affect
// placed orders.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
}

// Order is the persisted record of a purchase intent and its fulfilment
// status. It is owned exclusively by the lifecycle service once created.
type Order struct {
	ID               string
	UserID           string
	Email            string
	Items            []Item
	ShippingAddress  delivery.Address
	Subtotal         decimal.Decimal
	Tax              decimal.Decimal
	DeliveryFee      decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
	CouponCode       string
	PaymentMethod    PaymentMethod
	PaymentReference string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ListFilter narrows admin order listings.
type ListFilter struct {
	Status Status
	UserID string
	Page   int
	Limit  int
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByReference(ctx context.Context, reference string) (*Order, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	// UpdateStatus persists the new status and bumps updated_at.
	UpdateStatus(ctx context.Context, id string, status Status) error
	// SetPaymentReference records the gateway reference issued at
	// initialization time.
	SetPaymentReference(ctx context.Context, id, reference string) error
}
