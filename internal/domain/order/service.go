package order

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/openkart/checkout/internal/domain/cart"
	"github.com/openkart/checkout/internal/domain/coupon"
	"github.com/openkart/checkout/internal/domain/delivery"
	"github.com/openkart/checkout/internal/domain/product"
	"github.com/openkart/checkout/internal/payment"
)

// Validation sentinels. All of them are raised before any repository or
// gateway call.
var (
	ErrZeroTotal     = errors.New("order total must be positive")
	ErrUnknownMethod = errors.New("unsupported payment method")
)

// ProductNotFoundError indicates a cart line references a product the
// catalog does not know.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return "product " + e.ProductID + " not found"
}

// bulkUpdateConcurrency bounds the admin bulk status fan-out.
const bulkUpdateConcurrency = 8

// CartLine is a cart entry as submitted by the caller: a product reference
// and a quantity. Prices are never trusted from the caller; they are
// snapshotted from the catalog at order time.
type CartLine struct {
	ProductID string
	Quantity  int
}

// CheckoutRequest is the input for placing an order.
type CheckoutRequest struct {
	UserID          string
	Email           string
	Lines           []CartLine
	ShippingAddress delivery.Address
	CouponCode      string
	PaymentMethod   PaymentMethod
}

// CheckoutResult is the outcome of a successfully placed order.
type CheckoutResult struct {
	Order *Order
	// Payment is set for card orders: the caller redirects the customer to
	// Payment.AuthorizationURL and later reconciles through FinalizePayment.
	Payment *payment.Intent
	// ClearCart tells the caller to drop its cart state. It is true only for
	// cash orders here; card orders clear the cart after verified success.
	ClearCart bool
}

// VerifyOutcome is the result of reconciling a payment attempt.
type VerifyOutcome struct {
	Order     *Order
	ClearCart bool
	// Retry is set when the attempt failed and the customer should re-attempt
	// payment with their cart intact.
	Retry bool
}

// BulkFailure describes one order that could not be updated in a bulk run.
type BulkFailure struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// BulkResult is the aggregate tally of a bulk status update. The batch is
// not atomic: one order's failure never rolls back or blocks the others.
type BulkResult struct {
	Updated  int           `json:"updated"`
	Failed   int           `json:"failed"`
	Failures []BulkFailure `json:"failures,omitempty"`
}

// Service creates orders, snapshots cart contents, and drives status
// transitions for both checkout and the admin surface.
type Service struct {
	orders     Repository
	products   product.Repository
	coupons    *coupon.Engine
	couponRepo coupon.Repository
	resolver   *delivery.Resolver
	aggregator *cart.Aggregator
	gateway    payment.Gateway
	sessions   payment.SessionStore

	placedCounter metric.Int64Counter
}

// NewService wires the lifecycle service. placedCounter may be nil in tests.
func NewService(
	orders Repository,
	products product.Repository,
	coupons *coupon.Engine,
	couponRepo coupon.Repository,
	resolver *delivery.Resolver,
	aggregator *cart.Aggregator,
	gateway payment.Gateway,
	sessions payment.SessionStore,
	placedCounter metric.Int64Counter,
) *Service {
	return &Service{
		orders:        orders,
		products:      products,
		coupons:       coupons,
		couponRepo:    couponRepo,
		resolver:      resolver,
		aggregator:    aggregator,
		gateway:       gateway,
		sessions:      sessions,
		placedCounter: placedCounter,
	}
}

// Checkout turns a cart into a persisted pending order and, for card
// payments, a payment intent. Input validation happens before any
// collaborator is contacted; prices are snapshotted from the catalog and are
// immutable on the order thereafter.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if len(req.Lines) == 0 {
		return nil, cart.ErrEmptyCart
	}
	if !req.ShippingAddress.Complete() {
		return nil, delivery.ErrIncompleteAddress
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, errors.Wrapf(cart.ErrInvalidAmount, "product %s", l.ProductID)
		}
	}
	if req.PaymentMethod != MethodCard && req.PaymentMethod != MethodCash {
		return nil, ErrUnknownMethod
	}

	// Snapshot prices, names and images from the catalog in one batch.
	ids := make([]string, len(req.Lines))
	for i, l := range req.Lines {
		ids[i] = l.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, len(req.Lines))
	lines := make([]cart.Line, len(req.Lines))
	couponItems := make([]coupon.Item, len(req.Lines))
	for i, l := range req.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  l.Quantity,
			Image:     p.Image,
		}
		lines[i] = cart.Line{ProductID: p.ID, Category: p.Category, Price: p.Price, Quantity: l.Quantity}
		couponItems[i] = coupon.Item{ProductID: p.ID, Category: p.Category, Price: p.Price, Quantity: l.Quantity}
	}

	zone, err := s.resolver.Resolve(ctx, req.ShippingAddress)
	if err != nil {
		return nil, err
	}

	// Pre-total for coupon eligibility is the bare subtotal.
	pre, err := s.aggregator.Aggregate(lines, zone, nil)
	if err != nil {
		return nil, err
	}

	var disc *coupon.Discount
	if req.CouponCode != "" {
		disc, err = s.coupons.Validate(ctx, req.CouponCode, pre.Subtotal, req.UserID, couponItems)
		if err != nil {
			return nil, err
		}
	}

	pricing, err := s.aggregator.Aggregate(lines, zone, disc)
	if err != nil {
		return nil, err
	}
	if !pricing.Total.IsPositive() {
		return nil, ErrZeroTotal
	}

	o := &Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		Email:           req.Email,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		Subtotal:        pricing.Subtotal,
		Tax:             pricing.Tax,
		DeliveryFee:     pricing.DeliveryFee,
		Discount:        pricing.Discount,
		Total:           pricing.Total,
		CouponCode:      req.CouponCode,
		PaymentMethod:   req.PaymentMethod,
		Status:          StatusPending,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	// Redemption is keyed by order id: retries of this same attempt and
	// later verification polls never double-count.
	if req.CouponCode != "" {
		if err := s.couponRepo.RedeemForOrder(ctx, req.CouponCode, req.UserID, o.ID); err != nil {
			// The order was priced with a discount that did not hold, most
			// likely a concurrent attempt took the last redemption. Cancel
			// the order rather than leave it pending with the wrong total.
			_ = s.orders.UpdateStatus(ctx, o.ID, StatusCancelled)
			return nil, errors.Wrap(err, "redeem coupon")
		}
	}

	if s.placedCounter != nil {
		s.placedCounter.Add(ctx, 1)
	}

	if req.PaymentMethod == MethodCash {
		// Cash on delivery: placement is the success outcome, the cart can go.
		return &CheckoutResult{Order: o, ClearCart: true}, nil
	}

	intent, err := s.gateway.Initialize(ctx, payment.InitializeRequest{
		OrderID: o.ID,
		Amount:  o.Total,
		Email:   req.Email,
	})
	if err != nil {
		// The order stays pending; the customer can re-attempt payment
		// without losing their cart.
		return nil, errors.Wrap(err, "initialize payment")
	}

	if err := s.orders.SetPaymentReference(ctx, o.ID, intent.Reference); err != nil {
		return nil, errors.Wrap(err, "store payment reference")
	}
	o.PaymentReference = intent.Reference

	if err := s.sessions.SavePending(ctx, req.UserID, payment.Session{
		Reference: intent.Reference,
		OrderID:   o.ID,
	}); err != nil {
		return nil, errors.Wrap(err, "save payment session")
	}

	return &CheckoutResult{Order: o, Payment: intent}, nil
}

// FinalizePayment reconciles a payment attempt against the processor.
// Verification is the single source of truth: an initialization "success" is
// provisional until this call confirms it. On success the order moves to
// confirmed and the cart may be cleared; on anything else the order moves to
// failed and the cart is preserved for a retry.
func (s *Service) FinalizePayment(ctx context.Context, reference string) (*VerifyOutcome, error) {
	o, err := s.orders.GetByReference(ctx, reference)
	if err != nil {
		return nil, errors.Wrap(err, "find order for reference")
	}

	result, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		// Transport failure: no outcome is known, the order state is left
		// untouched. Verification is retried by an explicit user action.
		return nil, errors.Wrap(err, "verify payment")
	}

	if result.OrderID != "" && result.OrderID != o.ID {
		// The processor resolved the reference to a different order. Do not
		// mutate anything on an integrity violation.
		return nil, &payment.VerificationError{Reference: reference, Reason: "order mismatch"}
	}
	if !result.Amount.IsZero() && !result.Amount.Equal(o.Total) {
		// The captured amount disagrees with what the order charges. A zero
		// amount means the processor did not report one.
		return nil, &payment.VerificationError{Reference: reference, Reason: "amount mismatch"}
	}

	if result.Status == payment.StatusSuccess {
		updated, err := s.UpdateStatus(ctx, o.ID, StatusConfirmed)
		if err != nil {
			return nil, err
		}
		// Session purge failure is not worth failing a captured payment over.
		_ = s.sessions.Clear(ctx, o.UserID)
		return &VerifyOutcome{Order: updated, ClearCart: true}, nil
	}

	// Failed verification: mark the attempt failed, keep the cart so the
	// customer can retry without re-entering everything.
	updated, err := s.UpdateStatus(ctx, o.ID, StatusFailed)
	if err != nil {
		return nil, err
	}
	return &VerifyOutcome{Order: updated, Retry: true}, nil
}

// UpdateStatus applies a single status transition, enforcing the transition
// table. Reapplying the current status is an idempotent no-op. Any
// disallowed edge returns InvalidTransitionError and leaves state unmutated.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, &InvalidTransitionError{To: next}
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	if o.Status == next {
		return o, nil
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}

	if err := s.orders.UpdateStatus(ctx, id, next); err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	o.Status = next
	return o, nil
}

// BulkUpdateStatus applies UpdateStatus independently to each order. The
// batch is explicitly not atomic; the caller gets a tally, never a single
// pass/fail.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []string, next Status) *BulkResult {
	var (
		mu     sync.Mutex
		result BulkResult
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkUpdateConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := s.UpdateStatus(ctx, id, next)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Failures = append(result.Failures, BulkFailure{OrderID: id, Reason: err.Error()})
			} else {
				result.Updated++
			}
			// Individual failures are recorded, never propagated: returning
			// an error here would cancel the sibling updates.
			return nil
		})
	}
	_ = g.Wait()

	return &result
}

// GetByID returns a single order.
func (s *Service) GetByID(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListByUser returns a page of the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID, page, limit)
}

// List returns orders matching the admin filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	return s.orders.List(ctx, filter)
}
