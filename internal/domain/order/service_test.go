package order

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkart/checkout/internal/domain/cart"
	"github.com/openkart/checkout/internal/domain/coupon"
	"github.com/openkart/checkout/internal/domain/delivery"
	"github.com/openkart/checkout/internal/domain/product"
	"github.com/openkart/checkout/internal/payment"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*Order
	byRef  map[string]string

	createErr error
	updateErr error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*Order), byRef: make(map[string]string)}
}

func (m *memOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.Errorf("order %s not found", id)
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) GetByReference(_ context.Context, ref string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRef[ref]
	if !ok {
		return nil, errors.Errorf("no order for reference %s", ref)
	}
	cp := *m.orders[id]
	return &cp, nil
}

func (m *memOrderRepo) ListByUser(_ context.Context, _ string, _, _ int) ([]Order, error) {
	return nil, nil
}

func (m *memOrderRepo) List(_ context.Context, _ ListFilter) ([]Order, error) { return nil, nil }

func (m *memOrderRepo) CountByUser(_ context.Context, _ string) (int, error) { return 0, nil }

func (m *memOrderRepo) UpdateStatus(_ context.Context, id string, status Status) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return errors.Errorf("order %s not found", id)
	}
	o.Status = status
	return nil
}

func (m *memOrderRepo) SetPaymentReference(_ context.Context, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return errors.Errorf("order %s not found", id)
	}
	o.PaymentReference = ref
	m.byRef[ref] = id
	return nil
}

func (m *memOrderRepo) seed(o *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	if o.PaymentReference != "" {
		m.byRef[o.PaymentReference] = o.ID
	}
}

func (m *memOrderRepo) status(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

type stubProductRepo struct {
	products map[string]product.Product
	calls    int
}

func (s *stubProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (s *stubProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (s *stubProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.calls++
	var out []product.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubCouponRepo struct {
	rule      *coupon.Rule
	redeemErr error

	redeemed []redemption
}

type redemption struct {
	code, userID, orderID string
}

func (s *stubCouponRepo) FindByCode(_ context.Context, _ string) (*coupon.Rule, error) {
	if s.rule == nil {
		return nil, coupon.ErrNotFound
	}
	return s.rule, nil
}

func (s *stubCouponRepo) UserRedemptions(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (s *stubCouponRepo) RedeemForOrder(_ context.Context, code, userID, orderID string) error {
	if s.redeemErr != nil {
		return s.redeemErr
	}
	s.redeemed = append(s.redeemed, redemption{code, userID, orderID})
	return nil
}

func (s *stubCouponRepo) List(_ context.Context) ([]coupon.Rule, error)  { return nil, nil }
func (s *stubCouponRepo) Create(_ context.Context, _ *coupon.Rule) error { return nil }
func (s *stubCouponRepo) Update(_ context.Context, _ *coupon.Rule) error { return nil }
func (s *stubCouponRepo) Delete(_ context.Context, _ string) error       { return nil }
func (s *stubCouponRepo) Stats(_ context.Context) (*coupon.Stats, error) { return nil, nil }

type stubZoneRepo struct {
	zone *delivery.Zone
	err  error
}

func (s *stubZoneRepo) FindZone(_ context.Context, _, _, _ string) (*delivery.Zone, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.zone, nil
}

type stubGateway struct {
	intent    *payment.Intent
	initErr   error
	initCalls int

	verify    *payment.VerifyResult
	verifyErr error
}

func (s *stubGateway) Initialize(_ context.Context, req payment.InitializeRequest) (*payment.Intent, error) {
	s.initCalls++
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.initErr != nil {
		return nil, s.initErr
	}
	return s.intent, nil
}

func (s *stubGateway) Verify(_ context.Context, _ string) (*payment.VerifyResult, error) {
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.verify, nil
}

type stubSessions struct {
	saved   map[string]payment.Session
	cleared []string
}

func newStubSessions() *stubSessions {
	return &stubSessions{saved: make(map[string]payment.Session)}
}

func (s *stubSessions) SavePending(_ context.Context, userID string, sess payment.Session) error {
	s.saved[userID] = sess
	return nil
}

func (s *stubSessions) Load(_ context.Context, userID string) (*payment.Session, error) {
	sess, ok := s.saved[userID]
	if !ok {
		return nil, payment.ErrNoSession
	}
	return &sess, nil
}

func (s *stubSessions) Clear(_ context.Context, userID string) error {
	s.cleared = append(s.cleared, userID)
	delete(s.saved, userID)
	return nil
}

func (s *stubSessions) SaveBuyNow(_ context.Context, _ string, _ payment.BuyNowRecord) error {
	return nil
}

func (s *stubSessions) LoadBuyNow(_ context.Context, _ string) (*payment.BuyNowRecord, error) {
	return nil, payment.ErrNoSession
}

func (s *stubSessions) ClearBuyNow(_ context.Context, _ string) error { return nil }

type fixture struct {
	svc      *Service
	orders   *memOrderRepo
	products *stubProductRepo
	coupons  *stubCouponRepo
	gateway  *stubGateway
	sessions *stubSessions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	orders := newMemOrderRepo()
	products := &stubProductRepo{products: map[string]product.Product{
		"p1": {ID: "p1", Name: "Desk Lamp", Price: dec("50.00"), Category: "home", Image: "lamp.jpg"},
		"p2": {ID: "p2", Name: "Notebook", Price: dec("5.25"), Category: "office", Image: "notebook.jpg"},
	}}
	coupons := &stubCouponRepo{}
	gateway := &stubGateway{
		intent: &payment.Intent{Reference: "ref-123", AuthorizationURL: "https://pay.example/ref-123"},
	}
	sessions := newStubSessions()

	zone := &delivery.Zone{ID: "zone-sf", City: "San Francisco", Fee: dec("10.00")}
	resolver := delivery.NewResolver(&stubZoneRepo{zone: zone}, nil)
	engine := coupon.NewEngine(coupons, orders)
	aggregator := cart.NewAggregator(dec("0.08"))

	svc := NewService(orders, products, engine, coupons, resolver, aggregator, gateway, sessions, nil)
	return &fixture{
		svc:      svc,
		orders:   orders,
		products: products,
		coupons:  coupons,
		gateway:  gateway,
		sessions: sessions,
	}
}

func validRequest() CheckoutRequest {
	return CheckoutRequest{
		UserID: "user-1",
		Email:  "jo@example.com",
		Lines:  []CartLine{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: delivery.Address{
			Street: "123 Market St", City: "San Francisco", State: "CA",
			Country: "US", PostalCode: "94103",
		},
		PaymentMethod: MethodCash,
	}
}

func TestService_Checkout_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CheckoutRequest)
		wantErr error
	}{
		{"empty cart", func(r *CheckoutRequest) { r.Lines = nil }, cart.ErrEmptyCart},
		{"zero quantity", func(r *CheckoutRequest) { r.Lines[0].Quantity = 0 }, cart.ErrInvalidAmount},
		{"negative quantity", func(r *CheckoutRequest) { r.Lines[0].Quantity = -1 }, cart.ErrInvalidAmount},
		{"incomplete address", func(r *CheckoutRequest) { r.ShippingAddress.City = "" }, delivery.ErrIncompleteAddress},
		{"unknown payment method", func(r *CheckoutRequest) { r.PaymentMethod = "crypto" }, ErrUnknownMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validRequest()
			tt.mutate(&req)

			_, err := f.svc.Checkout(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)

			// Validation failures happen before any collaborator is touched.
			assert.Zero(t, f.products.calls)
			assert.Empty(t, f.orders.orders)
			assert.Zero(t, f.gateway.initCalls)
		})
	}
}

func TestService_Checkout_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.Lines = []CartLine{{ProductID: "ghost", Quantity: 1}}

	_, err := f.svc.Checkout(context.Background(), req)

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "ghost", pnf.ProductID)
	assert.Empty(t, f.orders.orders)
}

func TestService_Checkout_Cash(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Checkout(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, res.ClearCart, "cash placement is the success outcome")
	assert.Nil(t, res.Payment)
	assert.Equal(t, StatusPending, res.Order.Status)
	assert.Equal(t, MethodCash, res.Order.PaymentMethod)

	// 2 x 50.00 + 8% tax + 10.00 fee.
	assert.True(t, dec("100.00").Equal(res.Order.Subtotal))
	assert.True(t, dec("8.00").Equal(res.Order.Tax))
	assert.True(t, dec("10.00").Equal(res.Order.DeliveryFee))
	assert.True(t, dec("118.00").Equal(res.Order.Total))

	// Prices and names come from the catalog snapshot, not the request.
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, "Desk Lamp", res.Order.Items[0].Name)
	assert.True(t, dec("50.00").Equal(res.Order.Items[0].Price))

	assert.Zero(t, f.gateway.initCalls, "cash orders never touch the gateway")
	assert.Empty(t, f.sessions.saved)
}

func TestService_Checkout_Card(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.PaymentMethod = MethodCard

	res, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.ClearCart, "cart survives until payment is verified")
	require.NotNil(t, res.Payment)
	assert.Equal(t, "ref-123", res.Payment.Reference)
	assert.Equal(t, "ref-123", res.Order.PaymentReference)

	stored, err := f.orders.GetByReference(context.Background(), "ref-123")
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, stored.ID)
	assert.Equal(t, StatusPending, stored.Status)

	sess, ok := f.sessions.saved["user-1"]
	require.True(t, ok)
	assert.Equal(t, "ref-123", sess.Reference)
	assert.Equal(t, res.Order.ID, sess.OrderID)
}

func TestService_Checkout_CouponRedeemedPerOrder(t *testing.T) {
	f := newFixture(t)
	f.coupons.rule = &coupon.Rule{
		Code: "SAVE20", Type: coupon.DiscountPercentage, Value: dec("20"),
		MaxDiscount: dec("15"), Active: true,
	}

	req := validRequest()
	req.CouponCode = "SAVE20"

	res, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	// 20% of 100.00 is 20.00, capped at 15.00.
	assert.True(t, dec("15.00").Equal(res.Order.Discount))
	assert.True(t, dec("103.00").Equal(res.Order.Total))

	require.Len(t, f.coupons.redeemed, 1)
	assert.Equal(t, "SAVE20", f.coupons.redeemed[0].code)
	assert.Equal(t, res.Order.ID, f.coupons.redeemed[0].orderID, "redemption is keyed by order id")
}

func TestService_Checkout_CouponRejectionBlocksOrder(t *testing.T) {
	f := newFixture(t)

	req := validRequest()
	req.CouponCode = "NOPE"

	_, err := f.svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, coupon.ErrNotFound)
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.coupons.redeemed)
}

func TestService_Checkout_RedemptionRaceCancelsOrder(t *testing.T) {
	f := newFixture(t)
	f.coupons.rule = &coupon.Rule{
		Code: "LAST1", Type: coupon.DiscountFixed, Value: dec("5"), Active: true,
	}
	// Validation saw the coupon as available, but a concurrent checkout took
	// the last redemption before ours landed.
	f.coupons.redeemErr = coupon.ErrUsageLimit

	req := validRequest()
	req.CouponCode = "LAST1"

	_, err := f.svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, coupon.ErrUsageLimit)

	require.Len(t, f.orders.orders, 1)
	for _, o := range f.orders.orders {
		assert.Equal(t, StatusCancelled, o.Status, "a discounted order without its redemption cannot stand")
	}
	assert.Empty(t, f.coupons.redeemed)
}

func TestService_Checkout_GatewayFailureKeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	f.gateway.initErr = errors.New("gateway timeout")

	req := validRequest()
	req.PaymentMethod = MethodCard

	_, err := f.svc.Checkout(context.Background(), req)
	require.Error(t, err)

	require.Len(t, f.orders.orders, 1)
	for _, o := range f.orders.orders {
		assert.Equal(t, StatusPending, o.Status, "the customer can re-attempt payment")
	}
	assert.Equal(t, 1, f.gateway.initCalls, "initialization is never auto-retried")
}

func TestService_FinalizePayment(t *testing.T) {
	seedPending := func(f *fixture) *Order {
		o := &Order{
			ID: "o-1", UserID: "user-1", Status: StatusPending,
			PaymentMethod: MethodCard, PaymentReference: "ref-123",
			Total: dec("118.00"),
		}
		f.orders.seed(o)
		f.sessions.saved["user-1"] = payment.Session{Reference: "ref-123", OrderID: "o-1"}
		return o
	}

	t.Run("verified success confirms and clears", func(t *testing.T) {
		f := newFixture(t)
		seedPending(f)
		f.gateway.verify = &payment.VerifyResult{Status: payment.StatusSuccess, OrderID: "o-1"}

		out, err := f.svc.FinalizePayment(context.Background(), "ref-123")
		require.NoError(t, err)

		assert.Equal(t, StatusConfirmed, out.Order.Status)
		assert.True(t, out.ClearCart)
		assert.False(t, out.Retry)
		assert.Equal(t, StatusConfirmed, f.orders.status("o-1"))
		assert.Contains(t, f.sessions.cleared, "user-1")
	})

	t.Run("failed verification marks failed and keeps cart", func(t *testing.T) {
		f := newFixture(t)
		seedPending(f)
		f.gateway.verify = &payment.VerifyResult{Status: payment.StatusFailed, OrderID: "o-1"}

		out, err := f.svc.FinalizePayment(context.Background(), "ref-123")
		require.NoError(t, err)

		assert.Equal(t, StatusFailed, out.Order.Status)
		assert.False(t, out.ClearCart)
		assert.True(t, out.Retry)
		assert.Empty(t, f.sessions.cleared, "session survives a failed attempt")
	})

	t.Run("order mismatch mutates nothing", func(t *testing.T) {
		f := newFixture(t)
		seedPending(f)
		f.gateway.verify = &payment.VerifyResult{Status: payment.StatusSuccess, OrderID: "someone-else"}

		_, err := f.svc.FinalizePayment(context.Background(), "ref-123")

		var verr *payment.VerificationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, StatusPending, f.orders.status("o-1"))
		assert.Empty(t, f.sessions.cleared)
	})

	t.Run("amount mismatch mutates nothing", func(t *testing.T) {
		f := newFixture(t)
		seedPending(f)
		f.gateway.verify = &payment.VerifyResult{
			Status: payment.StatusSuccess, OrderID: "o-1", Amount: dec("117.00"),
		}

		_, err := f.svc.FinalizePayment(context.Background(), "ref-123")

		var verr *payment.VerificationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, StatusPending, f.orders.status("o-1"))
		assert.Empty(t, f.sessions.cleared)
	})

	t.Run("matching reported amount confirms", func(t *testing.T) {
		f := newFixture(t)
		seedPending(f)
		f.gateway.verify = &payment.VerifyResult{
			Status: payment.StatusSuccess, OrderID: "o-1", Amount: dec("118.00"),
		}

		out, err := f.svc.FinalizePayment(context.Background(), "ref-123")
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, out.Order.Status)
	})

	t.Run("transport failure leaves state untouched", func(t *testing.T) {
		f := newFixture(t)
		seedPending(f)
		f.gateway.verifyErr = errors.New("connection reset")

		_, err := f.svc.FinalizePayment(context.Background(), "ref-123")
		require.Error(t, err)
		assert.Equal(t, StatusPending, f.orders.status("o-1"), "no outcome is known, nothing moves")
	})
}

func TestService_UpdateStatus(t *testing.T) {
	f := newFixture(t)
	f.orders.seed(&Order{ID: "o-1", UserID: "user-1", Status: StatusConfirmed})

	t.Run("valid transition persists", func(t *testing.T) {
		o, err := f.svc.UpdateStatus(context.Background(), "o-1", StatusProcessing)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, o.Status)
		assert.Equal(t, StatusProcessing, f.orders.status("o-1"))
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		o, err := f.svc.UpdateStatus(context.Background(), "o-1", StatusProcessing)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, o.Status)
	})

	t.Run("invalid edge leaves state unmutated", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(context.Background(), "o-1", StatusDelivered)

		var terr *InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, StatusProcessing, terr.From)
		assert.Equal(t, StatusDelivered, terr.To)
		assert.Equal(t, StatusProcessing, f.orders.status("o-1"))
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(context.Background(), "o-1", Status("archived"))

		var terr *InvalidTransitionError
		require.ErrorAs(t, err, &terr)
	})
}

func TestService_BulkUpdateStatus(t *testing.T) {
	f := newFixture(t)
	f.orders.seed(&Order{ID: "a", Status: StatusConfirmed})
	f.orders.seed(&Order{ID: "b", Status: StatusConfirmed})
	f.orders.seed(&Order{ID: "c", Status: StatusDelivered}) // delivered -> processing is invalid

	res := f.svc.BulkUpdateStatus(context.Background(), []string{"a", "b", "c", "missing"}, StatusProcessing)

	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Failures, 2)

	failedIDs := map[string]bool{}
	for _, fl := range res.Failures {
		failedIDs[fl.OrderID] = true
		assert.NotEmpty(t, fl.Reason)
	}
	assert.True(t, failedIDs["c"])
	assert.True(t, failedIDs["missing"])

	// Successful siblings are not rolled back by the failures.
	assert.Equal(t, StatusProcessing, f.orders.status("a"))
	assert.Equal(t, StatusProcessing, f.orders.status("b"))
	assert.Equal(t, StatusDelivered, f.orders.status("c"))
}
