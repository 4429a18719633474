package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkart/checkout/internal/domain/coupon"
	"github.com/openkart/checkout/internal/domain/delivery"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAggregator_Aggregate(t *testing.T) {
	agg := NewAggregator(dec("0.08"))
	zone := &delivery.Zone{ID: "zone-sf", City: "San Francisco", Fee: dec("10.00")}

	tests := []struct {
		name  string
		lines []Line
		zone  *delivery.Zone
		disc  *coupon.Discount
		want  Pricing
	}{
		{
			name: "subtotal plus tax plus fee",
			lines: []Line{
				{ProductID: "p1", Price: dec("50.00"), Quantity: 2},
			},
			zone: zone,
			want: Pricing{
				Subtotal:    dec("100.00"),
				Tax:         dec("8.00"),
				DeliveryFee: dec("10.00"),
				Discount:    dec("0"),
				Total:       dec("118.00"),
			},
		},
		{
			name: "multiple lines sum before tax",
			lines: []Line{
				{ProductID: "p1", Price: dec("19.99"), Quantity: 1},
				{ProductID: "p2", Price: dec("5.25"), Quantity: 3},
			},
			zone: zone,
			want: Pricing{
				Subtotal:    dec("35.74"),
				Tax:         dec("2.86"), // 35.74 * 0.08 = 2.8592, rounded
				DeliveryFee: dec("10.00"),
				Discount:    dec("0"),
				Total:       dec("48.60"),
			},
		},
		{
			name: "fixed discount reduces total",
			lines: []Line{
				{ProductID: "p1", Price: dec("50.00"), Quantity: 2},
			},
			zone: zone,
			disc: &coupon.Discount{Code: "FLAT5", Type: coupon.DiscountFixed, Amount: dec("5.00")},
			want: Pricing{
				Subtotal:    dec("100.00"),
				Tax:         dec("8.00"),
				DeliveryFee: dec("10.00"),
				Discount:    dec("5.00"),
				Total:       dec("113.00"),
			},
		},
		{
			name: "shipping coupon discounts the full fee",
			lines: []Line{
				{ProductID: "p1", Price: dec("50.00"), Quantity: 2},
			},
			zone: zone,
			disc: &coupon.Discount{Code: "FREESHIP", Type: coupon.DiscountShipping, FreeShipping: true},
			want: Pricing{
				Subtotal:    dec("100.00"),
				Tax:         dec("8.00"),
				DeliveryFee: dec("10.00"),
				Discount:    dec("10.00"),
				Total:       dec("108.00"),
			},
		},
		{
			name: "discount larger than total floors at zero",
			lines: []Line{
				{ProductID: "p1", Price: dec("1.00"), Quantity: 1},
			},
			zone: zone,
			disc: &coupon.Discount{Code: "BIG", Type: coupon.DiscountFixed, Amount: dec("500.00")},
			want: Pricing{
				Subtotal:    dec("1.00"),
				Tax:         dec("0.08"),
				DeliveryFee: dec("10.00"),
				Discount:    dec("500.00"),
				Total:       dec("0"),
			},
		},
		{
			name: "nil zone means no fee",
			lines: []Line{
				{ProductID: "p1", Price: dec("10.00"), Quantity: 1},
			},
			want: Pricing{
				Subtotal:    dec("10.00"),
				Tax:         dec("0.80"),
				DeliveryFee: dec("0"),
				Discount:    dec("0"),
				Total:       dec("10.80"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := agg.Aggregate(tt.lines, tt.zone, tt.disc)
			require.NoError(t, err)

			assert.True(t, tt.want.Subtotal.Equal(got.Subtotal), "subtotal: want %s got %s", tt.want.Subtotal, got.Subtotal)
			assert.True(t, tt.want.Tax.Equal(got.Tax), "tax: want %s got %s", tt.want.Tax, got.Tax)
			assert.True(t, tt.want.DeliveryFee.Equal(got.DeliveryFee), "fee: want %s got %s", tt.want.DeliveryFee, got.DeliveryFee)
			assert.True(t, tt.want.Discount.Equal(got.Discount), "discount: want %s got %s", tt.want.Discount, got.Discount)
			assert.True(t, tt.want.Total.Equal(got.Total), "total: want %s got %s", tt.want.Total, got.Total)
		})
	}
}

func TestAggregator_Aggregate_TotalIdentity(t *testing.T) {
	// Total = Subtotal + Tax + DeliveryFee - Discount must hold for every
	// discount type, including shipping coupons.
	agg := NewAggregator(dec("0.08"))
	zone := &delivery.Zone{ID: "z", City: "c", Fee: dec("7.49")}
	lines := []Line{{ProductID: "p1", Price: dec("33.33"), Quantity: 3}}

	for _, disc := range []*coupon.Discount{
		nil,
		{Code: "PCT", Type: coupon.DiscountPercentage, Amount: dec("12.34")},
		{Code: "FIX", Type: coupon.DiscountFixed, Amount: dec("5.00")},
		{Code: "SHIP", Type: coupon.DiscountShipping, FreeShipping: true},
	} {
		p, err := agg.Aggregate(lines, zone, disc)
		require.NoError(t, err)

		identity := p.Subtotal.Add(p.Tax).Add(p.DeliveryFee).Sub(p.Discount)
		assert.True(t, p.Total.Equal(identity), "total %s != identity %s", p.Total, identity)
	}
}

func TestAggregator_Aggregate_Errors(t *testing.T) {
	agg := NewAggregator(dec("0.08"))

	_, err := agg.Aggregate(nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = agg.Aggregate([]Line{{ProductID: "p1", Price: dec("10"), Quantity: 0}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = agg.Aggregate([]Line{{ProductID: "p1", Price: dec("10"), Quantity: -2}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = agg.Aggregate([]Line{{ProductID: "p1", Price: dec("-1"), Quantity: 1}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = agg.Aggregate(
		[]Line{{ProductID: "p1", Price: dec("10"), Quantity: 1}},
		nil,
		&coupon.Discount{Code: "NEG", Type: coupon.DiscountFixed, Amount: dec("-5")},
	)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
