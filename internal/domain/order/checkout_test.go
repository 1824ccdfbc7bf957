package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCouponValidator struct {
	validation *coupon.Validation
	err        error
	lastAmount decimal.Decimal
}

func (m *mockCouponValidator) Validate(_ context.Context, _ string, amount decimal.Decimal, _ time.Time) (*coupon.Validation, error) {
	m.lastAmount = amount
	return m.validation, m.err
}

type mockAddressBook struct {
	addr *address.Address
	err  error
}

func (m *mockAddressBook) Get(_ context.Context, _, _ string) (*address.Address, error) {
	return m.addr, m.err
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func widgets() *mockProductRepo {
	return newProductRepo(
		product.Product{ID: "p1", Name: "Widget", Price: dec("10.00"), ImageURL: "widget.jpg", Available: true},
		product.Product{ID: "p2", Name: "Gadget", Price: dec("20.00"), Available: true},
		product.Product{ID: "p3", Name: "Retired", Price: dec("5.00")},
	)
}

var shipTo = Customer{Name: "Asha", Phone: "+91 98450 00000", Address: "12 MG Road", City: "Bengaluru"}

func newTestCheckout(products *mockProductRepo, cv coupon.Validator, orders *memRepo, pricing Pricing) *Checkout {
	c := NewCheckout(products, cv, &mockAddressBook{err: errors.New("unused")}, orders, pricing)
	c.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	c.newID = func() string { return "3f2a9c1e-0000-4000-8000-000000000001" }
	return c
}

// --- Tests ---

func TestPlaceOrder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		req      PlaceOrderRequest
		wantKind fault.Kind
		check    func(t *testing.T, err error)
	}{
		{
			name:     "empty items",
			req:      PlaceOrderRequest{Customer: shipTo},
			wantKind: fault.InvalidInput,
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrEmptyItems) },
		},
		{
			name:     "zero quantity",
			req:      PlaceOrderRequest{Customer: shipTo, Items: []LineItem{{ProductID: "p1"}}},
			wantKind: fault.InvalidInput,
			check: func(t *testing.T, err error) {
				var iqErr *InvalidQuantityError
				require.ErrorAs(t, err, &iqErr)
				assert.Equal(t, "p1", iqErr.ProductID)
			},
		},
		{
			name:     "unknown product",
			req:      PlaceOrderRequest{Customer: shipTo, Items: []LineItem{{ProductID: "missing", Quantity: 1}}},
			wantKind: fault.NotFound,
			check: func(t *testing.T, err error) {
				var pnfErr *ProductNotFoundError
				require.ErrorAs(t, err, &pnfErr)
				assert.Equal(t, "missing", pnfErr.ProductID)
			},
		},
		{
			name:     "unavailable product",
			req:      PlaceOrderRequest{Customer: shipTo, Items: []LineItem{{ProductID: "p3", Quantity: 1}}},
			wantKind: fault.PolicyViolation,
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrProductUnavailable) },
		},
		{
			name:     "no shipping address",
			req:      PlaceOrderRequest{Customer: Customer{Name: "Asha"}, Items: []LineItem{{ProductID: "p1", Quantity: 1}}},
			wantKind: fault.InvalidInput,
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMissingShipping) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			c := newTestCheckout(widgets(), &mockCouponValidator{}, repo, Pricing{})

			_, err := c.PlaceOrder(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, fault.KindOf(err))
			tt.check(t, err)
			assert.Empty(t, repo.orders)
		})
	}
}

func TestPlaceOrder_NoCoupon(t *testing.T) {
	repo := newMemRepo()
	c := newTestCheckout(widgets(), &mockCouponValidator{}, repo, Pricing{
		DeliveryFee: dec("40"),
		TaxRate:     dec("5"),
	})

	o, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: "cust-1",
		Customer:   shipTo,
		Items: []LineItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.True(t, dec("40.00").Equal(o.Subtotal))
	assert.True(t, decimal.Zero.Equal(o.DiscountAmount))
	assert.True(t, dec("40.00").Equal(o.DeliveryFee))
	assert.True(t, dec("2.00").Equal(o.TaxAmount))
	assert.True(t, dec("82.00").Equal(o.TotalAmount))
	assert.Equal(t, "ORD-20250615-3F2A9C1E", o.OrderNumber)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Widget", o.Items[0].ProductName)
	assert.True(t, dec("20.00").Equal(o.Items[0].Total))

	require.Len(t, repo.history, 1)
	assert.Equal(t, StatusPending, repo.history[0].Status)
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	cv := &mockCouponValidator{validation: &coupon.Validation{
		Coupon:   coupon.Snapshot{ID: "c1", Code: "SAVE10"},
		Discount: dec("4.00"),
	}}
	repo := newMemRepo()
	c := newTestCheckout(widgets(), cv, repo, Pricing{DeliveryFee: dec("40"), TaxRate: dec("5")})

	o, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		Customer:   shipTo,
		Items:      []LineItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
		CouponCode: "save10",
	})
	require.NoError(t, err)

	assert.True(t, dec("40").Equal(cv.lastAmount), "coupon is checked against the subtotal")
	assert.True(t, dec("4.00").Equal(o.DiscountAmount))
	// tax = 36 * 5% = 1.80
	assert.True(t, dec("1.80").Equal(o.TaxAmount))
	assert.True(t, dec("77.80").Equal(o.TotalAmount))
	assert.Equal(t, "c1", o.CouponID)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.True(t, o.TotalAmount.Equal(o.Subtotal.Sub(o.DiscountAmount).Add(o.DeliveryFee).Add(o.TaxAmount)))
}

func TestPlaceOrder_FreeShippingWaivesDelivery(t *testing.T) {
	cv := &mockCouponValidator{validation: &coupon.Validation{
		Coupon:       coupon.Snapshot{ID: "c4", Code: "FREESHIP"},
		Discount:     decimal.Zero,
		FreeShipping: true,
	}}
	c := newTestCheckout(widgets(), cv, newMemRepo(), Pricing{DeliveryFee: dec("40")})

	o, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		Customer:   shipTo,
		Items:      []LineItem{{ProductID: "p1", Quantity: 1}},
		CouponCode: "FREESHIP",
	})
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(o.DeliveryFee))
	assert.True(t, dec("10.00").Equal(o.TotalAmount))
}

func TestPlaceOrder_InvalidCoupon(t *testing.T) {
	cv := &mockCouponValidator{err: fault.New(fault.PolicyViolation, coupon.ErrCouponNotYetValidOrExpired, "Coupon OLD20 has expired.")}
	repo := newMemRepo()
	c := newTestCheckout(widgets(), cv, repo, Pricing{})

	_, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		Customer:   shipTo,
		Items:      []LineItem{{ProductID: "p1", Quantity: 1}},
		CouponCode: "OLD20",
	})
	require.ErrorIs(t, err, coupon.ErrCouponNotYetValidOrExpired)
	assert.Equal(t, fault.PolicyViolation, fault.KindOf(err))
	assert.Empty(t, repo.orders)
}

func TestPlaceOrder_CouponExhaustedAtRedemption(t *testing.T) {
	cv := &mockCouponValidator{validation: &coupon.Validation{
		Coupon:   coupon.Snapshot{ID: "c2", Code: "FLAT50"},
		Discount: dec("10.00"),
	}}
	repo := newMemRepo()
	repo.usageLeft["c2"] = 0
	c := newTestCheckout(widgets(), cv, repo, Pricing{})

	_, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		Customer:   shipTo,
		Items:      []LineItem{{ProductID: "p1", Quantity: 1}},
		CouponCode: "FLAT50",
	})
	require.ErrorIs(t, err, coupon.ErrCouponUsageLimitReached)
	assert.Equal(t, fault.PolicyViolation, fault.KindOf(err))
	assert.EqualError(t, err, "Coupon FLAT50 has reached its usage limit.")
}

func TestPlaceOrder_SavedAddress(t *testing.T) {
	repo := newMemRepo()
	c := newTestCheckout(widgets(), &mockCouponValidator{}, repo, Pricing{})
	c.addresses = &mockAddressBook{addr: &address.Address{
		ID:          "a1",
		CustomerID:  "cust-1",
		Address:     "221B Baker Street",
		City:        "London",
		Landmark:    "Near the park",
		Coordinates: &address.Coordinates{Lat: 51.52, Lng: -0.15},
	}}

	o, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: "cust-1",
		AddressID:  "a1",
		Customer:   Customer{Name: "Sherlock"},
		Items:      []LineItem{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Sherlock", o.Customer.Name)
	assert.Equal(t, "221B Baker Street", o.Customer.Address)
	assert.Equal(t, "London", o.Customer.City)
	require.NotNil(t, o.Customer.Coordinates)
	assert.InDelta(t, 51.52, o.Customer.Coordinates.Lat, 1e-9)
}

func TestPlaceOrder_ForeignAddress(t *testing.T) {
	c := newTestCheckout(widgets(), &mockCouponValidator{}, newMemRepo(), Pricing{})
	c.addresses = &mockAddressBook{err: fault.New(fault.NotFound, address.ErrAddressNotFound, "Address not found.")}

	_, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: "cust-1",
		AddressID:  "someone-elses",
		Items:      []LineItem{{ProductID: "p1", Quantity: 1}},
	})
	require.ErrorIs(t, err, address.ErrAddressNotFound)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestPlaceOrder_RetriesTakenOrderNumber(t *testing.T) {
	ids := []string{
		"3f2a9c1e-0000-4000-8000-000000000001",
		"9b7d0c55-0000-4000-8000-000000000002",
		"c01dcafe-0000-4000-8000-000000000003",
	}
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo(Order{ID: "existing", OrderNumber: orderNumber(now, ids[0])})
	c := newTestCheckout(widgets(), &mockCouponValidator{}, repo, Pricing{})
	next := 0
	c.newID = func() string {
		id := ids[next]
		next++
		return id
	}

	o, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		Customer: shipTo,
		Items:    []LineItem{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, ids[2], o.ID)
	assert.Equal(t, "ORD-20250615-C01DCAFE", o.OrderNumber)

	history, err := repo.History(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ids[1], history[0].ID)
}

func TestPlaceOrder_OrderNumberRetriesExhausted(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo(Order{ID: "existing", OrderNumber: orderNumber(now, "3f2a9c1e-0000-4000-8000-000000000001")})
	c := newTestCheckout(widgets(), &mockCouponValidator{}, repo, Pricing{})

	_, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		Customer: shipTo,
		Items:    []LineItem{{ProductID: "p1", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrDuplicateOrderNumber)
	assert.Equal(t, fault.Kind(""), fault.KindOf(err))
	assert.Len(t, repo.orders, 1)
}

func TestPlaceOrder_TotalOutOfRange(t *testing.T) {
	products := newProductRepo(
		product.Product{ID: "big", Name: "Yacht", Price: dec("9999999999.99"), Available: true},
	)
	cv := &mockCouponValidator{validation: &coupon.Validation{Discount: decimal.Zero}}
	repo := newMemRepo()
	c := newTestCheckout(products, cv, repo, Pricing{DeliveryFee: dec("1.00")})

	for _, qty := range []int{2, 1} {
		_, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
			Customer:   shipTo,
			Items:      []LineItem{{ProductID: "big", Quantity: qty}},
			CouponCode: "ANY",
		})
		require.ErrorIs(t, err, ErrOrderTooLarge, "quantity %d", qty)
		assert.Equal(t, fault.InvalidInput, fault.KindOf(err))
	}
	assert.Empty(t, repo.orders)
}

func TestPlaceOrder_StoreErrors(t *testing.T) {
	products := widgets()
	products.getErr = errors.New("db read failed")
	c := newTestCheckout(products, &mockCouponValidator{}, newMemRepo(), Pricing{})

	_, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		Customer: shipTo,
		Items:    []LineItem{{ProductID: "p1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get products")

	repo := newMemRepo()
	repo.createErr = errors.New("db write failed")
	c = newTestCheckout(widgets(), &mockCouponValidator{}, repo, Pricing{})

	_, err = c.PlaceOrder(context.Background(), PlaceOrderRequest{
		Customer: shipTo,
		Items:    []LineItem{{ProductID: "p1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Equal(t, fault.Kind(""), fault.KindOf(err))
}
