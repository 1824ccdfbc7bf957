package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/fault"
	"github.com/xenking/storefront/internal/domain/money"
	"github.com/xenking/storefront/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems         = errors.New("items required")
	ErrMissingShipping    = errors.New("shipping address required")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrOrderTooLarge      = errors.New("order amount out of range")
	// ErrDuplicateOrderNumber is returned by Repository.Create when the
	// order number is already taken.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
)

// orderNumberAttempts bounds retries after an order number collision.
const orderNumberAttempts = 3

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// LineItem is a requested product and quantity.
type LineItem struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order. When AddressID is
// set the saved address replaces the address fields of Customer.
type PlaceOrderRequest struct {
	CustomerID    string
	Items         []LineItem
	CouponCode    string
	AddressID     string
	Customer      Customer
	PaymentMethod string
	Notes         string
}

// Pricing holds the store-wide charges added on top of the merchandise.
type Pricing struct {
	DeliveryFee decimal.Decimal
	// TaxRate is a percentage applied to the discounted subtotal.
	TaxRate decimal.Decimal
}

// AddressBook resolves a customer's saved address.
type AddressBook interface {
	Get(ctx context.Context, customerID, id string) (*address.Address, error)
}

// Checkout encapsulates order placement business logic.
type Checkout struct {
	products  product.Repository
	coupons   coupon.Validator
	addresses AddressBook
	orders    Repository
	pricing   Pricing
	now       func() time.Time
	newID     func() string
}

// NewCheckout creates a Checkout with the required domain dependencies.
func NewCheckout(
	products product.Repository,
	coupons coupon.Validator,
	addresses AddressBook,
	orders Repository,
	pricing Pricing,
) *Checkout {
	return &Checkout{
		products:  products,
		coupons:   coupons,
		addresses: addresses,
		orders:    orders,
		pricing:   pricing,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// PlaceOrder validates items, fetches products in a single batch, applies the
// coupon, prices the order and persists it together with its first history
// entry and the coupon redemption.
func (c *Checkout) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, fault.New(fault.InvalidInput, ErrEmptyItems, "Your cart is empty.")
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fault.New(fault.InvalidInput, &InvalidQuantityError{ProductID: item.ProductID},
				"Quantity for product %s must be at least 1.", item.ProductID)
		}
		ids[i] = item.ProductID
	}

	customer, err := c.shipping(ctx, req)
	if err != nil {
		return nil, err
	}

	fetched, err := c.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, fault.New(fault.NotFound, &ProductNotFoundError{ProductID: item.ProductID},
				"Product %s does not exist.", item.ProductID)
		}
		if !p.Available {
			return nil, fault.New(fault.PolicyViolation, ErrProductUnavailable,
				"%s is no longer available.", p.Name)
		}

		total := p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		items = append(items, Item{
			ProductID:    p.ID,
			ProductName:  p.Name,
			ProductImage: p.ImageURL,
			Quantity:     item.Quantity,
			UnitPrice:    p.Price,
			Discount:     decimal.Zero,
			Total:        total,
		})
		subtotal = subtotal.Add(total)
	}

	if !money.Fits(subtotal) {
		return nil, orderTooLarge()
	}

	now := c.now()
	discount := decimal.Zero
	deliveryFee := c.pricing.DeliveryFee
	var applied *coupon.Snapshot
	if strings.TrimSpace(req.CouponCode) != "" {
		v, err := c.coupons.Validate(ctx, req.CouponCode, subtotal, now)
		if err != nil {
			return nil, err
		}
		discount = v.Discount
		if v.FreeShipping {
			deliveryFee = decimal.Zero
		}
		applied = &v.Coupon
	}

	taxable := subtotal.Sub(discount)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	tax := taxable.Mul(c.pricing.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
	total := taxable.Add(deliveryFee).Add(tax).Round(2)
	if !money.Fits(total) {
		return nil, orderTooLarge()
	}

	id := c.newID()
	o := &Order{
		ID:             id,
		OrderNumber:    orderNumber(now, id),
		CustomerID:     req.CustomerID,
		Subtotal:       subtotal.Round(2),
		DiscountAmount: discount.Round(2),
		DeliveryFee:    deliveryFee.Round(2),
		TaxAmount:      tax,
		TotalAmount:    total,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		Customer:       customer,
		Items:          items,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if applied != nil {
		o.CouponID = applied.ID
		o.CouponCode = applied.Code
	}

	initial := StatusHistory{
		ID:        c.newID(),
		OrderID:   o.ID,
		Status:    StatusPending,
		Notes:     "Order placed",
		CreatedAt: now,
	}
	for attempt := 1; ; attempt++ {
		err := c.orders.Create(ctx, o, initial)
		switch {
		case err == nil:
			return o, nil
		case errors.Is(err, ErrDuplicateOrderNumber) && attempt < orderNumberAttempts:
			o.ID = c.newID()
			o.OrderNumber = orderNumber(now, o.ID)
			initial.OrderID = o.ID
		case errors.Is(err, coupon.ErrCouponUsageLimitReached):
			return nil, fault.New(fault.PolicyViolation, coupon.ErrCouponUsageLimitReached,
				"Coupon %s has reached its usage limit.", o.CouponCode)
		default:
			return nil, errors.Wrap(err, "create order")
		}
	}
}

func orderTooLarge() error {
	return fault.New(fault.InvalidInput, ErrOrderTooLarge,
		"Order total exceeds the largest amount that can be charged.")
}

// shipping resolves the customer snapshot stored on the order.
func (c *Checkout) shipping(ctx context.Context, req PlaceOrderRequest) (Customer, error) {
	customer := req.Customer
	if req.AddressID == "" {
		if strings.TrimSpace(customer.Address) == "" || strings.TrimSpace(customer.City) == "" {
			return Customer{}, fault.New(fault.InvalidInput, ErrMissingShipping,
				"Please choose a saved address or enter a shipping address.")
		}
		return customer, nil
	}

	a, err := c.addresses.Get(ctx, req.CustomerID, req.AddressID)
	if err != nil {
		return Customer{}, err
	}
	customer.Address = a.Address
	customer.City = a.City
	customer.Landmark = a.Landmark
	customer.Coordinates = a.Coordinates
	return customer, nil
}

// orderNumber builds the human-facing ORD-YYYYMMDD-XXXXXXXX number from the
// order date and the first eight hex digits of its ID.
func orderNumber(at time.Time, id string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return "ORD-" + at.UTC().Format("20060102") + "-" + suffix
}
