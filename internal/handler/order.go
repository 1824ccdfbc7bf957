package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/order"
)

type lineItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	Quantity  int    `json:"quantity"`
}

type customerRequest struct {
	Name        string              `json:"name" validate:"max=200"`
	Email       string              `json:"email" validate:"omitempty,email,max=320"`
	Phone       string              `json:"phone" validate:"max=32"`
	Address     string              `json:"address" validate:"max=500"`
	City        string              `json:"city" validate:"max=100"`
	Landmark    string              `json:"landmark" validate:"max=200"`
	Coordinates *coordinatesRequest `json:"coordinates"`
}

type coordinatesRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (c *coordinatesRequest) domain() *address.Coordinates {
	if c == nil || c.Lat == nil || c.Lng == nil {
		return nil
	}
	return &address.Coordinates{Lat: *c.Lat, Lng: *c.Lng}
}

type placeOrderRequest struct {
	Items         []lineItemRequest `json:"items" validate:"max=100,dive"`
	CouponCode    string            `json:"couponCode" validate:"max=64"`
	AddressID     string            `json:"addressId" validate:"max=64"`
	Customer      customerRequest   `json:"customer"`
	PaymentMethod string            `json:"paymentMethod" validate:"max=32"`
	Notes         string            `json:"notes" validate:"max=1000"`
}

func decodeCoordinates(d *jx.Decoder) (*coordinatesRequest, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var c coordinatesRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "lat":
			c.Lat, err = decodeOptFloat(d)
		case "lng":
			c.Lng, err = decodeOptFloat(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return &c, err
}

func decodeCustomer(d *jx.Decoder) (customerRequest, error) {
	var c customerRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			c.Name, err = d.Str()
		case "email":
			c.Email, err = d.Str()
		case "phone":
			c.Phone, err = d.Str()
		case "address":
			c.Address, err = d.Str()
		case "city":
			c.City, err = d.Str()
		case "landmark":
			c.Landmark, err = d.Str()
		case "coordinates":
			c.Coordinates, err = decodeCoordinates(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return c, err
}

func decodePlaceOrder(w http.ResponseWriter, r *http.Request) (placeOrderRequest, error) {
	var req placeOrderRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var item lineItemRequest
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "productId":
						item.ProductID, err = d.Str()
					case "quantity":
						item.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "couponCode":
			req.CouponCode, err = d.Str()
		case "addressId":
			req.AddressID, err = d.Str()
		case "customer":
			req.Customer, err = decodeCustomer(d)
		case "paymentMethod":
			req.PaymentMethod, err = d.Str()
		case "notes":
			req.Notes, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func (req placeOrderRequest) domain(customerID string) order.PlaceOrderRequest {
	items := make([]order.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.LineItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	c := req.Customer
	return order.PlaceOrderRequest{
		CustomerID: customerID,
		Items:      items,
		CouponCode: req.CouponCode,
		AddressID:  req.AddressID,
		Customer: order.Customer{
			Name:        c.Name,
			Email:       c.Email,
			Phone:       c.Phone,
			Address:     c.Address,
			City:        c.City,
			Landmark:    c.Landmark,
			Coordinates: c.Coordinates.domain(),
		},
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	}
}

// PlaceOrder checks out the customer's cart.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodePlaceOrder(w, r)
	if err == nil {
		err = h.check(req)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	o, err := h.Checkout.PlaceOrder(r.Context(), req.domain(customerFrom(r.Context())))
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.metrics.orderPlaced(r.Context(), o.CouponID != "")

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// GetOrder returns one of the customer's own orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetForCustomer(r.Context(), customerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// AdminGetOrder returns any order.
func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// OrderHistory returns the status history of an order, oldest first.
func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Orders.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, entry := range history {
				encodeHistory(e, entry)
			}
		})
	})
}

type statusUpdateRequest struct {
	Status        string  `json:"status" validate:"required"`
	PaymentStatus string  `json:"paymentStatus" validate:"required"`
	Notes         *string `json:"notes" validate:"omitempty,max=1000"`
}

func decodeStatusUpdate(w http.ResponseWriter, r *http.Request) (statusUpdateRequest, error) {
	var req statusUpdateRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			req.Status, err = d.Str()
		case "paymentStatus":
			req.PaymentStatus, err = d.Str()
		case "notes":
			req.Notes, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// UpdateOrderStatus moves an order through its workflow.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStatusUpdate(w, r)
	if err == nil {
		err = h.check(req)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	t, err := h.Workflow.ApplyUpdate(r.Context(), order.Update{
		OrderID:       chi.URLParam(r, "id"),
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if t.StatusChanged() {
		h.metrics.transitioned(r.Context(), t)
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("ok", func(e *jx.Encoder) { e.Bool(true) })
			encodeStr(e, "orderId", t.OrderID)
			encodeStr(e, "orderNumber", t.OrderNumber)
			encodeStr(e, "from", string(t.From))
			encodeStr(e, "to", string(t.To))
			encodeStr(e, "paymentStatus", string(t.PaymentStatus))
			if t.History != nil {
				e.Field("history", func(e *jx.Encoder) { encodeHistory(e, *t.History) })
			}
			encodeTime(e, "changedAt", t.ChangedAt)
		})
	})
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", o.ID)
		encodeStr(e, "orderNumber", o.OrderNumber)
		encodeStr(e, "customerId", o.CustomerID)
		encodeStr(e, "status", string(o.Status))
		encodeStr(e, "paymentStatus", string(o.PaymentStatus))
		encodeOmitEmpty(e, "paymentMethod", o.PaymentMethod)
		encodeMoney(e, "subtotal", o.Subtotal)
		encodeMoney(e, "discountAmount", o.DiscountAmount)
		encodeMoney(e, "deliveryFee", o.DeliveryFee)
		encodeMoney(e, "taxAmount", o.TaxAmount)
		encodeMoney(e, "totalAmount", o.TotalAmount)
		encodeOmitEmpty(e, "couponCode", o.CouponCode)
		encodeOmitEmpty(e, "notes", o.Notes)
		e.Field("customer", func(e *jx.Encoder) { encodeCustomer(e, o.Customer) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					h.encodeItem(e, item)
				}
			})
		})
		encodeTime(e, "createdAt", o.CreatedAt)
		encodeTime(e, "updatedAt", o.UpdatedAt)
	})
}

func (h *Handler) encodeItem(e *jx.Encoder, item order.Item) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "productId", item.ProductID)
		encodeStr(e, "productName", item.ProductName)
		encodeOmitEmpty(e, "productImage", h.imageURL(item.ProductImage))
		e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
		encodeMoney(e, "unitPrice", item.UnitPrice)
		encodeMoney(e, "discount", item.Discount)
		encodeMoney(e, "total", item.Total)
	})
}

func encodeCustomer(e *jx.Encoder, c order.Customer) {
	e.Obj(func(e *jx.Encoder) {
		encodeOmitEmpty(e, "name", c.Name)
		encodeOmitEmpty(e, "email", c.Email)
		encodeOmitEmpty(e, "phone", c.Phone)
		encodeOmitEmpty(e, "address", c.Address)
		encodeOmitEmpty(e, "city", c.City)
		encodeOmitEmpty(e, "landmark", c.Landmark)
		encodeCoordinates(e, c.Coordinates)
	})
}

func encodeCoordinates(e *jx.Encoder, c *address.Coordinates) {
	if c == nil {
		return
	}
	e.Field("coordinates", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("lat", func(e *jx.Encoder) { e.Float64(c.Lat) })
			e.Field("lng", func(e *jx.Encoder) { e.Float64(c.Lng) })
		})
	})
}

func encodeHistory(e *jx.Encoder, h order.StatusHistory) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", h.ID)
		encodeStr(e, "status", string(h.Status))
		encodeOmitEmpty(e, "notes", h.Notes)
		encodeTime(e, "createdAt", h.CreatedAt)
	})
}
