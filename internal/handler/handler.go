// Package handler exposes the storefront domain services over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

// CouponAdmin manages coupon definitions.
type CouponAdmin interface {
	Create(ctx context.Context, in coupon.Input) (*coupon.Coupon, error)
	Update(ctx context.Context, id string, in coupon.Input) (*coupon.Coupon, error)
	Get(ctx context.Context, id string) (*coupon.Coupon, error)
	List(ctx context.Context) ([]coupon.Coupon, error)
	Delete(ctx context.Context, id string) error
}

// OrderPlacer places orders.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
}

// OrderWorkflow applies administrative order updates.
type OrderWorkflow interface {
	ApplyUpdate(ctx context.Context, u order.Update) (*order.Transition, error)
}

// OrderReader answers order reads.
type OrderReader interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	GetForCustomer(ctx context.Context, customerID, id string) (*order.Order, error)
	History(ctx context.Context, id string) ([]order.StatusHistory, error)
}

// AddressBook manages a customer's saved addresses.
type AddressBook interface {
	List(ctx context.Context, customerID string) ([]address.Address, error)
	Create(ctx context.Context, customerID string, in address.Input) (*address.Address, error)
	Update(ctx context.Context, customerID, id string, in address.Input) (*address.Address, error)
	SetDefault(ctx context.Context, customerID, id string) (*address.Address, error)
	Delete(ctx context.Context, customerID, id string) error
}

// Deps holds the services the handlers delegate to.
type Deps struct {
	Coupons   coupon.Validator
	Admin     CouponAdmin
	Checkout  OrderPlacer
	Workflow  OrderWorkflow
	Orders    OrderReader
	Addresses AddressBook
	APIKeys   auth.Repository
	Meter     metric.Meter
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative product image paths in order
	// responses. When empty, image paths are returned as stored.
	ImageBaseURL string
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper []byte
}

// Handler serves the storefront API.
type Handler struct {
	Deps

	imageBaseURL string
	pepper       []byte
	validate     *validatorv10.Validate
	metrics      *metrics
}

// New creates a Handler.
func New(cfg Config, deps Deps) (*Handler, error) {
	m, err := newMetrics(deps.Meter)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	return &Handler{
		Deps:         deps,
		imageBaseURL: strings.TrimSuffix(cfg.ImageBaseURL, "/"),
		pepper:       cfg.APIKeyPepper,
		validate:     newValidator(),
		metrics:      m,
	}, nil
}

// CouponValidatePath is the public coupon check endpoint.
const CouponValidatePath = "/api/coupons/validate"

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post(strings.TrimPrefix(CouponValidatePath, "/api"), h.ValidateCoupon)

		r.Group(func(r chi.Router) {
			r.Use(RequireCustomer)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders/{id}", h.GetOrder)

			r.Route("/customers/me/addresses", func(r chi.Router) {
				r.Get("/", h.ListAddresses)
				r.Post("/", h.CreateAddress)
				r.Put("/{id}", h.UpdateAddress)
				r.Post("/{id}/default", h.SetDefaultAddress)
				r.Delete("/{id}", h.DeleteAddress)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireAPIKey(auth.ScopeAdmin))

			r.Route("/coupons", func(r chi.Router) {
				r.Get("/", h.ListCoupons)
				r.Post("/", h.CreateCoupon)
				r.Get("/{id}", h.GetCoupon)
				r.Put("/{id}", h.UpdateCoupon)
				r.Delete("/{id}", h.DeleteCoupon)
			})
			r.Route("/orders/{id}", func(r chi.Router) {
				r.Get("/", h.AdminGetOrder)
				r.Get("/history", h.OrderHistory)
				r.Patch("/status", h.UpdateOrderStatus)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NotFound", "Route not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "Method not allowed.")
	})
}

func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.Contains(path, "://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimPrefix(path, "/")
}
