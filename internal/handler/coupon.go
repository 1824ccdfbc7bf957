package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code        string
	OrderAmount decimal.Decimal
}

func decodeValidateCoupon(w http.ResponseWriter, r *http.Request) (validateCouponRequest, error) {
	var req validateCouponRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "orderAmount":
			req.OrderAmount, err = decodeDecimal(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// ValidateCoupon answers whether a code applies to an order amount. Domain
// failures are part of the 200 answer; only unreadable bodies are rejected.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	req, err := decodeValidateCoupon(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := coupon.NewResult(h.Coupons.Validate(r.Context(), req.Code, req.OrderAmount, time.Now()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	outcome := "valid"
	if !res.Valid {
		outcome = string(res.ErrorKind)
	}
	h.metrics.couponValidated(r.Context(), outcome)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(res.Valid) })
			encodeMoney(e, "discountAmount", res.DiscountAmount)
			e.Field("freeShipping", func(e *jx.Encoder) { e.Bool(res.FreeShipping) })
			if res.Coupon != nil {
				e.Field("coupon", func(e *jx.Encoder) { encodeSnapshot(e, *res.Coupon) })
			}
			encodeOmitEmpty(e, "errorKind", string(res.ErrorKind))
			encodeStr(e, "message", res.Message)
		})
	})
}

type couponRequest struct {
	Code              string `json:"code" validate:"required,max=64"`
	Name              string `json:"name" validate:"required,max=200"`
	Description       string `json:"description" validate:"max=2000"`
	Type              string `json:"type" validate:"required"`
	Value             decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	StartDate         *time.Time
	EndDate           *time.Time
	IsActive          *bool
	UsageLimit        *int `json:"usageLimit" validate:"omitempty,min=0"`
}

func decodeCoupon(w http.ResponseWriter, r *http.Request) (couponRequest, error) {
	var req couponRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "name":
			req.Name, err = d.Str()
		case "description":
			req.Description, err = d.Str()
		case "type":
			req.Type, err = d.Str()
		case "value":
			req.Value, err = decodeDecimal(d, key)
		case "minOrderAmount":
			req.MinOrderAmount, err = decodeOptDecimal(d, key)
		case "maxDiscountAmount":
			req.MaxDiscountAmount, err = decodeOptDecimal(d, key)
		case "startDate":
			req.StartDate, err = decodeOptTime(d, key)
		case "endDate":
			req.EndDate, err = decodeOptTime(d, key)
		case "isActive":
			var v bool
			v, err = d.Bool()
			req.IsActive = &v
		case "usageLimit":
			req.UsageLimit, err = decodeOptInt(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func (req couponRequest) input() coupon.Input {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return coupon.Input{
		Code:              req.Code,
		Name:              req.Name,
		Description:       req.Description,
		Type:              coupon.Type(strings.ToUpper(strings.TrimSpace(req.Type))),
		Value:             req.Value,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		IsActive:          active,
		UsageLimit:        req.UsageLimit,
	}
}

func (h *Handler) readCoupon(w http.ResponseWriter, r *http.Request) (coupon.Input, bool) {
	req, err := decodeCoupon(w, r)
	if err == nil {
		err = h.check(req)
	}
	if err != nil {
		respondError(w, r, err)
		return coupon.Input{}, false
	}
	return req.input(), true
}

// CreateCoupon defines a new coupon.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readCoupon(w, r)
	if !ok {
		return
	}
	c, err := h.Admin.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// UpdateCoupon replaces a coupon definition. The usage counter is kept.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readCoupon(w, r)
	if !ok {
		return
	}
	c, err := h.Admin.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// GetCoupon returns one coupon.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.Admin.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// ListCoupons returns every coupon.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Admin.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range coupons {
				encodeCoupon(e, &coupons[i])
			}
		})
	})
}

// DeleteCoupon removes a coupon.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeSnapshot(e *jx.Encoder, s coupon.Snapshot) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", s.ID)
		encodeStr(e, "code", s.Code)
		encodeStr(e, "name", s.Name)
		encodeOmitEmpty(e, "description", s.Description)
		encodeStr(e, "type", string(s.Type))
		encodeMoney(e, "value", s.Value)
		encodeOptMoney(e, "minOrderAmount", s.MinOrderAmount)
		encodeOptMoney(e, "maxDiscountAmount", s.MaxDiscountAmount)
	})
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", c.ID)
		encodeStr(e, "code", c.Code)
		encodeStr(e, "name", c.Name)
		encodeOmitEmpty(e, "description", c.Description)
		encodeStr(e, "type", string(c.Type))
		encodeMoney(e, "value", c.Value)
		encodeOptMoney(e, "minOrderAmount", c.MinOrderAmount)
		encodeOptMoney(e, "maxDiscountAmount", c.MaxDiscountAmount)
		encodeOptTime(e, "startDate", c.StartDate)
		encodeOptTime(e, "endDate", c.EndDate)
		e.Field("isActive", func(e *jx.Encoder) { e.Bool(c.IsActive) })
		if c.UsageLimit != nil {
			e.Field("usageLimit", func(e *jx.Encoder) { e.Int(*c.UsageLimit) })
		}
		e.Field("usedCount", func(e *jx.Encoder) { e.Int(c.UsedCount) })
		encodeTime(e, "createdAt", c.CreatedAt)
		encodeTime(e, "updatedAt", c.UpdatedAt)
	})
}
