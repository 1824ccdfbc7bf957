package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/address"
)

type addressRequest struct {
	Type        string              `json:"type" validate:"max=16"`
	Name        string              `json:"name" validate:"max=100"`
	Address     string              `json:"address" validate:"max=500"`
	City        string              `json:"city" validate:"max=100"`
	Landmark    string              `json:"landmark" validate:"max=200"`
	Coordinates *coordinatesRequest `json:"coordinates"`
	IsDefault   bool                `json:"isDefault"`
}

func decodeAddress(w http.ResponseWriter, r *http.Request) (addressRequest, error) {
	var req addressRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "type":
			req.Type, err = d.Str()
		case "name":
			req.Name, err = d.Str()
		case "address":
			req.Address, err = d.Str()
		case "city":
			req.City, err = d.Str()
		case "landmark":
			req.Landmark, err = d.Str()
		case "coordinates":
			req.Coordinates, err = decodeCoordinates(d)
		case "isDefault":
			req.IsDefault, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func (req addressRequest) input() address.Input {
	return address.Input{
		Type:        address.Type(strings.ToLower(strings.TrimSpace(req.Type))),
		Name:        req.Name,
		Address:     req.Address,
		City:        req.City,
		Landmark:    req.Landmark,
		Coordinates: req.Coordinates.domain(),
		IsDefault:   req.IsDefault,
	}
}

func (h *Handler) readAddress(w http.ResponseWriter, r *http.Request) (address.Input, bool) {
	req, err := decodeAddress(w, r)
	if err == nil {
		err = h.check(req)
	}
	if err != nil {
		respondError(w, r, err)
		return address.Input{}, false
	}
	return req.input(), true
}

// ListAddresses returns the customer's addresses, default first.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.Addresses.List(r.Context(), customerFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range addrs {
				encodeAddress(e, &addrs[i])
			}
		})
	})
}

// CreateAddress saves a new address for the customer.
func (h *Handler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readAddress(w, r)
	if !ok {
		return
	}
	a, err := h.Addresses.Create(r.Context(), customerFrom(r.Context()), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeAddress(e, a) })
}

// UpdateAddress replaces one of the customer's addresses.
func (h *Handler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readAddress(w, r)
	if !ok {
		return
	}
	a, err := h.Addresses.Update(r.Context(), customerFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeAddress(e, a) })
}

// SetDefaultAddress makes the address the customer's only default.
func (h *Handler) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	a, err := h.Addresses.SetDefault(r.Context(), customerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeAddress(e, a) })
}

// DeleteAddress removes one of the customer's addresses.
func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.Addresses.Delete(r.Context(), customerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeAddress(e *jx.Encoder, a *address.Address) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", a.ID)
		encodeStr(e, "type", string(a.Type))
		encodeStr(e, "name", a.Name)
		encodeStr(e, "address", a.Address)
		encodeStr(e, "city", a.City)
		encodeOmitEmpty(e, "landmark", a.Landmark)
		encodeCoordinates(e, a.Coordinates)
		e.Field("isDefault", func(e *jx.Encoder) { e.Bool(a.IsDefault) })
		encodeTime(e, "createdAt", a.CreatedAt)
		encodeTime(e, "updatedAt", a.UpdatedAt)
	})
}
