package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openkart/coupon-service/internal/domain/coupon"
	"github.com/openkart/coupon-service/internal/domain/product"
)

// applyRequest is the body for the coupon preview endpoint.
type applyRequest struct {
	CouponCode string             `json:"couponCode"`
	UserID     string             `json:"userId"`
	Items      []applyRequestItem `json:"items"`
}

type applyRequestItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// ApplyCoupon previews a coupon against a cart without consuming usage.
// Ineligible coupons are a 200 with eligible=false: rejection is an answer,
// not a failure, and the endpoint is safe to call repeatedly.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CouponCode == "" {
		writeError(w, r, http.StatusBadRequest, "couponCode required")
		return
	}

	cart, errMsg := h.materializeCart(r, req.Items)
	if errMsg != "" {
		writeError(w, r, http.StatusUnprocessableEntity, errMsg)
		return
	}

	decision, err := h.coupons.Preview(r.Context(), req.CouponCode, cart, req.UserID)
	if err != nil {
		zctx.From(r.Context()).Error("preview coupon", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeDecision(e, decision)
	})
}

// materializeCart resolves request items against the catalog into a fully
// materialized cart snapshot. Returns a user-facing message on bad input.
func (h *Handler) materializeCart(r *http.Request, items []applyRequestItem) (coupon.Cart, string) {
	if len(items) == 0 {
		// Missing and explicitly empty items both evaluate as an empty
		// cart, which the engine rejects.
		return coupon.Cart{}, ""
	}

	ids := make([]string, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, "quantity must be greater than 0 for product " + item.ProductID
		}
		ids[i] = item.ProductID
	}

	fetched, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		zctx.From(r.Context()).Error("fetch products", zap.Error(err))
		return nil, "internal error"
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	cart := make(coupon.Cart, 0, len(items))
	for _, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, "product " + item.ProductID + " not found"
		}
		cart = append(cart, coupon.LineItem{
			ProductID:  p.ID,
			CategoryID: p.Category,
			BrandID:    p.Brand,
			UnitPrice:  p.Price,
			Quantity:   item.Quantity,
		})
	}
	return cart, ""
}

func encodeDecision(e *jx.Encoder, d coupon.Decision) {
	e.ObjStart()
	e.FieldStart("eligible")
	e.Bool(d.Eligible)
	if d.Reason != coupon.ReasonNone {
		e.FieldStart("reason")
		e.Str(string(d.Reason))
	}
	e.FieldStart("discountAmount")
	money(e, d.DiscountAmount)
	e.FieldStart("finalTotal")
	money(e, d.FinalTotal)
	if d.Eligible {
		encodeStrings(e, "eligibleItemIds", d.EligibleItemIDs)
		if d.Description != "" {
			e.FieldStart("description")
			e.Str(d.Description)
		}
	}
	e.ObjEnd()
}

// couponRequest is the admin create/update body.
type couponRequest struct {
	Code         string     `json:"code"`
	Kind         string     `json:"kind"`
	Value        string     `json:"value"`
	Description  string     `json:"description"`
	ProductIDs   []string   `json:"productIds"`
	CategoryIDs  []string   `json:"categoryIds"`
	BrandIDs     []string   `json:"brandIds"`
	StartsAt     *time.Time `json:"startsAt"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	UsageLimit   int        `json:"usageLimit"`
	PerUserLimit int        `json:"perUserLimit"`
	Active       *bool      `json:"active"`
}

func (req *couponRequest) toDomain() (*coupon.Coupon, error) {
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		return nil, errors.Wrap(err, "parse value")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &coupon.Coupon{
		Code:         coupon.NormalizeCode(req.Code),
		Kind:         coupon.Kind(req.Kind),
		Value:        value,
		Description:  req.Description,
		ProductIDs:   req.ProductIDs,
		CategoryIDs:  req.CategoryIDs,
		BrandIDs:     req.BrandIDs,
		StartsAt:     req.StartsAt,
		ExpiresAt:    req.ExpiresAt,
		UsageLimit:   req.UsageLimit,
		PerUserLimit: req.PerUserLimit,
		Active:       active,
	}, nil
}

// CreateCoupon inserts a new coupon definition. Value bounds are enforced
// here, at the admin boundary, so evaluation never sees malformed coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code required")
		return
	}

	c, err := req.toDomain()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid value")
		return
	}

	if err := h.couponAdmin.Create(r.Context(), c); err != nil {
		if errors.Is(err, coupon.ErrInvalidValue) {
			writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		zctx.From(r.Context()).Error("create coupon", zap.String("code", c.Code), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodeCoupon(e, *c)
	})
}

// UpdateCoupon replaces the mutable fields of an existing coupon.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Code = code

	c, err := req.toDomain()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid value")
		return
	}

	if err := h.couponAdmin.Update(r.Context(), c); err != nil {
		switch {
		case errors.Is(err, coupon.ErrInvalidValue):
			writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, coupon.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "coupon not found")
		default:
			zctx.From(r.Context()).Error("update coupon", zap.String("code", c.Code), zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeCoupon(e, *c)
	})
}

// GetCoupon returns a single coupon definition.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	c, err := h.couponAdmin.FindByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "coupon not found")
			return
		}
		zctx.From(r.Context()).Error("get coupon", zap.String("code", code), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeCoupon(e, *c)
	})
}

// ListCoupons returns all coupon definitions.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.couponAdmin.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list coupons", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range coupons {
			encodeCoupon(e, coupons[i])
		}
		e.ArrEnd()
	})
}

// DeactivateCoupon soft-disables a coupon; definitions are never deleted.
func (h *Handler) DeactivateCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.couponAdmin.Deactivate(r.Context(), code); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "coupon not found")
			return
		}
		zctx.From(r.Context()).Error("deactivate coupon", zap.String("code", code), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func encodeCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("kind")
	e.Str(string(c.Kind))
	e.FieldStart("value")
	e.RawStr(c.Value.String())
	e.FieldStart("description")
	e.Str(c.Description)
	encodeStrings(e, "productIds", c.ProductIDs)
	encodeStrings(e, "categoryIds", c.CategoryIDs)
	encodeStrings(e, "brandIds", c.BrandIDs)
	encodeTimeField(e, "startsAt", c.StartsAt)
	encodeTimeField(e, "expiresAt", c.ExpiresAt)
	e.FieldStart("usageLimit")
	e.Int(c.UsageLimit)
	e.FieldStart("perUserLimit")
	e.Int(c.PerUserLimit)
	e.FieldStart("usedCount")
	e.Int(c.UsedCount)
	e.FieldStart("active")
	e.Bool(c.Active)
	e.ObjEnd()
}

func encodeTimeField(e *jx.Encoder, field string, t *time.Time) {
	e.FieldStart(field)
	if t == nil {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}
