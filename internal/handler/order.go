package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/openkart/coupon-service/internal/domain/order"
)

// orderRequest is the body for the order placement endpoint.
type orderRequest struct {
	Items      []applyRequestItem `json:"items"`
	CouponCode string             `json:"couponCode"`
	UserID     string             `json:"userId"`
}

// PlaceOrder places an order, applying an optional coupon and confirming
// the redemption against the new order id.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, r, http.StatusBadRequest, "items required")
		return
	}

	items := make([]order.OrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	result, err := h.orderService.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		Items:      items,
		CouponCode: req.CouponCode,
		UserID:     req.UserID,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(result.Order.ID)
		e.FieldStart("subtotal")
		money(e, result.Order.Subtotal)
		e.FieldStart("discount")
		money(e, result.Order.Discount)
		e.FieldStart("total")
		money(e, result.Order.Total)
		if result.Order.CouponCode != "" {
			e.FieldStart("couponCode")
			e.Str(result.Order.CouponCode)
		}
		e.FieldStart("items")
		e.ArrStart()
		for _, item := range result.Order.Items {
			e.ObjStart()
			e.FieldStart("productId")
			e.Str(item.ProductID)
			e.FieldStart("quantity")
			e.Int(item.Quantity)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.FieldStart("products")
		e.ArrStart()
		for i := range result.Products {
			h.encodeProduct(e, result.Products[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// writeOrderError maps order service errors to the API error taxonomy.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		nfErr  *order.ProductNotFoundError
		iqErr  *order.InvalidQuantityError
		rejErr *order.CouponRejectedError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, r, http.StatusBadRequest, "items required")
	case errors.As(err, &iqErr):
		writeError(w, r, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.As(err, &nfErr):
		writeError(w, r, http.StatusUnprocessableEntity, nfErr.Error())
	case errors.As(err, &rejErr):
		writeJSON(w, r, http.StatusUnprocessableEntity, func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("code")
			e.Int(http.StatusUnprocessableEntity)
			e.FieldStart("message")
			e.Str("coupon rejected")
			e.FieldStart("reason")
			e.Str(string(rejErr.Reason))
			e.ObjEnd()
		})
	default:
		zctx.From(r.Context()).Error("place order", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
