package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openkart/coupon-service/internal/domain/coupon"
	"github.com/openkart/coupon-service/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems      = fmt.Errorf("items required")
	ErrInvalidQuantity = fmt.Errorf("quantity must be greater than 0")
)

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

// CouponRejectedError indicates the supplied coupon code was evaluated and
// found ineligible. The decision's reason says why.
type CouponRejectedError struct {
	Code   string
	Reason coupon.Reason
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Items      []OrderItem
	CouponCode string
	UserID     string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
}

// Service encapsulates order placement: it materializes the cart snapshot
// from the catalog, previews the coupon, persists the order, and confirms
// the redemption against the new order id.
type Service struct {
	products product.Repository
	coupons  coupon.Evaluator
	orders   Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons coupon.Evaluator,
	orders Repository,
) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
	}
}

// PlaceOrder validates items, batch-fetches products, materializes the cart
// for coupon evaluation, persists the order, and records the redemption.
// The redemption is confirmed only after the order exists, keyed by the
// order id so retries cannot double-count.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Materialize the cart snapshot: unit price, category and brand come
	// from the catalog so coupon evaluation needs no further lookups.
	products := make([]product.Product, 0, len(req.Items))
	cart := make(coupon.Cart, 0, len(req.Items))
	for _, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		products = append(products, p)
		cart = append(cart, coupon.LineItem{
			ProductID:  p.ID,
			CategoryID: p.Category,
			BrandID:    p.Brand,
			UnitPrice:  p.Price,
			Quantity:   item.Quantity,
		})
	}

	subtotal := cart.Subtotal().Round(2)
	total := subtotal
	discount := decimal.Zero

	couponCode := ""
	if req.CouponCode != "" {
		couponCode = coupon.NormalizeCode(req.CouponCode)
		decision, err := s.coupons.Preview(ctx, couponCode, cart, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("evaluate coupon: %w", err)
		}
		if !decision.Eligible {
			return nil, &CouponRejectedError{Code: couponCode, Reason: decision.Reason}
		}
		discount = decision.DiscountAmount
		total = decision.FinalTotal
	}

	o := &Order{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Items:      req.Items,
		Subtotal:   subtotal,
		Discount:   discount,
		Total:      total,
		CouponCode: couponCode,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if couponCode != "" {
		// The ledger's conditional increment is the authoritative guard:
		// two orders racing for the last redemption both pass the preview,
		// but only one Confirm wins. The loser's order is already persisted
		// with the discount applied, so it must be removed before failing.
		if err := s.coupons.Confirm(ctx, couponCode, req.UserID, o.ID); err != nil {
			if delErr := s.orders.Delete(ctx, o.ID); delErr != nil {
				return nil, fmt.Errorf("remove order %s after failed redemption: %w", o.ID, delErr)
			}
			if errors.Is(err, coupon.ErrGlobalLimitExceeded) {
				return nil, &CouponRejectedError{Code: couponCode, Reason: coupon.ReasonGlobalLimit}
			}
			return nil, fmt.Errorf("confirm redemption: %w", err)
		}
	}

	return &PlaceOrderResult{
		Order:    o,
		Products: products,
	}, nil
}
