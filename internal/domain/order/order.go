package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a placed customer order with pricing and discount details.
type Order struct {
	ID         string
	UserID     string
	Items      []OrderItem
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	CouponCode string
	CreatedAt  time.Time
}

// OrderItem represents a single line item in an order.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	// Delete removes an order. Used to compensate when the coupon
	// redemption cannot be confirmed for an already persisted order.
	Delete(ctx context.Context, id string) error
}
