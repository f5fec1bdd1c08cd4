// Package coupon implements the coupon evaluation engine: a pure rule
// evaluator over an immutable coupon definition, a materialized cart
// snapshot, and a usage snapshot supplied by the redemption ledger.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported coupon discount kinds.
type Kind string

const (
	// KindPercentage discounts a percentage of the eligible subtotal.
	KindPercentage Kind = "percentage"
	// KindFlat discounts a fixed amount, capped at the eligible subtotal.
	KindFlat Kind = "flat"
)

var (
	// ErrNotFound is returned by Repository when no coupon exists for a code.
	ErrNotFound = errors.New("coupon not found")
	// ErrGlobalLimitExceeded is returned by Ledger.Confirm when the
	// conditional used_count increment loses against the usage limit.
	ErrGlobalLimitExceeded = errors.New("coupon usage limit reached")
	// ErrInvalidValue is returned when a coupon's value is out of bounds for
	// its kind. Enforced at create/update time, never during evaluation.
	ErrInvalidValue = errors.New("coupon value out of bounds")
)

// Coupon is an immutable-once-issued discount definition. The persistence
// layer owns mutation; evaluation only reads.
type Coupon struct {
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	Description string

	// Applicability sets. A line item is eligible when it matches any of
	// them; all three empty means the coupon applies to the whole cart.
	ProductIDs  []string
	CategoryIDs []string
	BrandIDs    []string

	// Validity window, inclusive on both ends. Nil means unbounded.
	StartsAt  *time.Time
	ExpiresAt *time.Time

	// UsageLimit caps total redemptions across all users; 0 = unlimited.
	UsageLimit int
	// PerUserLimit caps redemptions by a single user; 0 = unlimited.
	PerUserLimit int
	// UsedCount is the running global redemption counter. Only confirmed
	// redemptions move it; previews never do.
	UsedCount int

	// Active is the kill switch, independent of the date window.
	Active bool
}

// Validate checks the value bounds for the coupon's kind: percentage must be
// in (0,100], flat must be positive. Called by the repository on create and
// update so malformed definitions never reach evaluation.
func (c *Coupon) Validate() error {
	switch c.Kind {
	case KindPercentage:
		if !c.Value.IsPositive() || c.Value.GreaterThan(hundred) {
			return errors.Wrapf(ErrInvalidValue, "percentage %s not in (0,100]", c.Value)
		}
	case KindFlat:
		if !c.Value.IsPositive() {
			return errors.Wrapf(ErrInvalidValue, "flat amount %s not positive", c.Value)
		}
	default:
		return errors.Errorf("unsupported coupon kind: %q", c.Kind)
	}
	return nil
}

// NormalizeCode maps a user-supplied code to its canonical form. Codes are
// stored and compared uppercase.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LineItem is a fully materialized cart line: the caller resolves product,
// category and brand before evaluation so the engine does no I/O.
type LineItem struct {
	ProductID  string
	CategoryID string
	BrandID    string
	UnitPrice  decimal.Decimal
	Quantity   int
}

// Cart is an ordered sequence of line items.
type Cart []LineItem

// Subtotal returns the sum of unit price times quantity over all items.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// Usage is a point-in-time snapshot of redemption counters for a coupon,
// fetched from the Ledger before evaluation.
type Usage struct {
	// GlobalUsed is the coupon's total confirmed redemptions.
	GlobalUsed int
	// UserUsed is the requesting user's confirmed redemptions, zero when no
	// user identity was supplied.
	UserUsed int
}

// Repository provides lookup and administration of coupon definitions.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	List(ctx context.Context) ([]Coupon, error)
	// Deactivate flips the kill switch. Coupons referenced by historical
	// orders are never hard-deleted.
	Deactivate(ctx context.Context, code string) error
}

// Ledger tracks redemptions. Confirm must be atomic with respect to the
// coupon's usage limit and idempotent per order id; the engine only invokes
// it and surfaces ErrGlobalLimitExceeded when the conditional update loses.
type Ledger interface {
	Usage(ctx context.Context, code, userID string) (Usage, error)
	Confirm(ctx context.Context, code, userID, orderID string) error
}
