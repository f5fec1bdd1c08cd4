package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Reason tags why a coupon was rejected. Rejections are ordinary outcomes,
// not errors: a Decision with a non-empty Reason is returned instead.
type Reason string

const (
	// ReasonNone marks an eligible decision.
	ReasonNone Reason = ""
	// ReasonNotFound: no coupon exists for the code.
	ReasonNotFound Reason = "not_found"
	// ReasonInactive: the coupon's kill switch is off.
	ReasonInactive Reason = "inactive"
	// ReasonNotStarted: the validity window has not opened yet.
	ReasonNotStarted Reason = "not_started"
	// ReasonExpired: the validity window has closed.
	ReasonExpired Reason = "expired"
	// ReasonGlobalLimit: total redemptions have reached the usage limit.
	ReasonGlobalLimit Reason = "global_limit_exceeded"
	// ReasonPerUserLimit: the user has reached their personal limit.
	ReasonPerUserLimit Reason = "per_user_limit_exceeded"
	// ReasonUserIdentityRequired: a per-user limit is set but no user
	// identity was supplied.
	ReasonUserIdentityRequired Reason = "user_identity_required"
	// ReasonNoEligibleItems: no cart line matches the applicability sets.
	ReasonNoEligibleItems Reason = "no_eligible_items"
	// ReasonEmptyCart: the cart snapshot has no line items.
	ReasonEmptyCart Reason = "empty_cart"
)

// Decision is the outcome of evaluating a coupon against a cart snapshot.
type Decision struct {
	Eligible bool
	Reason   Reason

	// DiscountAmount is computed over the eligible subtotal only, but
	// FinalTotal reduces the whole cart total. Both rounded to 2 decimals.
	DiscountAmount decimal.Decimal
	FinalTotal     decimal.Decimal

	// EligibleItemIDs lists the product ids the discount was computed over,
	// in cart order.
	EligibleItemIDs []string
	Description     string
}

// reject builds an ineligible decision: no discount, final total unchanged.
func reject(cart Cart, reason Reason) Decision {
	return Decision{
		Reason:         reason,
		DiscountAmount: decimal.Zero,
		FinalTotal:     cart.Subtotal().Round(2),
	}
}

// Evaluate runs the validity checks in their fixed order and, when all pass,
// computes the discount. It is pure: no I/O, no clock reads, no mutation of
// the coupon. The first failing check short-circuits and becomes the Reason.
//
// Check order: empty cart, active flag, window start, window end, global
// usage limit, per-user limit, item applicability.
func Evaluate(c *Coupon, cart Cart, userID string, usage Usage, now time.Time) (Decision, error) {
	if len(cart) == 0 {
		return reject(cart, ReasonEmptyCart), nil
	}
	if !c.Active {
		return reject(cart, ReasonInactive), nil
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return reject(cart, ReasonNotStarted), nil
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return reject(cart, ReasonExpired), nil
	}
	if c.UsageLimit > 0 && usage.GlobalUsed >= c.UsageLimit {
		return reject(cart, ReasonGlobalLimit), nil
	}
	if c.PerUserLimit > 0 {
		if userID == "" {
			return reject(cart, ReasonUserIdentityRequired), nil
		}
		if usage.UserUsed >= c.PerUserLimit {
			return reject(cart, ReasonPerUserLimit), nil
		}
	}

	eligibleSubtotal := decimal.Zero
	eligibleIDs := make([]string, 0, len(cart))
	for _, item := range cart {
		if !Matches(item, c) {
			continue
		}
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		eligibleSubtotal = eligibleSubtotal.Add(line)
		eligibleIDs = append(eligibleIDs, item.ProductID)
	}
	if len(eligibleIDs) == 0 {
		return reject(cart, ReasonNoEligibleItems), nil
	}

	var amount decimal.Decimal
	switch c.Kind {
	case KindPercentage:
		amount = eligibleSubtotal.Mul(c.Value).Div(hundred)
	case KindFlat:
		// A flat discount never exceeds the eligible subtotal, so the
		// final total can never go negative.
		amount = decimal.Min(c.Value, eligibleSubtotal)
	default:
		return Decision{}, errors.Errorf("unsupported coupon kind: %q", c.Kind)
	}
	amount = floorAtZero(amount).Round(2)

	total := cart.Subtotal().Sub(amount)
	total = floorAtZero(total).Round(2)

	return Decision{
		Eligible:        true,
		DiscountAmount:  amount,
		FinalTotal:      total,
		EligibleItemIDs: eligibleIDs,
		Description:     c.Description,
	}, nil
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
