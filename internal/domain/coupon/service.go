package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Evaluator is the boundary exposed to callers: a read-only preview that is
// safe to call repeatedly, and a confirmation invoked once per placed order.
type Evaluator interface {
	Preview(ctx context.Context, code string, cart Cart, userID string) (Decision, error)
	Confirm(ctx context.Context, code, userID, orderID string) error
}

// Service implements Evaluator by resolving the coupon and its usage
// snapshot from the injected collaborators and delegating to the pure
// Evaluate function.
type Service struct {
	repo   Repository
	ledger Ledger
	now    func() time.Time
}

// NewService creates a Service backed by the given repository and ledger.
func NewService(repo Repository, ledger Ledger) *Service {
	return &Service{repo: repo, ledger: ledger, now: time.Now}
}

// Preview evaluates a coupon code against the cart snapshot without side
// effects. Rejections come back as Decisions with a Reason; errors are
// reserved for collaborator failures.
func (s *Service) Preview(ctx context.Context, code string, cart Cart, userID string) (Decision, error) {
	code = NormalizeCode(code)
	if code == "" {
		return reject(cart, ReasonNotFound), nil
	}

	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject(cart, ReasonNotFound), nil
		}
		return Decision{}, errors.Wrap(err, "lookup coupon")
	}

	usage := Usage{}
	if c.UsageLimit > 0 || c.PerUserLimit > 0 {
		usage, err = s.ledger.Usage(ctx, code, userID)
		if err != nil {
			return Decision{}, errors.Wrap(err, "fetch usage")
		}
	}

	return Evaluate(c, cart, userID, usage, s.now())
}

// Confirm records one redemption against the order id. The ledger owns
// atomicity (increment-with-limit-check) and idempotency (dedup by order
// id); a lost conditional update surfaces as ErrGlobalLimitExceeded.
func (s *Service) Confirm(ctx context.Context, code, userID, orderID string) error {
	code = NormalizeCode(code)
	if code == "" || orderID == "" {
		return errors.New("coupon code and order id are required")
	}
	if err := s.ledger.Confirm(ctx, code, userID, orderID); err != nil {
		if errors.Is(err, ErrGlobalLimitExceeded) {
			return ErrGlobalLimitExceeded
		}
		return errors.Wrap(err, "confirm redemption")
	}
	return nil
}
