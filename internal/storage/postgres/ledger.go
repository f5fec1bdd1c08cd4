package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkart/coupon-service/internal/domain/coupon"
)

const (
	getUsageSQL = `SELECT c.used_count,
		COALESCE((SELECT COUNT(*) FROM coupon_redemptions r
		          WHERE r.coupon_code = c.code AND r.user_id = $2), 0)
		FROM coupons c WHERE c.code = $1`

	getGlobalUsageSQL = `SELECT used_count FROM coupons WHERE code = $1`

	insertRedemptionSQL = `INSERT INTO coupon_redemptions (coupon_code, order_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (coupon_code, order_id) DO NOTHING`

	// Conditional increment: succeeds only while headroom remains, so two
	// redemptions racing for the last slot cannot both win.
	incrementUsedSQL = `UPDATE coupons
		SET used_count = used_count + 1, updated_at = now()
		WHERE code = $1 AND (usage_limit = 0 OR used_count < usage_limit)`
)

var _ coupon.Ledger = (*RedemptionLedger)(nil)

// RedemptionLedger implements coupon.Ledger backed by PostgreSQL. Each
// confirmed redemption is a row keyed by (coupon_code, order_id); the
// coupon's used_count is incremented in the same transaction.
type RedemptionLedger struct {
	pool *pgxpool.Pool
}

// NewRedemptionLedger returns a RedemptionLedger that uses the given pool.
func NewRedemptionLedger(pool *pgxpool.Pool) *RedemptionLedger {
	return &RedemptionLedger{pool: pool}
}

// Usage returns the coupon's global redemption count and, when userID is
// non-empty, the user's own redemption count. Anonymous previews skip the
// per-user subquery.
func (l *RedemptionLedger) Usage(ctx context.Context, code, userID string) (coupon.Usage, error) {
	var u coupon.Usage
	var err error
	if userID == "" {
		err = l.pool.QueryRow(ctx, getGlobalUsageSQL, code).Scan(&u.GlobalUsed)
	} else {
		err = l.pool.QueryRow(ctx, getUsageSQL, code, userID).Scan(&u.GlobalUsed, &u.UserUsed)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.Usage{}, coupon.ErrNotFound
		}
		return coupon.Usage{}, fmt.Errorf("fetching usage for coupon %q: %w", code, err)
	}
	return u, nil
}

// Confirm records one redemption for the order. It is idempotent per order
// id: replaying a confirmation is a no-op. The used_count increment is
// conditional on the usage limit; losing that update rolls the redemption
// row back and returns coupon.ErrGlobalLimitExceeded.
func (l *RedemptionLedger) Confirm(ctx context.Context, code, userID, orderID string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning redemption tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, insertRedemptionSQL, code, orderID, userID)
	if err != nil {
		return fmt.Errorf("recording redemption for order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		// Already confirmed for this order: idempotent success.
		return tx.Commit(ctx)
	}

	tag, err = tx.Exec(ctx, incrementUsedSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing uses for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrGlobalLimitExceeded
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing redemption for order %q: %w", orderID, err)
	}
	return nil
}
