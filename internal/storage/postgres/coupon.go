package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkart/coupon-service/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, kind, value, description,
		product_ids, category_ids, brand_ids,
		starts_at, expires_at, usage_limit, per_user_limit, used_count, active
		FROM coupons WHERE code = UPPER($1)`

	listCouponsSQL = `SELECT code, kind, value, description,
		product_ids, category_ids, brand_ids,
		starts_at, expires_at, usage_limit, per_user_limit, used_count, active
		FROM coupons ORDER BY code`

	createCouponSQL = `INSERT INTO coupons
		(code, kind, value, description, product_ids, category_ids, brand_ids,
		 starts_at, expires_at, usage_limit, per_user_limit, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateCouponSQL = `UPDATE coupons SET
		kind = $2, value = $3, description = $4,
		product_ids = $5, category_ids = $6, brand_ids = $7,
		starts_at = $8, expires_at = $9,
		usage_limit = $10, per_user_limit = $11, active = $12,
		updated_at = now()
		WHERE code = $1`

	deactivateCouponSQL = `UPDATE coupons SET active = FALSE, updated_at = now()
		WHERE code = $1`

	upsertCouponSQL = `INSERT INTO coupons
		(code, kind, value, description, product_ids, category_ids, brand_ids,
		 starts_at, expires_at, usage_limit, per_user_limit, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind, value = EXCLUDED.value,
			description = EXCLUDED.description,
			product_ids = EXCLUDED.product_ids,
			category_ids = EXCLUDED.category_ids,
			brand_ids = EXCLUDED.brand_ids,
			starts_at = EXCLUDED.starts_at, expires_at = EXCLUDED.expires_at,
			usage_limit = EXCLUDED.usage_limit,
			per_user_limit = EXCLUDED.per_user_limit,
			active = EXCLUDED.active,
			updated_at = now()`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively. Inactive
// coupons are returned too: the evaluator reports them as inactive rather
// than pretending they do not exist.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// List returns all coupon definitions ordered by code.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

// Create validates the definition and inserts it. The code is normalized
// before storage; uniqueness is enforced by the primary key.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.Code = coupon.NormalizeCode(c.Code)

	_, err := r.pool.Exec(ctx, createCouponSQL,
		c.Code, string(c.Kind), c.Value, c.Description,
		c.ProductIDs, c.CategoryIDs, c.BrandIDs,
		c.StartsAt, c.ExpiresAt, c.UsageLimit, c.PerUserLimit, c.Active,
	)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update validates and replaces the mutable fields of a coupon. The usage
// counter is not touched: only confirmed redemptions move it.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.Code = coupon.NormalizeCode(c.Code)

	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.Code, string(c.Kind), c.Value, c.Description,
		c.ProductIDs, c.CategoryIDs, c.BrandIDs,
		c.StartsAt, c.ExpiresAt, c.UsageLimit, c.PerUserLimit, c.Active,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Upsert inserts a coupon or replaces its definition if the code already
// exists. Used by bulk import, where re-runs must be idempotent.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.Code = coupon.NormalizeCode(c.Code)

	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.Code, string(c.Kind), c.Value, c.Description,
		c.ProductIDs, c.CategoryIDs, c.BrandIDs,
		c.StartsAt, c.ExpiresAt, c.UsageLimit, c.PerUserLimit, c.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// Deactivate soft-disables a coupon. Historical orders keep referencing it.
func (r *CouponRepository) Deactivate(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deactivateCouponSQL, coupon.NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("deactivating coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c         coupon.Coupon
		kind      string
		startsAt  *time.Time
		expiresAt *time.Time
	)
	err := row.Scan(
		&c.Code, &kind, &c.Value, &c.Description,
		&c.ProductIDs, &c.CategoryIDs, &c.BrandIDs,
		&startsAt, &expiresAt, &c.UsageLimit, &c.PerUserLimit, &c.UsedCount, &c.Active,
	)
	c.Kind = coupon.Kind(kind)
	c.StartsAt = startsAt
	c.ExpiresAt = expiresAt
	return c, err
}
