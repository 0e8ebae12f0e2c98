package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

var ErrNotFound = errors.New("coupon not found")

// DBPool matches the methods from *pgxpool.Pool that we use, so tests can swap in pgxmock.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type CouponRepo struct {
	db DBPool
}

func NewCouponRepo(db DBPool) *CouponRepo {
	return &CouponRepo{db: db}
}

const couponColumns = `code, discount_type, discount_value::text, bogo_buy_quantity, bogo_get_quantity, stackable, min_cart_value::text, auto_apply, is_active, expires_at, per_user_only, priority, description::text, discount_label::text`

// GetByCode returns the definition for an already normalized code, or nil when there is none.
func (r *CouponRepo) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	row := r.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code)
	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get coupon %s", code)
	}
	return &c, nil
}

// ListAutoApply returns active auto-apply coupons not yet expired at now, ordered by code.
// A coupon expiring exactly at now still qualifies, as it does in the engine.
func (r *CouponRepo) ListAutoApply(ctx context.Context, now time.Time) ([]models.Coupon, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE auto_apply AND is_active AND (expires_at IS NULL OR expires_at >= $1) ORDER BY code`,
		now)
	if err != nil {
		return nil, errors.Wrap(err, "list auto-apply coupons")
	}
	defer rows.Close()

	var out []models.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan auto-apply coupon")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate auto-apply coupons")
	}
	return out, nil
}

// Upsert creates or replaces a coupon definition.
func (r *CouponRepo) Upsert(ctx context.Context, c models.Coupon) error {
	description, err := marshalText(c.Description)
	if err != nil {
		return err
	}
	label, err := marshalText(c.DiscountLabel)
	if err != nil {
		return err
	}
	var minCart *string
	if c.MinCartValue != nil {
		s := c.MinCartValue.String()
		minCart = &s
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO coupons (code, discount_type, discount_value, bogo_buy_quantity, bogo_get_quantity, stackable,
			min_cart_value, auto_apply, is_active, expires_at, per_user_only, priority, description, discount_label)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13::jsonb, $14::jsonb)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			bogo_buy_quantity = EXCLUDED.bogo_buy_quantity,
			bogo_get_quantity = EXCLUDED.bogo_get_quantity,
			stackable = EXCLUDED.stackable,
			min_cart_value = EXCLUDED.min_cart_value,
			auto_apply = EXCLUDED.auto_apply,
			is_active = EXCLUDED.is_active,
			expires_at = EXCLUDED.expires_at,
			per_user_only = EXCLUDED.per_user_only,
			priority = EXCLUDED.priority,
			description = EXCLUDED.description,
			discount_label = EXCLUDED.discount_label,
			updated_at = now()
	`,
		c.Code,
		string(c.DiscountType),
		c.DiscountValue.String(),
		c.BogoBuyQuantity,
		c.BogoGetQuantity,
		c.Stackable,
		minCart,
		c.AutoApply,
		c.IsActive,
		c.ExpiresAt,
		c.PerUserOnly,
		c.Priority,
		description,
		label,
	)
	return errors.Wrapf(err, "upsert coupon %s", c.Code)
}

// SetActive flips the active flag. It returns ErrNotFound for unknown codes.
func (r *CouponRepo) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE coupons SET is_active = $2, updated_at = now() WHERE code = $1`, code, active)
	if err != nil {
		return errors.Wrapf(err, "set active %s", code)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCoupon(row pgx.Row) (models.Coupon, error) {
	var (
		c           models.Coupon
		kind        string
		value       string
		minCart     *string
		expiresAt   *time.Time
		description string
		label       string
	)
	err := row.Scan(
		&c.Code,
		&kind,
		&value,
		&c.BogoBuyQuantity,
		&c.BogoGetQuantity,
		&c.Stackable,
		&minCart,
		&c.AutoApply,
		&c.IsActive,
		&expiresAt,
		&c.PerUserOnly,
		&c.Priority,
		&description,
		&label,
	)
	if err != nil {
		return models.Coupon{}, err
	}

	c.DiscountType = models.DiscountType(kind)
	if c.DiscountValue, err = decimal.NewFromString(value); err != nil {
		return models.Coupon{}, errors.Wrapf(err, "coupon %s discount_value", c.Code)
	}
	if minCart != nil {
		d, err := decimal.NewFromString(*minCart)
		if err != nil {
			return models.Coupon{}, errors.Wrapf(err, "coupon %s min_cart_value", c.Code)
		}
		c.MinCartValue = &d
	}
	if expiresAt != nil {
		t := expiresAt.UTC()
		c.ExpiresAt = &t
	}
	if c.Description, err = unmarshalText(description); err != nil {
		return models.Coupon{}, errors.Wrapf(err, "coupon %s description", c.Code)
	}
	if c.DiscountLabel, err = unmarshalText(label); err != nil {
		return models.Coupon{}, errors.Wrapf(err, "coupon %s discount_label", c.Code)
	}
	return c, nil
}

func marshalText(t models.LocalizedText) (string, error) {
	if len(t) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", errors.Wrap(err, "marshal localized text")
	}
	return string(b), nil
}

func unmarshalText(s string) (models.LocalizedText, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var t models.LocalizedText
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, err
	}
	return t, nil
}
