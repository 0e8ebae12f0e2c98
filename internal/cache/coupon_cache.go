package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

// CouponStore is the definition source behind the cache.
type CouponStore interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	ListAutoApply(ctx context.Context, now time.Time) ([]models.Coupon, error)
}

// CouponCache collapses concurrent lookups of the same key into one store call.
// Nothing is kept once the call returns, so admin edits are visible to the next request.
type CouponCache struct {
	store   CouponStore
	group   singleflight.Group
	timeout time.Duration
}

func NewCouponCache(store CouponStore, timeout time.Duration) *CouponCache {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CouponCache{store: store, timeout: timeout}
}

func (c *CouponCache) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	v, err := c.do(ctx, "code:"+code, func(ctx context.Context) (any, error) {
		return c.store.GetByCode(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	coupon, _ := v.(*models.Coupon)
	return CopyCoupon(coupon), nil
}

func (c *CouponCache) ListAutoApply(ctx context.Context, now time.Time) ([]models.Coupon, error) {
	key := "auto:" + now.UTC().Truncate(time.Second).Format(time.RFC3339)
	v, err := c.do(ctx, key, func(ctx context.Context) (any, error) {
		return c.store.ListAutoApply(ctx, now)
	})
	if err != nil {
		return nil, err
	}
	list, _ := v.([]models.Coupon)
	out := make([]models.Coupon, 0, len(list))
	for i := range list {
		out = append(out, *CopyCoupon(&list[i]))
	}
	return out, nil
}

// do runs fn once per key. The shared call is detached from the caller's cancellation
// so one client giving up does not fail everyone waiting on the same key.
func (c *CouponCache) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// CopyCoupon returns a deep copy so callers can never alias a shared result.
func CopyCoupon(c *models.Coupon) *models.Coupon {
	if c == nil {
		return nil
	}
	cp := *c
	if c.MinCartValue != nil {
		v := *c.MinCartValue
		cp.MinCartValue = &v
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	cp.Description = copyText(c.Description)
	cp.DiscountLabel = copyText(c.DiscountLabel)
	return &cp
}

func copyText(t models.LocalizedText) models.LocalizedText {
	if t == nil {
		return nil
	}
	out := make(models.LocalizedText, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
