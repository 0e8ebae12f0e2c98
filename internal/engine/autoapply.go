package engine

import (
	"time"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

// SelectAutoApply picks the auto-apply coupon giving the largest discount on snapshot.
// Ties go to the higher priority, then the higher discount value, then the smaller code.
// Coupons that would discount nothing are never picked. Returns nil when none qualify.
func SelectAutoApply(candidates []models.Coupon, snapshot []models.CartLineItem, userIdentifier string, now time.Time) *models.Coupon {
	if len(snapshot) == 0 {
		return nil
	}
	subtotal := Subtotal(snapshot)

	var best *models.Coupon
	var bestDiscount Discount
	for i := range candidates {
		c := candidates[i]
		if !c.AutoApply {
			continue
		}
		if _, ok := checkDefinition(c, subtotal, userIdentifier, now); !ok {
			continue
		}
		d := ComputeDiscount(c, snapshot)
		if !d.Amount.IsPositive() {
			continue
		}
		if best == nil || better(c, d, *best, bestDiscount) {
			cc := c
			best, bestDiscount = &cc, d
		}
	}
	return best
}

func better(c models.Coupon, d Discount, best models.Coupon, bestD Discount) bool {
	if cmp := d.Amount.Cmp(bestD.Amount); cmp != 0 {
		return cmp > 0
	}
	if c.Priority != best.Priority {
		return c.Priority > best.Priority
	}
	if cmp := c.DiscountValue.Cmp(best.DiscountValue); cmp != 0 {
		return cmp > 0
	}
	return c.Code < best.Code
}
