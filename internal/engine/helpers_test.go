package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeLookup struct {
	coupons map[string]models.Coupon
	err     error
	calls   int
}

func newFakeLookup(cs ...models.Coupon) *fakeLookup {
	f := &fakeLookup{coupons: make(map[string]models.Coupon, len(cs))}
	for _, c := range cs {
		f.coupons[c.Code] = c
	}
	return f
}

func (f *fakeLookup) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.coupons[code]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func line(sku string, qty int, price string) models.CartLineItem {
	return models.CartLineItem{SKU: sku, Quantity: qty, Price: dec(price)}
}

func save20() models.Coupon {
	return models.Coupon{
		Code:          "SAVE20",
		DiscountType:  models.DiscountPercentAll,
		DiscountValue: dec("20"),
		MinCartValue:  decPtr("100"),
		IsActive:      true,
	}
}

func fixed50() models.Coupon {
	return models.Coupon{
		Code:          "FIXED50",
		DiscountType:  models.DiscountFixed,
		DiscountValue: dec("50"),
		Stackable:     true,
		MinCartValue:  decPtr("200"),
		IsActive:      true,
	}
}

func bogo50() models.Coupon {
	return models.Coupon{
		Code:            "BOGO50",
		DiscountType:    models.DiscountBogo,
		DiscountValue:   dec("50"),
		BogoBuyQuantity: 1,
		BogoGetQuantity: 1,
		IsActive:        true,
	}
}

func sumItems(items []models.DiscountedItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.DiscountTotal)
	}
	return total
}
