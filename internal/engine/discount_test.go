package engine

import (
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

func TestComputeDiscount(t *testing.T) {
	tests := map[string]struct {
		coupon   models.Coupon
		snapshot []models.CartLineItem
		want     string
	}{
		"percent of 500 subtotal": {
			coupon:   save20(),
			snapshot: []models.CartLineItem{line("A", 2, "150"), line("B", 1, "200")},
			want:     "100.00",
		},
		"percent uses sale price when lower": {
			coupon: save20(),
			snapshot: []models.CartLineItem{{
				SKU: "A", Quantity: 1, Price: dec("100"), SalePrice: decPtr("80"),
			}},
			want: "16.00",
		},
		"sale price above list price is ignored": {
			coupon: save20(),
			snapshot: []models.CartLineItem{{
				SKU: "A", Quantity: 1, Price: dec("100"), SalePrice: decPtr("120"),
			}},
			want: "20.00",
		},
		"percent above 100 is clamped": {
			coupon:   models.Coupon{Code: "X", DiscountType: models.DiscountPercentAll, DiscountValue: dec("150")},
			snapshot: []models.CartLineItem{line("A", 1, "40")},
			want:     "40.00",
		},
		"fixed below subtotal": {
			coupon:   fixed50(),
			snapshot: []models.CartLineItem{line("A", 1, "150"), line("B", 1, "100")},
			want:     "50.00",
		},
		"fixed never exceeds subtotal": {
			coupon:   fixed50(),
			snapshot: []models.CartLineItem{line("A", 1, "30")},
			want:     "30.00",
		},
		"negative fixed value discounts nothing": {
			coupon:   models.Coupon{Code: "NEG", DiscountType: models.DiscountFixed, DiscountValue: dec("-10")},
			snapshot: []models.CartLineItem{line("A", 1, "30")},
			want:     "0.00",
		},
		"bogo with trailing partial chunk": {
			coupon:   bogo50(),
			snapshot: []models.CartLineItem{line("A", 3, "100")},
			want:     "50.00",
		},
		"bogo two full chunks": {
			coupon:   bogo50(),
			snapshot: []models.CartLineItem{line("A", 4, "100")},
			want:     "100.00",
		},
		"bogo groups by variant": {
			coupon: bogo50(),
			snapshot: []models.CartLineItem{
				{SKU: "A", Quantity: 1, Price: dec("100"), Size: strPtr("M")},
				{SKU: "A", Quantity: 1, Price: dec("100"), Size: strPtr("L")},
			},
			want: "0.00",
		},
		"bogo discounts the cheaper unit of a chunk": {
			coupon: models.Coupon{
				Code: "FREE", DiscountType: models.DiscountBogo, DiscountValue: dec("100"),
				BogoBuyQuantity: 1, BogoGetQuantity: 1,
			},
			snapshot: []models.CartLineItem{
				{SKU: "A", Quantity: 1, Price: dec("100")},
				{SKU: "A", Quantity: 1, Price: dec("100"), SalePrice: decPtr("60")},
			},
			want: "60.00",
		},
		"bogo buy two get one": {
			coupon: models.Coupon{
				Code: "B2G1", DiscountType: models.DiscountBogo, DiscountValue: dec("100"),
				BogoBuyQuantity: 2, BogoGetQuantity: 1,
			},
			snapshot: []models.CartLineItem{line("A", 7, "10")},
			want:     "20.00",
		},
		"bogo without get quantity": {
			coupon:   models.Coupon{Code: "BAD", DiscountType: models.DiscountBogo, DiscountValue: dec("50"), BogoBuyQuantity: 1},
			snapshot: []models.CartLineItem{line("A", 4, "10")},
			want:     "0.00",
		},
		"empty snapshot": {
			coupon: save20(),
			want:   "0.00",
		},
		"unknown discount type": {
			coupon:   models.Coupon{Code: "ODD", DiscountType: "mystery", DiscountValue: dec("10")},
			snapshot: []models.CartLineItem{line("A", 1, "10")},
			want:     "0.00",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := ComputeDiscount(tt.coupon, tt.snapshot)
			assert.Equal(t, tt.want, got.Amount.StringFixed(2))
			assert.True(t, sumItems(got.Items).Equal(got.Amount), "breakdown %v does not sum to %s", got.Items, got.Amount)
			assert.NotNil(t, got.Items)
		})
	}
}

func TestComputeDiscountLargestRemainder(t *testing.T) {
	// 10% of three 3.33 lines: each share is 0.333, the total 9.99 * 10% = 0.999 -> 1.00.
	snapshot := []models.CartLineItem{line("A", 1, "3.33"), line("B", 1, "3.33"), line("C", 1, "3.33")}
	coupon := models.Coupon{Code: "TEN", DiscountType: models.DiscountPercentAll, DiscountValue: dec("10")}

	got := ComputeDiscount(coupon, snapshot)

	require.Len(t, got.Items, 3)
	assert.Equal(t, "1.00", got.Amount.StringFixed(2))
	assert.Equal(t, "0.34", got.Items[0].DiscountTotal.StringFixed(2))
	assert.Equal(t, "0.33", got.Items[1].DiscountTotal.StringFixed(2))
	assert.Equal(t, "0.33", got.Items[2].DiscountTotal.StringFixed(2))
}

func TestComputeDiscountFixedProportional(t *testing.T) {
	snapshot := []models.CartLineItem{line("A", 1, "100"), line("B", 2, "50"), line("C", 1, "50")}
	coupon := models.Coupon{Code: "TEN", DiscountType: models.DiscountFixed, DiscountValue: dec("10")}

	got := ComputeDiscount(coupon, snapshot)

	require.Len(t, got.Items, 3)
	assert.Equal(t, "4.00", got.Items[0].DiscountTotal.StringFixed(2))
	assert.Equal(t, "4.00", got.Items[1].DiscountTotal.StringFixed(2))
	assert.Equal(t, "2.00", got.Items[1].DiscountPerUnit.StringFixed(2))
	assert.Equal(t, "2.00", got.Items[2].DiscountTotal.StringFixed(2))
}

func TestComputeDiscountBreakdownOnlyDiscountedLines(t *testing.T) {
	snapshot := []models.CartLineItem{line("A", 2, "80"), line("B", 1, "30")}

	got := ComputeDiscount(bogo50(), snapshot)

	require.Len(t, got.Items, 1)
	assert.Equal(t, "A", got.Items[0].SKU)
	assert.Equal(t, "40.00", got.Items[0].DiscountTotal.StringFixed(2))
	assert.Equal(t, "20.00", got.Items[0].DiscountPerUnit.StringFixed(2))
}

func TestComputeDiscountIsDeterministic(t *testing.T) {
	snapshot := []models.CartLineItem{
		line("A", 3, "19.99"),
		{SKU: "B", Quantity: 2, Price: dec("45.50"), SalePrice: decPtr("39.90"), Color: strPtr("red")},
		line("C", 1, "7.25"),
	}
	coupons := []models.Coupon{save20(), fixed50(), bogo50()}

	for _, c := range coupons {
		first := ComputeDiscount(c, snapshot)
		// interleave other computations to make sure no state leaks between calls
		for _, other := range coupons {
			_ = ComputeDiscount(other, snapshot)
		}
		second := ComputeDiscount(c, snapshot)
		assert.Equal(t, first, second, c.Code)
	}
}

func TestComputeDiscountNeverNegativeNorAboveSubtotal(t *testing.T) {
	snapshots := [][]models.CartLineItem{
		{line("A", 1, "0.01")},
		{line("A", 5, "0.99"), line("B", 1, "1000")},
		{line("A", 2, "0")},
		{{SKU: "A", Quantity: 3, Price: dec("10"), SalePrice: decPtr("0")}},
	}
	coupons := []models.Coupon{
		save20(), fixed50(), bogo50(),
		{Code: "BIG", DiscountType: models.DiscountFixed, DiscountValue: dec("100000")},
		{Code: "ALL", DiscountType: models.DiscountPercentAll, DiscountValue: dec("100")},
		{Code: "NEG", DiscountType: models.DiscountPercentAll, DiscountValue: dec("-5")},
	}

	for _, s := range snapshots {
		subtotal := Subtotal(s)
		for _, c := range coupons {
			got := ComputeDiscount(c, s)
			assert.False(t, got.Amount.IsNegative(), c.Code)
			assert.True(t, got.Amount.LessThanOrEqual(subtotal), "%s: %s > %s", c.Code, got.Amount, subtotal)
			for _, it := range got.Items {
				assert.False(t, it.DiscountTotal.IsNegative(), c.Code)
			}
		}
	}
}

func TestComputeDiscountBogoHugeQuantity(t *testing.T) {
	snapshot := []models.CartLineItem{line("SOCK", 2_000_000_000, "1"), line("SOCK", 3, "4")}

	start := time.Now()
	got := ComputeDiscount(bogo50(), snapshot)

	assert.Less(t, time.Since(start), time.Second)
	// Pairs sorted by price: (4,4) gives 2.00, (4,1) gives 0.50, then 999,999,999 (1,1)
	// pairs give 0.50 each. The last 1.00 unit has no pair.
	assert.Equal(t, "500000002.00", got.Amount.StringFixed(2))
	assert.True(t, sumItems(got.Items).Equal(got.Amount))
}

// bogoByUnit prices bogo one unit at a time; the run-based pricing must agree with it.
func bogoByUnit(c models.Coupon, snapshot []models.CartLineItem) decimal.Decimal {
	type u struct{ price decimal.Decimal }
	groups := map[string][]u{}
	var order []string
	for _, l := range snapshot {
		k := l.VariantKey()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		for range l.Quantity {
			groups[k] = append(groups[k], u{l.UnitPrice()})
		}
	}
	chunk := c.BogoBuyQuantity + c.BogoGetQuantity
	total := decimal.Zero
	for _, k := range order {
		units := groups[k]
		sort.SliceStable(units, func(a, b int) bool { return units[a].price.GreaterThan(units[b].price) })
		for i := 0; i+chunk <= len(units); i += chunk {
			for _, x := range units[i+c.BogoBuyQuantity : i+chunk] {
				total = total.Add(x.price.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)))
			}
		}
	}
	return Round2(total)
}

func TestComputeDiscountBogoMatchesUnitByUnit(t *testing.T) {
	snapshots := [][]models.CartLineItem{
		{line("A", 7, "10"), line("A", 3, "25"), line("A", 4, "5")},
		{line("A", 5, "9.99"), line("B", 2, "30"), line("A", 1, "12.50")},
		{{SKU: "A", Quantity: 4, Price: dec("20"), SalePrice: decPtr("15")}, line("A", 3, "18"), line("A", 2, "15")},
		{{SKU: "A", Quantity: 3, Price: dec("40"), Color: strPtr("red")}, {SKU: "A", Quantity: 5, Price: dec("40"), Color: strPtr("blue")}},
	}
	coupons := []models.Coupon{
		bogo50(),
		{Code: "B2G1", DiscountType: models.DiscountBogo, DiscountValue: dec("100"), BogoBuyQuantity: 2, BogoGetQuantity: 1},
		{Code: "B3G2", DiscountType: models.DiscountBogo, DiscountValue: dec("30"), BogoBuyQuantity: 3, BogoGetQuantity: 2},
	}

	for i, s := range snapshots {
		for _, c := range coupons {
			got := ComputeDiscount(c, s)
			assert.Equal(t, bogoByUnit(c, s).StringFixed(2), got.Amount.StringFixed(2), "cart %d %s", i, c.Code)
		}
	}
}
