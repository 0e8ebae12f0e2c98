package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

// Discount is the priced outcome of one coupon against one snapshot.
type Discount struct {
	Amount decimal.Decimal
	Items  []models.DiscountedItem
}

// ComputeDiscount prices coupon against snapshot. It is a pure function: the result
// depends only on its arguments and is always within [0, subtotal].
func ComputeDiscount(coupon models.Coupon, snapshot []models.CartLineItem) Discount {
	subtotal := Subtotal(snapshot)
	if len(snapshot) == 0 || !subtotal.IsPositive() {
		return Discount{Amount: decimal.Zero, Items: []models.DiscountedItem{}}
	}

	var raw []decimal.Decimal
	switch coupon.DiscountType {
	case models.DiscountPercentAll:
		raw = percentShares(coupon.DiscountValue, snapshot)
	case models.DiscountFixed:
		raw = fixedShares(coupon.DiscountValue, subtotal, snapshot)
	case models.DiscountBogo:
		raw = bogoShares(coupon, snapshot)
	default:
		raw = make([]decimal.Decimal, len(snapshot))
	}

	sum := decimal.Zero
	for _, r := range raw {
		sum = sum.Add(r)
	}
	total := Clamp(Round2(sum), decimal.Zero, subtotal)

	return Discount{Amount: total, Items: breakdown(snapshot, allocate(raw, total))}
}

func percentShares(value decimal.Decimal, snapshot []models.CartLineItem) []decimal.Decimal {
	pct := Clamp(value, decimal.Zero, hundred)
	raw := make([]decimal.Decimal, len(snapshot))
	for i, l := range snapshot {
		raw[i] = l.LineTotal().Mul(pct).Div(hundred)
	}
	return raw
}

func fixedShares(value, subtotal decimal.Decimal, snapshot []models.CartLineItem) []decimal.Decimal {
	amount := Clamp(value, decimal.Zero, subtotal)
	raw := make([]decimal.Decimal, len(snapshot))
	for i, l := range snapshot {
		raw[i] = amount.Mul(l.LineTotal()).Div(subtotal)
	}
	return raw
}

// run is a block of identically priced units from one cart line.
type run struct {
	line  int
	price decimal.Decimal
	count decimal.Decimal
}

// bogoShares discounts the cheapest Get units of every full (Buy+Get) chunk within each
// sku/color/size group. A trailing partial chunk is not discounted. Units are handled as
// runs per line, so the cost depends on the number of lines and not on quantities.
func bogoShares(coupon models.Coupon, snapshot []models.CartLineItem) []decimal.Decimal {
	raw := make([]decimal.Decimal, len(snapshot))
	buy, get := coupon.BogoBuyQuantity, coupon.BogoGetQuantity
	if buy < 0 || get <= 0 {
		return raw
	}
	chunk := decimal.NewFromInt(int64(buy + get))
	pct := Clamp(coupon.DiscountValue, decimal.Zero, hundred)

	var order []string
	groups := make(map[string][]run)
	for i, l := range snapshot {
		key := l.VariantKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], run{line: i, price: l.UnitPrice(), count: decimal.NewFromInt(int64(l.Quantity))})
	}

	for _, key := range order {
		runs := groups[key]
		sort.SliceStable(runs, func(a, b int) bool {
			return runs[a].price.GreaterThan(runs[b].price)
		})

		units := decimal.Zero
		for _, r := range runs {
			units = units.Add(r.count)
		}
		full, _ := units.QuoRem(chunk, 0)
		limit := full.Mul(chunk)

		start := decimal.Zero
		for _, r := range runs {
			end := start.Add(r.count)
			free := freeBefore(decimal.Min(end, limit), chunk, buy, get).
				Sub(freeBefore(decimal.Min(start, limit), chunk, buy, get))
			if free.IsPositive() {
				raw[r.line] = raw[r.line].Add(r.price.Mul(free).Mul(pct).Div(hundred))
			}
			start = end
		}
	}
	return raw
}

// freeBefore counts the discounted positions among the first n units of a price-sorted
// group: in each chunk, positions buy..buy+get-1 are the discounted ones.
func freeBefore(n, chunk decimal.Decimal, buy, get int) decimal.Decimal {
	q, rem := n.QuoRem(chunk, 0)
	extra := rem.Sub(decimal.NewFromInt(int64(buy)))
	if extra.IsNegative() {
		extra = decimal.Zero
	}
	return q.Mul(decimal.NewFromInt(int64(get))).Add(extra)
}

func breakdown(snapshot []models.CartLineItem, shares []decimal.Decimal) []models.DiscountedItem {
	items := make([]models.DiscountedItem, 0, len(snapshot))
	for i, l := range snapshot {
		if !shares[i].IsPositive() {
			continue
		}
		items = append(items, models.DiscountedItem{
			SKU:             l.SKU,
			Color:           l.Color,
			Size:            l.Size,
			Quantity:        l.Quantity,
			DiscountPerUnit: Round2(shares[i].Div(decimal.NewFromInt(int64(l.Quantity)))),
			DiscountTotal:   shares[i],
		})
	}
	return items
}
