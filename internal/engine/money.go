package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round2 rounds half-up to cents. Amounts are never negative here, so shopspring's
// half-away-from-zero rounding is half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Clamp limits d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// allocate rounds every raw share to cents and pushes the residual cent(s) onto the
// largest share, so the result sums exactly to total. Ties go to the earliest share.
func allocate(raw []decimal.Decimal, total decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(raw))
	if len(raw) == 0 {
		return out
	}
	sum := decimal.Zero
	largest := 0
	for i, r := range raw {
		out[i] = Round2(r)
		sum = sum.Add(out[i])
		if r.GreaterThan(raw[largest]) {
			largest = i
		}
	}
	if residual := total.Sub(sum); !residual.IsZero() {
		out[largest] = out[largest].Add(residual)
		if out[largest].IsNegative() {
			out[largest] = decimal.Zero
		}
	}
	return out
}
