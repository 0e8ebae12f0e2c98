package engine

import (
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

type StackAction string

const (
	StackAdd        StackAction = "ADD"
	StackReject     StackAction = "REJECT"
	StackReplaceAll StackAction = "REPLACE_ALL"
)

// StackDecision says what happens to the applied set when a candidate joins it.
type StackDecision struct {
	Action   StackAction
	Reason   models.ErrorKind
	Warnings []string
}

// ResolveStack applies the stacking rules: stackable coupons coexist, a non-stackable
// candidate replaces everything, and a stackable candidate cannot join a set holding a
// non-stackable coupon.
func ResolveStack(candidate models.Coupon, existing []models.ValidationResult) StackDecision {
	if len(existing) == 0 {
		return StackDecision{Action: StackAdd}
	}
	if !candidate.Stackable {
		return StackDecision{Action: StackReplaceAll, Warnings: []string{models.WarnOverridesExisting}}
	}
	for _, r := range existing {
		if !r.Coupon.Stackable {
			return StackDecision{Action: StackReject, Reason: models.ErrIncompatibleWithExisting}
		}
	}
	return StackDecision{Action: StackAdd}
}

// ResolveInteractiveStack is ResolveStack for a code the shopper just typed in: the
// newest explicit choice evicts a monopolizing non-stackable coupon instead of being
// rejected. The caller is expected to show the override warning.
func ResolveInteractiveStack(candidate models.Coupon, existing []models.ValidationResult) StackDecision {
	d := ResolveStack(candidate, existing)
	if d.Action == StackReject && d.Reason == models.ErrIncompatibleWithExisting {
		return StackDecision{Action: StackReplaceAll, Warnings: []string{models.WarnOverridesExisting}}
	}
	return d
}

// ApplyDecision returns the applied set after result is committed under d. The input
// slice is never modified. A code already present leaves the set unchanged.
func ApplyDecision(set []models.ValidationResult, result models.ValidationResult, d StackDecision) []models.ValidationResult {
	for _, r := range set {
		if r.Coupon.Code == result.Coupon.Code {
			return append([]models.ValidationResult(nil), set...)
		}
	}
	switch d.Action {
	case StackAdd:
		out := make([]models.ValidationResult, 0, len(set)+1)
		out = append(out, set...)
		return append(out, result)
	case StackReplaceAll:
		return []models.ValidationResult{result}
	default:
		return append([]models.ValidationResult(nil), set...)
	}
}

// TotalDiscount sums a set's discounts. Each was priced independently against the same
// pre-discount snapshot, so the sum is clamped to the subtotal.
func TotalDiscount(set []models.ValidationResult, subtotal decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, r := range set {
		total = total.Add(r.DiscountAmount)
	}
	return Clamp(Round2(total), decimal.Zero, nonNegative(subtotal))
}

// ValidStack reports whether set satisfies the stacking invariant: no duplicate codes and
// either every coupon is stackable or the set holds exactly one coupon.
func ValidStack(set []models.ValidationResult) bool {
	seen := make(map[string]struct{}, len(set))
	for _, r := range set {
		if _, dup := seen[r.Coupon.Code]; dup {
			return false
		}
		seen[r.Coupon.Code] = struct{}{}
		if !r.Coupon.Stackable && len(set) > 1 {
			return false
		}
	}
	return true
}
