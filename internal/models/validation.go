package models

import "github.com/shopspring/decimal"

type ErrorKind string

const (
	ErrEmptyCode                ErrorKind = "EMPTY_CODE"
	ErrCouponNotFound           ErrorKind = "COUPON_NOT_FOUND"
	ErrCouponInactive           ErrorKind = "COUPON_INACTIVE"
	ErrCouponExpired            ErrorKind = "COUPON_EXPIRED"
	ErrMinCartNotMet            ErrorKind = "MIN_CART_NOT_MET"
	ErrMissingUserIdentifier    ErrorKind = "MISSING_USER_IDENTIFIER"
	ErrIncompatibleWithExisting ErrorKind = "INCOMPATIBLE_WITH_EXISTING"
	// ErrInvalidCoupon is the generic fallback shown for anything without a dedicated message,
	// including transport failures during a user-initiated apply.
	ErrInvalidCoupon ErrorKind = "INVALID_COUPON"
)

// Warnings attached to successful applies.
const (
	WarnAlreadyApplied    = "ALREADY_APPLIED"
	WarnOverridesExisting = "OVERRIDES_EXISTING"
)

// DiscountedItem is one line of the per-item breakdown printed on receipts.
type DiscountedItem struct {
	SKU             string          `json:"sku"`
	Color           *string         `json:"color,omitempty"`
	Size            *string         `json:"size,omitempty"`
	Quantity        int             `json:"quantity"`
	DiscountPerUnit decimal.Decimal `json:"discountPerUnit"`
	DiscountTotal   decimal.Decimal `json:"discountTotal"`
}

// ValidationResult is the engine output for one applied coupon.
type ValidationResult struct {
	Coupon          Coupon           `json:"coupon"`
	DiscountAmount  decimal.Decimal  `json:"discountAmount"`
	DiscountedItems []DiscountedItem `json:"discountedItems"`
	Messages        LocalizedText    `json:"messages"`
}

// Codes returns the coupon codes of an applied set in application order.
func Codes(set []ValidationResult) []string {
	out := make([]string, 0, len(set))
	for _, r := range set {
		out = append(out, r.Coupon.Code)
	}
	return out
}
