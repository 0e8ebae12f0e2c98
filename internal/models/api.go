package models

import "github.com/shopspring/decimal"

// ApplyRequest is the body of POST /api/coupons/apply.
type ApplyRequest struct {
	Code                string         `json:"code"`
	CartItems           []CartLineItem `json:"cartItems"`
	Currency            string         `json:"currency"`
	Locale              string         `json:"locale"`
	UserIdentifier      string         `json:"userIdentifier,omitempty"`
	ExistingCouponCodes []string       `json:"existingCouponCodes"`
	// Silent marks a background replay: strict stacking, no apply event.
	Silent bool `json:"silent,omitempty"`
}

// ApplyResponse is shared by apply and auto-apply. Failure responses only carry Code and Messages.
type ApplyResponse struct {
	Success         bool             `json:"success"`
	Code            ErrorKind        `json:"code,omitempty"`
	Coupon          *Coupon          `json:"coupon,omitempty"`
	DiscountAmount  decimal.Decimal  `json:"discountAmount"`
	DiscountedItems []DiscountedItem `json:"discountedItems,omitempty"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	NewSubtotal     decimal.Decimal  `json:"newSubtotal"`
	Messages        LocalizedText    `json:"messages,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
	// AppliedCodes is the applied set after this call, in application order.
	AppliedCodes []string `json:"appliedCodes,omitempty"`
	// Coupons is that set, every entry priced against this request's cart.
	Coupons []ValidationResult `json:"coupons,omitempty"`
	// Action is the stacking outcome: ADD, REPLACE_ALL or ALREADY_APPLIED.
	Action string `json:"action,omitempty"`
}

// Result converts a successful response back into the engine's result shape.
func (r ApplyResponse) Result() (ValidationResult, bool) {
	if !r.Success || r.Coupon == nil {
		return ValidationResult{}, false
	}
	return ValidationResult{
		Coupon:          *r.Coupon,
		DiscountAmount:  r.DiscountAmount,
		DiscountedItems: r.DiscountedItems,
		Messages:        r.Messages,
	}, true
}

// AutoApplyRequest is the body of POST /api/coupons/auto-apply.
type AutoApplyRequest struct {
	CartItems      []CartLineItem `json:"cartItems"`
	Currency       string         `json:"currency"`
	Locale         string         `json:"locale"`
	UserIdentifier string         `json:"userIdentifier,omitempty"`
}

// RevalidateRequest is the body of POST /api/coupons/revalidate.
type RevalidateRequest struct {
	Codes          []string       `json:"codes"`
	CartItems      []CartLineItem `json:"cartItems"`
	Currency       string         `json:"currency"`
	Locale         string         `json:"locale"`
	UserIdentifier string         `json:"userIdentifier,omitempty"`
}

type RevalidateResponse struct {
	Coupons       []ValidationResult `json:"coupons"`
	DroppedCodes  []string           `json:"droppedCodes"`
	TotalDiscount decimal.Decimal    `json:"totalDiscount"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	NewSubtotal   decimal.Decimal    `json:"newSubtotal"`
}
