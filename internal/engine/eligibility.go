package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

// CouponLookup resolves a normalized code to its definition. A nil coupon with a nil
// error means the code does not exist.
type CouponLookup interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// EligibilityError is a user-facing rejection. It never escapes as a transport failure.
type EligibilityError struct {
	Kind models.ErrorKind
	Code string
}

func (e *EligibilityError) Error() string {
	if e.Code == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

// Messages returns the locale-keyed text for the error.
func (e *EligibilityError) Messages() models.LocalizedText {
	return ErrorMessages(e.Kind)
}

type EligibilityInput struct {
	Code           string
	Snapshot       []models.CartLineItem
	Currency       string
	Locale         models.Locale
	UserIdentifier string
	Existing       []models.ValidationResult
	Now            time.Time
	// Interactive selects ResolveInteractiveStack for the stacking step.
	Interactive bool
}

type Eligibility struct {
	Coupon         models.Coupon
	Subtotal       decimal.Decimal
	AlreadyApplied bool
	Decision       StackDecision
}

// CheckEligibility runs the eligibility steps in order and stops at the first failure.
// Rejections come back as *EligibilityError; any other error is a lookup failure.
func CheckEligibility(ctx context.Context, lookup CouponLookup, in EligibilityInput) (Eligibility, error) {
	code := models.NormalizeCode(in.Code)
	if code == "" {
		return Eligibility{}, &EligibilityError{Kind: models.ErrEmptyCode}
	}

	coupon, err := lookup.GetByCode(ctx, code)
	if err != nil {
		return Eligibility{}, err
	}
	if coupon == nil {
		return Eligibility{}, &EligibilityError{Kind: models.ErrCouponNotFound, Code: code}
	}

	subtotal := Subtotal(in.Snapshot)
	if kind, ok := checkDefinition(*coupon, subtotal, in.UserIdentifier, in.Now); !ok {
		return Eligibility{}, &EligibilityError{Kind: kind, Code: code}
	}

	out := Eligibility{Coupon: *coupon, Subtotal: subtotal}
	for _, r := range in.Existing {
		if r.Coupon.Code == coupon.Code {
			out.AlreadyApplied = true
			return out, nil
		}
	}

	resolve := ResolveStack
	if in.Interactive {
		resolve = ResolveInteractiveStack
	}
	out.Decision = resolve(*coupon, in.Existing)
	if out.Decision.Action == StackReject {
		return Eligibility{}, &EligibilityError{Kind: out.Decision.Reason, Code: code}
	}
	return out, nil
}

// checkDefinition covers the checks that depend only on the definition, the cart total,
// the shopper and the clock.
func checkDefinition(c models.Coupon, subtotal decimal.Decimal, user string, now time.Time) (models.ErrorKind, bool) {
	if !c.IsActive {
		return models.ErrCouponInactive, false
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return models.ErrCouponExpired, false
	}
	if c.PerUserOnly && strings.TrimSpace(user) == "" {
		return models.ErrMissingUserIdentifier, false
	}
	if c.MinCartValue != nil && subtotal.LessThan(*c.MinCartValue) {
		return models.ErrMinCartNotMet, false
	}
	return "", true
}
