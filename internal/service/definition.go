package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

var hundred = decimal.NewFromInt(100)

// DefinitionError rejects an admin definition. Handlers report it as a 400.
type DefinitionError struct {
	Field  string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidateDefinition checks a coupon definition before it is stored. Code must already be normalized.
func ValidateDefinition(c models.Coupon) error {
	if c.Code == "" {
		return &DefinitionError{Field: "code", Reason: "required"}
	}
	if !c.DiscountType.Valid() {
		return &DefinitionError{Field: "discountType", Reason: "must be percent_all, fixed or bogo"}
	}
	if c.DiscountValue.IsNegative() {
		return &DefinitionError{Field: "discountValue", Reason: "must not be negative"}
	}
	switch c.DiscountType {
	case models.DiscountPercentAll:
		if c.DiscountValue.GreaterThan(hundred) {
			return &DefinitionError{Field: "discountValue", Reason: "percent must be at most 100"}
		}
	case models.DiscountBogo:
		if c.BogoBuyQuantity < 1 || c.BogoGetQuantity < 1 {
			return &DefinitionError{Field: "bogoBuyQuantity", Reason: "buy and get quantities must be at least 1"}
		}
		if !c.DiscountValue.IsPositive() || c.DiscountValue.GreaterThan(hundred) {
			return &DefinitionError{Field: "discountValue", Reason: "bogo percent must be in (0, 100]"}
		}
	}
	if c.MinCartValue != nil && c.MinCartValue.IsNegative() {
		return &DefinitionError{Field: "minCartValue", Reason: "must not be negative"}
	}
	return nil
}
