package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

var errorMessages = map[models.ErrorKind]models.LocalizedText{
	models.ErrEmptyCode: {
		models.LocaleEN: "Please enter a coupon code.",
		models.LocaleHE: "נא להזין קוד קופון.",
	},
	models.ErrCouponNotFound: {
		models.LocaleEN: "This coupon code does not exist.",
		models.LocaleHE: "קוד הקופון אינו קיים.",
	},
	models.ErrCouponInactive: {
		models.LocaleEN: "This coupon is no longer active.",
		models.LocaleHE: "הקופון אינו פעיל יותר.",
	},
	models.ErrCouponExpired: {
		models.LocaleEN: "This coupon has expired.",
		models.LocaleHE: "תוקף הקופון פג.",
	},
	models.ErrMinCartNotMet: {
		models.LocaleEN: "Your cart does not meet the minimum amount for this coupon.",
		models.LocaleHE: "סכום העגלה נמוך מהמינימום הנדרש לקופון זה.",
	},
	models.ErrMissingUserIdentifier: {
		models.LocaleEN: "Please sign in to use this coupon.",
		models.LocaleHE: "יש להתחבר כדי להשתמש בקופון זה.",
	},
	models.ErrIncompatibleWithExisting: {
		models.LocaleEN: "This coupon cannot be combined with the coupon already in your cart.",
		models.LocaleHE: "לא ניתן לשלב קופון זה עם הקופון שכבר הופעל בעגלה.",
	},
	models.ErrInvalidCoupon: {
		models.LocaleEN: "Invalid or expired coupon.",
		models.LocaleHE: "קופון לא תקין או שפג תוקפו.",
	},
}

// ErrorMessages returns the per-locale text for kind, or the generic invalid-coupon
// text for kinds without a dedicated message.
func ErrorMessages(kind models.ErrorKind) models.LocalizedText {
	if m, ok := errorMessages[kind]; ok {
		return copyText(m)
	}
	return copyText(errorMessages[models.ErrInvalidCoupon])
}

// AppliedMessages builds the success text shown under the coupon field.
func AppliedMessages(c models.Coupon, amount decimal.Decimal, currency string) models.LocalizedText {
	amt := Round2(amount).StringFixed(2)
	out := models.LocalizedText{
		models.LocaleEN: fmt.Sprintf("Coupon %s applied: you saved %s %s.", c.Code, amt, currency),
		models.LocaleHE: fmt.Sprintf("הקופון %s הופעל: חסכת %s %s.", c.Code, amt, currency),
	}
	for _, l := range models.Locales {
		if label := c.DiscountLabel[l]; label != "" {
			out[l] = label + " · " + out[l]
		}
	}
	return out
}

// AlreadyAppliedMessages is shown when a code is submitted twice.
func AlreadyAppliedMessages(code string) models.LocalizedText {
	return models.LocalizedText{
		models.LocaleEN: fmt.Sprintf("Coupon %s is already applied.", code),
		models.LocaleHE: fmt.Sprintf("הקופון %s כבר הופעל.", code),
	}
}

func copyText(t models.LocalizedText) models.LocalizedText {
	out := make(models.LocalizedText, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
