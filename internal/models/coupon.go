package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentAll DiscountType = "percent_all"
	DiscountFixed      DiscountType = "fixed"
	DiscountBogo       DiscountType = "bogo"
)

func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercentAll, DiscountFixed, DiscountBogo:
		return true
	}
	return false
}

type Locale string

const (
	LocaleEN Locale = "en"
	LocaleHE Locale = "he"
)

// Locales lists every locale the storefront renders, in display order.
var Locales = []Locale{LocaleEN, LocaleHE}

// ParseLocale maps a request locale ("he-IL", "EN") to a supported one, defaulting to English.
func ParseLocale(s string) Locale {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, string(LocaleHE)) || strings.HasPrefix(s, "iw") {
		return LocaleHE
	}
	return LocaleEN
}

// LocalizedText holds one display string per locale.
type LocalizedText map[Locale]string

// Get returns the text for l, falling back to English.
func (t LocalizedText) Get(l Locale) string {
	if v, ok := t[l]; ok && v != "" {
		return v
	}
	return t[LocaleEN]
}

// Coupon is a coupon definition as maintained by the admin CMS. The engine only reads it.
type Coupon struct {
	Code            string           `json:"code"`
	DiscountType    DiscountType     `json:"discountType"`
	DiscountValue   decimal.Decimal  `json:"discountValue"`
	BogoBuyQuantity int              `json:"bogoBuyQuantity,omitempty"`
	BogoGetQuantity int              `json:"bogoGetQuantity,omitempty"`
	Stackable       bool             `json:"stackable"`
	MinCartValue    *decimal.Decimal `json:"minCartValue,omitempty"`
	AutoApply       bool             `json:"autoApply"`
	IsActive        bool             `json:"isActive"`
	ExpiresAt       *time.Time       `json:"expiresAt,omitempty"`
	PerUserOnly     bool             `json:"perUserOnly"`
	Priority        int              `json:"priority"`
	Description     LocalizedText    `json:"description,omitempty"`
	DiscountLabel   LocalizedText    `json:"discountLabel,omitempty"`
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
