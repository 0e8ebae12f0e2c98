package models

import "github.com/shopspring/decimal"

// CartLineItem is the minimal view of a cart line the discount engine works on.
type CartLineItem struct {
	SKU       string           `json:"sku"`
	Quantity  int              `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"salePrice,omitempty"`
	Color     *string          `json:"color,omitempty"`
	Size      *string          `json:"size,omitempty"`
}

// UnitPrice returns the sale price when it is a real markdown, otherwise the list price.
func (l CartLineItem) UnitPrice() decimal.Decimal {
	if l.SalePrice != nil && l.SalePrice.IsPositive() && l.SalePrice.LessThan(l.Price) {
		return *l.SalePrice
	}
	return l.Price
}

func (l CartLineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// VariantKey identifies a purchasable unit: sku plus color and size.
func (l CartLineItem) VariantKey() string {
	return l.SKU + "\x1f" + deref(l.Color) + "\x1f" + deref(l.Size)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
