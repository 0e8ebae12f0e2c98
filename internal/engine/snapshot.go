package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

// BuildSnapshot normalizes live cart lines into what the discount engine needs.
// Cart order is kept; lines without a positive quantity or sku are dropped and
// negative prices are treated as zero. It never fails.
func BuildSnapshot(items []models.CartLineItem) []models.CartLineItem {
	out := make([]models.CartLineItem, 0, len(items))
	for _, it := range items {
		sku := strings.TrimSpace(it.SKU)
		if sku == "" || it.Quantity <= 0 {
			continue
		}
		line := models.CartLineItem{
			SKU:      sku,
			Quantity: it.Quantity,
			Price:    nonNegative(it.Price),
			Color:    trimmed(it.Color),
			Size:     trimmed(it.Size),
		}
		if it.SalePrice != nil {
			sp := nonNegative(*it.SalePrice)
			line.SalePrice = &sp
		}
		out = append(out, line)
	}
	return out
}

// Subtotal sums line totals using the sale price when it is lower than the list price.
func Subtotal(snapshot []models.CartLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range snapshot {
		total = total.Add(l.LineTotal())
	}
	return total
}

// Signature is a deterministic fingerprint of the cart contents. Any change to a line's
// sku, quantity, price, sale price, color or size changes it.
func Signature(snapshot []models.CartLineItem) string {
	var b strings.Builder
	for _, l := range snapshot {
		b.WriteString(l.SKU)
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(l.Quantity))
		b.WriteByte('|')
		b.WriteString(l.Price.String())
		b.WriteByte('|')
		if l.SalePrice != nil {
			b.WriteString(l.SalePrice.String())
		}
		b.WriteByte('|')
		if l.Color != nil {
			b.WriteString(*l.Color)
		}
		b.WriteByte('|')
		if l.Size != nil {
			b.WriteString(*l.Size)
		}
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
