package store

import (
	"context"
	"encoding/json"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

// CodeStore persists the ordered list of coupon codes applied to a cart.
type CodeStore interface {
	Load(ctx context.Context, cartID string) ([]string, error)
	Save(ctx context.Context, cartID string, codes []string) error
	Clear(ctx context.Context, cartID string) error
}

// DecodeCodes reads a stored JSON array of codes. Missing or malformed content is an
// empty list. Non-string and blank entries are skipped, codes are normalized and
// duplicates collapse onto their first position.
func DecodeCodes(raw []byte) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		var s string
		if json.Unmarshal(it, &s) != nil {
			continue
		}
		code := models.NormalizeCode(s)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

func EncodeCodes(codes []string) []byte {
	if codes == nil {
		codes = []string{}
	}
	b, _ := json.Marshal(codes)
	return b
}
