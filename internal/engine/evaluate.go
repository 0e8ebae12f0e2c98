package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

// Evaluation is a successful eligibility check plus the priced result and the applied
// set that results from committing it.
type Evaluation struct {
	Eligibility
	Result models.ValidationResult
	Set    []models.ValidationResult
}

// Evaluate checks eligibility of in.Code and prices it against in.Snapshot.
func Evaluate(ctx context.Context, lookup CouponLookup, in EligibilityInput) (Evaluation, error) {
	elig, err := CheckEligibility(ctx, lookup, in)
	if err != nil {
		return Evaluation{}, err
	}

	if elig.AlreadyApplied {
		for _, r := range in.Existing {
			if r.Coupon.Code == elig.Coupon.Code {
				res := r
				res.Messages = AlreadyAppliedMessages(r.Coupon.Code)
				return Evaluation{
					Eligibility: elig,
					Result:      res,
					Set:         append([]models.ValidationResult(nil), in.Existing...),
				}, nil
			}
		}
	}

	d := ComputeDiscount(elig.Coupon, in.Snapshot)
	res := models.ValidationResult{
		Coupon:          elig.Coupon,
		DiscountAmount:  d.Amount,
		DiscountedItems: d.Items,
		Messages:        AppliedMessages(elig.Coupon, d.Amount, in.Currency),
	}
	return Evaluation{
		Eligibility: elig,
		Result:      res,
		Set:         ApplyDecision(in.Existing, res, elig.Decision),
	}, nil
}

type ReplayInput struct {
	Codes          []string
	Snapshot       []models.CartLineItem
	Currency       string
	Locale         models.Locale
	UserIdentifier string
	Now            time.Time
}

// Replay re-runs codes in their original order against the snapshot, each seeing the
// coupons kept before it. Codes that are no longer eligible, or that a later
// non-stackable coupon evicted, are returned in dropped. An empty cart drops everything.
func Replay(ctx context.Context, lookup CouponLookup, in ReplayInput) (set []models.ValidationResult, dropped []string, err error) {
	set = []models.ValidationResult{}
	seen := make(map[string]struct{}, len(in.Codes))
	var ordered []string
	for _, raw := range in.Codes {
		code := models.NormalizeCode(raw)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		ordered = append(ordered, code)
	}

	if len(in.Snapshot) == 0 {
		return set, ordered, nil
	}

	for _, code := range ordered {
		ev, err := Evaluate(ctx, lookup, EligibilityInput{
			Code:           code,
			Snapshot:       in.Snapshot,
			Currency:       in.Currency,
			Locale:         in.Locale,
			UserIdentifier: in.UserIdentifier,
			Existing:       set,
			Now:            in.Now,
		})
		if err != nil {
			var eligErr *EligibilityError
			if errors.As(err, &eligErr) {
				continue
			}
			return nil, nil, errors.Wrapf(err, "replay %s", code)
		}
		set = ev.Set
	}

	kept := make(map[string]struct{}, len(set))
	for _, r := range set {
		kept[r.Coupon.Code] = struct{}{}
	}
	for _, code := range ordered {
		if _, ok := kept[code]; !ok {
			dropped = append(dropped, code)
		}
	}
	return set, dropped, nil
}
