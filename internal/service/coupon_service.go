package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/storefront-coupon-service/internal/cache"
	"github.com/Cheertaboi/storefront-coupon-service/internal/concurrency"
	"github.com/Cheertaboi/storefront-coupon-service/internal/engine"
	"github.com/Cheertaboi/storefront-coupon-service/internal/events"
	"github.com/Cheertaboi/storefront-coupon-service/internal/metrics"
	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
	"github.com/Cheertaboi/storefront-coupon-service/internal/repository"
)

// ErrCouponNotFound is returned by the admin operations for unknown codes.
var ErrCouponNotFound = errors.New("coupon not found")

const (
	opApply      = "apply"
	opAutoApply  = "auto_apply"
	opRevalidate = "revalidate"

	outcomeApplied = "applied"
	outcomeNone    = "none"

	// ActionAlreadyApplied is reported when the code is already in the applied set.
	ActionAlreadyApplied = "ALREADY_APPLIED"
)

// CouponStore is the coupon definition store (use interfaces to allow mocking).
type CouponStore interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	ListAutoApply(ctx context.Context, now time.Time) ([]models.Coupon, error)
	Upsert(ctx context.Context, c models.Coupon) error
	SetActive(ctx context.Context, code string, active bool) error
}

type Options struct {
	// Timeout bounds every request. Defaults to 8s.
	Timeout time.Duration
	// FanOut bounds concurrent definition lookups per request. Defaults to 4.
	FanOut int
}

type CouponService struct {
	store   CouponStore
	lookup  *cache.CouponCache
	events  events.Publisher
	metrics *metrics.Metrics
	timeout time.Duration
	fanOut  int
	now     func() time.Time
}

func NewCouponService(store CouponStore, pub events.Publisher, m *metrics.Metrics, opts Options) *CouponService {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.FanOut <= 0 {
		opts.FanOut = 4
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &CouponService{
		store:   store,
		lookup:  cache.NewCouponCache(store, opts.Timeout),
		events:  pub,
		metrics: m,
		timeout: opts.Timeout,
		fanOut:  opts.FanOut,
		now:     time.Now,
	}
}

// Apply validates req.Code against the cart and the coupons already applied to it.
// Eligibility failures are part of the response; the error return is reserved for
// store failures.
func (s *CouponService) Apply(ctx context.Context, req models.ApplyRequest) (models.ApplyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := zerolog.Ctx(ctx)
	now := s.now().UTC()
	locale := models.ParseLocale(req.Locale)
	snapshot := engine.BuildSnapshot(req.CartItems)
	subtotal := engine.Subtotal(snapshot)

	existing, _, err := s.replay(ctx, engine.ReplayInput{
		Codes:          req.ExistingCouponCodes,
		Snapshot:       snapshot,
		Currency:       req.Currency,
		Locale:         locale,
		UserIdentifier: req.UserIdentifier,
		Now:            now,
	})
	if err != nil {
		return models.ApplyResponse{}, err
	}

	ev, err := engine.Evaluate(ctx, s.lookup, engine.EligibilityInput{
		Code:           req.Code,
		Snapshot:       snapshot,
		Currency:       req.Currency,
		Locale:         locale,
		UserIdentifier: req.UserIdentifier,
		Existing:       existing,
		Now:            now,
		Interactive:    !req.Silent,
	})
	if err != nil {
		var eligErr *engine.EligibilityError
		if errors.As(err, &eligErr) {
			log.Debug().Str("code", eligErr.Code).Str("reason", string(eligErr.Kind)).Bool("silent", req.Silent).Msg("coupon rejected")
			s.metrics.ObserveOutcome(opApply, string(eligErr.Kind))
			return failure(eligErr.Kind), nil
		}
		return models.ApplyResponse{}, errors.Wrapf(err, "apply %s", models.NormalizeCode(req.Code))
	}

	resp := success(ev.Result, subtotal, ev.Set)
	if ev.AlreadyApplied {
		resp.Action = ActionAlreadyApplied
		resp.Warnings = []string{models.WarnAlreadyApplied}
		s.metrics.ObserveOutcome(opApply, ActionAlreadyApplied)
		return resp, nil
	}
	resp.Action = string(ev.Decision.Action)
	resp.Warnings = ev.Decision.Warnings

	s.metrics.ObserveOutcome(opApply, outcomeApplied)
	s.metrics.ObserveDiscount(resp.DiscountAmount)
	log.Debug().Str("code", ev.Coupon.Code).Str("action", resp.Action).Str("discount", resp.DiscountAmount.StringFixed(2)).Msg("coupon applied")

	if !req.Silent {
		s.publish(ctx, req.Currency, req.UserIdentifier, false, resp, ev.Set)
	}
	return resp, nil
}

// AutoApply picks the best auto-apply coupon for the cart, if any discounts it.
func (s *CouponService) AutoApply(ctx context.Context, req models.AutoApplyRequest) (models.ApplyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snapshot := engine.BuildSnapshot(req.CartItems)
	if len(snapshot) == 0 {
		s.metrics.ObserveOutcome(opAutoApply, outcomeNone)
		return models.ApplyResponse{}, nil
	}
	now := s.now().UTC()

	candidates, err := s.lookup.ListAutoApply(ctx, now)
	if err != nil {
		return models.ApplyResponse{}, errors.Wrap(err, "auto-apply candidates")
	}
	best := engine.SelectAutoApply(candidates, snapshot, req.UserIdentifier, now)
	if best == nil {
		s.metrics.ObserveOutcome(opAutoApply, outcomeNone)
		return models.ApplyResponse{}, nil
	}

	d := engine.ComputeDiscount(*best, snapshot)
	result := models.ValidationResult{
		Coupon:          *best,
		DiscountAmount:  d.Amount,
		DiscountedItems: d.Items,
		Messages:        engine.AppliedMessages(*best, d.Amount, req.Currency),
	}
	set := []models.ValidationResult{result}
	resp := success(result, engine.Subtotal(snapshot), set)
	resp.Action = string(engine.StackAdd)

	s.metrics.ObserveOutcome(opAutoApply, outcomeApplied)
	s.metrics.ObserveDiscount(resp.DiscountAmount)
	zerolog.Ctx(ctx).Debug().Str("code", best.Code).Int("candidates", len(candidates)).Msg("coupon auto-applied")

	s.publish(ctx, req.Currency, req.UserIdentifier, true, resp, set)
	return resp, nil
}

// Revalidate replays req.Codes in order against the cart and reports what survived.
func (s *CouponService) Revalidate(ctx context.Context, req models.RevalidateRequest) (models.RevalidateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snapshot := engine.BuildSnapshot(req.CartItems)
	subtotal := engine.Subtotal(snapshot)
	set, dropped, err := s.replay(ctx, engine.ReplayInput{
		Codes:          req.Codes,
		Snapshot:       snapshot,
		Currency:       req.Currency,
		Locale:         models.ParseLocale(req.Locale),
		UserIdentifier: req.UserIdentifier,
		Now:            s.now().UTC(),
	})
	if err != nil {
		return models.RevalidateResponse{}, err
	}
	if dropped == nil {
		dropped = []string{}
	}

	s.metrics.ObserveOutcome(opRevalidate, outcomeApplied)
	s.metrics.ObserveDropped(len(dropped))
	if len(dropped) > 0 {
		zerolog.Ctx(ctx).Debug().Strs("dropped", dropped).Msg("revalidation pruned coupons")
	}

	total := engine.TotalDiscount(set, subtotal)
	return models.RevalidateResponse{
		Coupons:       set,
		DroppedCodes:  dropped,
		TotalDiscount: total,
		Subtotal:      subtotal,
		NewSubtotal:   subtotal.Sub(total),
	}, nil
}

// replay resolves every definition up front, concurrently, then replays in order.
func (s *CouponService) replay(ctx context.Context, in engine.ReplayInput) ([]models.ValidationResult, []string, error) {
	if len(in.Codes) == 0 {
		return []models.ValidationResult{}, nil, nil
	}
	lookup := prefetched{next: s.lookup}
	if len(in.Snapshot) > 0 {
		codes := uniqueCodes(in.Codes)
		found, err := concurrency.Map(ctx, s.fanOut, codes, func(ctx context.Context, code string) (*models.Coupon, error) {
			return s.lookup.GetByCode(ctx, code)
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "resolve applied coupons")
		}
		lookup.coupons = make(map[string]*models.Coupon, len(codes))
		for i, code := range codes {
			lookup.coupons[code] = found[i]
		}
	}

	set, dropped, err := engine.Replay(ctx, lookup, in)
	if err != nil {
		return nil, nil, err
	}
	return set, dropped, nil
}

func (s *CouponService) publish(ctx context.Context, currency, user string, auto bool, resp models.ApplyResponse, set []models.ValidationResult) {
	err := s.events.PublishCouponApplied(ctx, events.CouponApplied{
		Code:           resp.Coupon.Code,
		DiscountType:   string(resp.Coupon.DiscountType),
		DiscountAmount: resp.DiscountAmount,
		Subtotal:       resp.Subtotal,
		NewSubtotal:    resp.NewSubtotal,
		Currency:       currency,
		UserIdentifier: user,
		AutoApplied:    auto,
		AppliedCodes:   models.Codes(set),
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("code", resp.Coupon.Code).Msg("publish coupon applied")
	}
}

// Create validates and stores a definition, returning it normalized.
func (s *CouponService) Create(ctx context.Context, c models.Coupon) (models.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c.Code = models.NormalizeCode(c.Code)
	if err := ValidateDefinition(c); err != nil {
		return models.Coupon{}, err
	}
	if c.ExpiresAt != nil {
		t := c.ExpiresAt.UTC()
		c.ExpiresAt = &t
	}
	if err := s.store.Upsert(ctx, c); err != nil {
		return models.Coupon{}, err
	}
	zerolog.Ctx(ctx).Info().Str("code", c.Code).Str("type", string(c.DiscountType)).Msg("coupon saved")
	return c, nil
}

func (s *CouponService) Get(ctx context.Context, code string) (*models.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.lookup.GetByCode(ctx, models.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCouponNotFound
	}
	return c, nil
}

func (s *CouponService) Deactivate(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	code = models.NormalizeCode(code)
	if err := s.store.SetActive(ctx, code, false); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCouponNotFound
		}
		return err
	}
	zerolog.Ctx(ctx).Info().Str("code", code).Msg("coupon deactivated")
	return nil
}

func failure(kind models.ErrorKind) models.ApplyResponse {
	return models.ApplyResponse{
		Success:  false,
		Code:     kind,
		Messages: engine.ErrorMessages(kind),
	}
}

func success(result models.ValidationResult, subtotal decimal.Decimal, set []models.ValidationResult) models.ApplyResponse {
	coupon := result.Coupon
	return models.ApplyResponse{
		Success:         true,
		Coupon:          &coupon,
		DiscountAmount:  result.DiscountAmount,
		DiscountedItems: result.DiscountedItems,
		Subtotal:        subtotal,
		NewSubtotal:     subtotal.Sub(engine.TotalDiscount(set, subtotal)),
		Messages:        result.Messages,
		AppliedCodes:    models.Codes(set),
		Coupons:         append([]models.ValidationResult(nil), set...),
	}
}

func uniqueCodes(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		code := models.NormalizeCode(r)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// prefetched serves definitions resolved ahead of a replay and falls back to next for
// anything else.
type prefetched struct {
	coupons map[string]*models.Coupon
	next    engine.CouponLookup
}

func (p prefetched) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	if c, ok := p.coupons[code]; ok {
		return cache.CopyCoupon(c), nil
	}
	return p.next.GetByCode(ctx, code)
}
