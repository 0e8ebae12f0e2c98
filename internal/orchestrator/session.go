package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/Cheertaboi/storefront-coupon-service/internal/engine"
	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
	"github.com/Cheertaboi/storefront-coupon-service/internal/store"
)

var (
	ErrBusy  = errors.New("another coupon operation is in flight")
	ErrStale = errors.New("cart changed while revalidating")
)

// CouponClient is the apply contract. The HTTP client and the in-process service both
// satisfy it.
type CouponClient interface {
	Apply(ctx context.Context, req models.ApplyRequest) (models.ApplyResponse, error)
	AutoApply(ctx context.Context, req models.AutoApplyRequest) (models.ApplyResponse, error)
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRevalidating
	PhaseApplying
)

func (p Phase) String() string {
	switch p {
	case PhaseRevalidating:
		return "revalidating"
	case PhaseApplying:
		return "applying"
	default:
		return "idle"
	}
}

// State is what the session is doing right now. Signature is set while revalidating,
// Code while applying (empty for auto-apply).
type State struct {
	Phase     Phase
	Signature string
	Code      string
}

// Cart is one view of the live cart plus the shopper context sent with every call.
type Cart struct {
	Items          []models.CartLineItem
	Currency       string
	Locale         string
	UserIdentifier string
}

type Summary struct {
	Codes         []string                  `json:"codes"`
	Coupons       []models.ValidationResult `json:"coupons"`
	Subtotal      decimal.Decimal           `json:"subtotal"`
	TotalDiscount decimal.Decimal           `json:"totalDiscount"`
	NewSubtotal   decimal.Decimal           `json:"newSubtotal"`
}

type Options struct {
	// CallTimeout bounds each coupon call. Defaults to 5s.
	CallTimeout time.Duration
	// IdleTTL is how long a Registry keeps an unused session. Defaults to 30m.
	IdleTTL time.Duration
}

// Session owns the applied coupons of one cart. At most one operation runs at a time;
// a revalidation for a newer cart signature supersedes an older one.
type Session struct {
	cartID string
	client CouponClient
	store  store.CodeStore
	opts   Options
	group  singleflight.Group

	mu        sync.Mutex
	state     State
	gen       uint64
	latestSig string
	cancel    context.CancelFunc
	loaded    bool
	codes     []string
	results   []models.ValidationResult
	subtotal  decimal.Decimal
	// autoSig is the last cart signature auto-apply was attempted for.
	autoSig string
	// rev counts changes to codes; persist skips writes a newer change has superseded.
	rev uint64

	// persistMu orders store writes. Never held together with mu while waiting on the store.
	persistMu sync.Mutex
}

func NewSession(cartID string, client CouponClient, codes store.CodeStore, opts Options) *Session {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	return &Session{
		cartID: cartID,
		client: client,
		store:  codes,
		opts:   opts,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

// Revalidate replays the stored codes in order against cart, silently pruning the ones
// that no longer apply. Concurrent calls for the same cart contents share one run. A
// run overtaken by a newer cart returns ErrStale and persists nothing.
func (s *Session) Revalidate(ctx context.Context, cart Cart) (Summary, error) {
	snapshot := engine.BuildSnapshot(cart.Items)
	sig := engine.Signature(snapshot)

	s.mu.Lock()
	if s.state.Phase == PhaseApplying {
		s.mu.Unlock()
		return Summary{}, ErrBusy
	}
	if s.state.Phase != PhaseRevalidating || s.latestSig != sig {
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.gen++
	}
	gen := s.gen
	s.latestSig = sig
	s.state = State{Phase: PhaseRevalidating, Signature: sig}
	s.mu.Unlock()

	key := sig + "#" + strconv.FormatUint(gen, 10)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.revalidate(ctx, gen, snapshot, cart)
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary).clone(), nil
	}
}

func (s *Session) revalidate(parent context.Context, gen uint64, snapshot []models.CartLineItem, cart Cart) (Summary, error) {
	// Detached: callers may give up waiting, the run still finishes or is superseded.
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()
	log := zerolog.Ctx(parent).With().Str("cart_id", s.cartID).Logger()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return Summary{}, ErrStale
	}
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.gen == gen && s.state.Phase == PhaseRevalidating {
			s.state = State{Phase: PhaseIdle}
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	codes, err := s.loadCodes(ctx)
	if err != nil {
		return Summary{}, err
	}

	var results []models.ValidationResult
	failed := make(map[string]bool)
	if len(snapshot) > 0 {
		for _, code := range codes {
			if ctx.Err() != nil {
				return Summary{}, ErrStale
			}
			callCtx, cancelCall := context.WithTimeout(ctx, s.opts.CallTimeout)
			resp, err := s.client.Apply(callCtx, models.ApplyRequest{
				Code:                code,
				CartItems:           snapshot,
				Currency:            cart.Currency,
				Locale:              cart.Locale,
				UserIdentifier:      cart.UserIdentifier,
				ExistingCouponCodes: models.Codes(results),
				Silent:              true,
			})
			cancelCall()
			if err != nil {
				if ctx.Err() != nil {
					return Summary{}, ErrStale
				}
				log.Warn().Err(err).Str("code", code).Msg("revalidation call failed, keeping code")
				failed[code] = true
				continue
			}
			if !resp.Success {
				log.Debug().Str("code", code).Str("reason", string(resp.Code)).Msg("coupon pruned")
				continue
			}
			results = merge(results, resp)
		}
	}

	kept := make([]string, 0, len(codes))
	inSet := make(map[string]bool, len(results))
	for _, r := range results {
		inSet[r.Coupon.Code] = true
	}
	for _, code := range codes {
		if inSet[code] || failed[code] {
			kept = append(kept, code)
		}
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return Summary{}, ErrStale
	}
	s.codes, s.results, s.subtotal, s.loaded = kept, results, engine.Subtotal(snapshot), true
	rev := s.bumpLocked()
	sum := s.summaryLocked()
	s.mu.Unlock()

	// A newer signature cancels ctx; the list is still the latest known until it commits.
	s.persist(context.WithoutCancel(ctx), log, rev, kept)
	return sum, nil
}

// Apply submits a code the shopper typed. Rejections come back in the response with
// their locale messages; a transport failure degrades to the generic invalid-coupon
// message. Returns ErrBusy while another operation runs.
func (s *Session) Apply(ctx context.Context, code string, cart Cart) (models.ApplyResponse, error) {
	snapshot := engine.BuildSnapshot(cart.Items)
	log := zerolog.Ctx(ctx).With().Str("cart_id", s.cartID).Logger()

	if err := s.begin(State{Phase: PhaseApplying, Code: models.NormalizeCode(code)}); err != nil {
		return models.ApplyResponse{}, err
	}
	defer s.finish()

	existing, err := s.existingCodes(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load applied codes")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	resp, err := s.client.Apply(callCtx, models.ApplyRequest{
		Code:                code,
		CartItems:           snapshot,
		Currency:            cart.Currency,
		Locale:              cart.Locale,
		UserIdentifier:      cart.UserIdentifier,
		ExistingCouponCodes: existing,
	})
	if err != nil {
		log.Warn().Err(err).Str("code", models.NormalizeCode(code)).Msg("apply call failed")
		return models.ApplyResponse{
			Code:     models.ErrInvalidCoupon,
			Messages: engine.ErrorMessages(models.ErrInvalidCoupon),
		}, nil
	}
	if !resp.Success {
		return resp, nil
	}

	s.commit(ctx, log, resp, snapshot)
	return resp, nil
}

// AutoApply asks for the best automatic coupon when nothing is applied yet. It runs at
// most once per cart signature and never replaces a coupon the shopper chose. Failures
// are silent.
func (s *Session) AutoApply(ctx context.Context, cart Cart) (models.ApplyResponse, error) {
	snapshot := engine.BuildSnapshot(cart.Items)
	sig := engine.Signature(snapshot)
	log := zerolog.Ctx(ctx).With().Str("cart_id", s.cartID).Logger()

	if len(snapshot) == 0 {
		return models.ApplyResponse{}, nil
	}
	if err := s.begin(State{Phase: PhaseApplying}); err != nil {
		return models.ApplyResponse{}, err
	}
	defer s.finish()

	existing, err := s.existingCodes(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load applied codes")
		return models.ApplyResponse{}, nil
	}

	s.mu.Lock()
	tried := s.autoSig == sig
	if len(existing) == 0 && !tried {
		s.autoSig = sig
	}
	s.mu.Unlock()
	if len(existing) > 0 || tried {
		return models.ApplyResponse{}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	resp, err := s.client.AutoApply(callCtx, models.AutoApplyRequest{
		CartItems:      snapshot,
		Currency:       cart.Currency,
		Locale:         cart.Locale,
		UserIdentifier: cart.UserIdentifier,
	})
	if err != nil {
		log.Warn().Err(err).Msg("auto-apply call failed")
		return models.ApplyResponse{}, nil
	}
	if !resp.Success {
		return resp, nil
	}

	s.commit(ctx, log, resp, snapshot)
	return resp, nil
}

// Remove drops a code locally and recomputes totals from the last results.
func (s *Session) Remove(ctx context.Context, code string) (Summary, error) {
	code = models.NormalizeCode(code)
	log := zerolog.Ctx(ctx).With().Str("cart_id", s.cartID).Logger()

	if err := s.begin(State{Phase: PhaseApplying, Code: code}); err != nil {
		return Summary{}, err
	}
	defer s.finish()

	current, err := s.loadCodes(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "remove coupon")
	}

	s.mu.Lock()
	codes := make([]string, 0, len(current))
	for _, c := range current {
		if c != code {
			codes = append(codes, c)
		}
	}
	results := make([]models.ValidationResult, 0, len(s.results))
	for _, r := range s.results {
		if r.Coupon.Code != code {
			results = append(results, r)
		}
	}
	s.codes, s.results, s.loaded = codes, results, true
	rev := s.bumpLocked()
	sum := s.summaryLocked()
	s.mu.Unlock()

	s.persist(ctx, log, rev, codes)
	return sum, nil
}

func (s *Session) begin(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != PhaseIdle {
		return ErrBusy
	}
	s.state = st
	return nil
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase == PhaseApplying {
		s.state = State{Phase: PhaseIdle}
	}
}

// existingCodes returns the codes to send as already applied. Before the first
// revalidation these come straight from the store.
func (s *Session) existingCodes(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if s.loaded {
		defer s.mu.Unlock()
		return models.Codes(s.results), nil
	}
	s.mu.Unlock()
	return s.loadCodes(ctx)
}

func (s *Session) loadCodes(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if s.loaded {
		defer s.mu.Unlock()
		return append([]string(nil), s.codes...), nil
	}
	s.mu.Unlock()
	codes, err := s.store.Load(ctx, s.cartID)
	if err != nil {
		return nil, errors.Wrap(err, "load applied codes")
	}
	return codes, nil
}

// commit records a successful apply as the new applied set.
func (s *Session) commit(ctx context.Context, log zerolog.Logger, resp models.ApplyResponse, snapshot []models.CartLineItem) {
	s.mu.Lock()
	s.results = merge(s.results, resp)
	if len(resp.AppliedCodes) > 0 {
		s.codes = append([]string(nil), resp.AppliedCodes...)
	} else {
		s.codes = models.Codes(s.results)
	}
	s.subtotal = engine.Subtotal(snapshot)
	s.loaded = true
	rev := s.bumpLocked()
	codes := append([]string(nil), s.codes...)
	s.mu.Unlock()

	s.persist(ctx, log, rev, codes)
}

func (s *Session) bumpLocked() uint64 {
	s.rev++
	return s.rev
}

// persist writes codes unless a change newer than rev has been recorded. The store is
// called without holding mu so a slow store never blocks State or Summary.
func (s *Session) persist(ctx context.Context, log zerolog.Logger, rev uint64, codes []string) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	current := s.rev == rev
	s.mu.Unlock()
	if !current {
		return
	}

	var err error
	if len(codes) == 0 {
		err = s.store.Clear(ctx, s.cartID)
	} else {
		err = s.store.Save(ctx, s.cartID, codes)
	}
	if err != nil {
		log.Error().Err(err).Msg("persist applied codes")
	}
}

func (s *Session) summaryLocked() Summary {
	total := engine.TotalDiscount(s.results, s.subtotal)
	return Summary{
		Codes:         append([]string{}, s.codes...),
		Coupons:       append([]models.ValidationResult{}, s.results...),
		Subtotal:      s.subtotal,
		TotalDiscount: total,
		NewSubtotal:   s.subtotal.Sub(total),
	}
}

func (sum Summary) clone() Summary {
	sum.Codes = append([]string{}, sum.Codes...)
	sum.Coupons = append([]models.ValidationResult{}, sum.Coupons...)
	return sum
}

// merge folds a successful apply response into set. The response's priced set is taken
// wholesale: every entry in it was priced against the cart sent with the call, so no
// amount computed for an earlier cart survives. Older servers that only report
// appliedCodes fall back to reusing results from set.
func merge(set []models.ValidationResult, resp models.ApplyResponse) []models.ValidationResult {
	r, ok := resp.Result()
	if !ok {
		return set
	}
	if len(resp.Coupons) > 0 {
		return append([]models.ValidationResult(nil), resp.Coupons...)
	}

	byCode := make(map[string]models.ValidationResult, len(set)+1)
	for _, e := range set {
		byCode[e.Coupon.Code] = e
	}
	if _, exists := byCode[r.Coupon.Code]; !exists {
		byCode[r.Coupon.Code] = r
	}

	order := resp.AppliedCodes
	if len(order) == 0 {
		switch engine.StackAction(resp.Action) {
		case engine.StackReplaceAll:
			order = []string{r.Coupon.Code}
		default:
			order = append(models.Codes(set), r.Coupon.Code)
		}
	}

	out := make([]models.ValidationResult, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, code := range order {
		if e, ok := byCode[code]; ok && !seen[code] {
			seen[code] = true
			out = append(out, e)
		}
	}
	return out
}
