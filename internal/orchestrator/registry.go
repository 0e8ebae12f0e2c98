package orchestrator

import (
	"sync"
	"time"

	"github.com/Cheertaboi/storefront-coupon-service/internal/store"
)

const defaultIdleTTL = 30 * time.Minute

type entry struct {
	session  *Session
	lastUsed time.Time
}

// Registry hands out one Session per cart id. Sessions unused for IdleTTL are dropped;
// the applied codes live in the CodeStore, so a later request rebuilds the session from it.
type Registry struct {
	client CouponClient
	store  store.CodeStore
	opts   Options
	now    func() time.Time

	mu        sync.Mutex
	sessions  map[string]*entry
	lastSweep time.Time
}

func NewRegistry(client CouponClient, codes store.CodeStore, opts Options) *Registry {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	return &Registry{
		client:   client,
		store:    codes,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

func (r *Registry) Session(cartID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= r.opts.IdleTTL/2 {
		r.sweepLocked(now)
	}

	e, ok := r.sessions[cartID]
	if !ok {
		e = &entry{session: NewSession(cartID, r.client, r.store, r.opts)}
		r.sessions[cartID] = e
	}
	e.lastUsed = now
	return e.session
}

// Len reports how many sessions are held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// sweepLocked drops idle sessions. A session with an operation in flight is kept.
func (r *Registry) sweepLocked(now time.Time) {
	r.lastSweep = now
	for id, e := range r.sessions {
		if now.Sub(e.lastUsed) >= r.opts.IdleTTL && e.session.State().Phase == PhaseIdle {
			delete(r.sessions, id)
		}
	}
}
