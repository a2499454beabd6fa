// Package engine reconciles the shopping cart across three sources of
// truth: the guest cart in local storage, the server-held authoritative
// cart, and the in-memory optimistic view. It owns the session state
// machine, the guest/server merge on login, optimistic update sequencing,
// and the throttling of rapid mutations.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cartsync/models"
	"cartsync/store"
)

// Phase is the session lifecycle position.
type Phase int

const (
	PhaseGuest Phase = iota
	PhaseLoading
	PhaseMerging
	PhaseFetching
	PhaseLoaded
)

func (p Phase) String() string {
	switch p {
	case PhaseGuest:
		return "guest"
	case PhaseLoading:
		return "loading"
	case PhaseMerging:
		return "merging"
	case PhaseFetching:
		return "fetching"
	case PhaseLoaded:
		return "loaded"
	}
	return "unknown"
}

// OpKind marks an in-flight mutation for a product.
type OpKind string

const (
	OpAdding   OpKind = "adding"
	OpUpdating OpKind = "updating"
	OpRemoving OpKind = "removing"
)

// EggOverridePolicy decides whether the resolver's inference may replace a
// disagreeing upstream egg flag on the product snapshot.
type EggOverridePolicy string

const (
	// PreferResolver overlays the resolved flag whenever it disagrees
	// with the upstream value.
	PreferResolver EggOverridePolicy = "prefer-resolver"
	// PreferUpstream keeps an existing upstream flag and only fills gaps.
	PreferUpstream EggOverridePolicy = "prefer-upstream"
)

type Config struct {
	// ThrottleDelay coalesces rapid quantity updates per product.
	ThrottleDelay time.Duration
	// CacheTTL bounds how old a cache envelope may be and still be
	// adopted on mount.
	CacheTTL  time.Duration
	EggPolicy EggOverridePolicy
}

func (c Config) withDefaults() Config {
	if c.ThrottleDelay <= 0 {
		c.ThrottleDelay = 50 * time.Millisecond
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Second
	}
	if c.EggPolicy == "" {
		c.EggPolicy = PreferResolver
	}
	return c
}

// Gateway is the network boundary the engine talks through. gateway.Client
// implements it.
type Gateway interface {
	FetchCart(ctx context.Context) (*models.CartPayload, error)
	AddItem(ctx context.Context, req models.AddCartItemRequest) (*models.CartPayload, error)
	UpdateItem(ctx context.Context, productID string, quantity int) (*models.CartPayload, error)
	RemoveItem(ctx context.Context, productID string) (*models.CartPayload, error)
	Clear(ctx context.Context, reason string) error
	Merge(ctx context.Context, items []models.CartItem) (*models.CartPayload, error)
	Sync(ctx context.Context, items []models.CartItem) (*models.CartPayload, error)
	Count(ctx context.Context) int
}

// Notifier is the side-channel for user-facing messages (toasts in the
// original UI). Level is "error" or "info".
type Notifier func(level, message string)

// Engine is a per-session context object: it owns its own throttle-timer
// table and storage handles, so no state is shared across sessions.
type Engine struct {
	cfg      Config
	store    *store.CartStore
	gw       Gateway
	notify   Notifier
	log      *zap.Logger
	throttle *throttleTable
	now      func() time.Time

	mu          sync.Mutex
	phase       Phase
	authed      bool
	loaded      bool
	items       []models.CartItem
	total       float64
	serverCount int
	pending     map[string]OpKind
	updateSnaps map[string]func()
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notify = n }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(cfg Config, st *store.CartStore, gw Gateway, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg.withDefaults(),
		store:       st,
		gw:          gw,
		notify:      func(string, string) {},
		log:         zap.NewNop(),
		now:         time.Now,
		phase:       PhaseGuest,
		pending:     make(map[string]OpKind),
		updateSnaps: make(map[string]func()),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.throttle = newThrottleTable(e.cfg.ThrottleDelay)
	return e
}

// Mount initializes session state at startup: authenticated when a
// credential is already stored, guest otherwise.
func (e *Engine) Mount(ctx context.Context) error {
	if e.store.Token(ctx) != "" {
		e.mu.Lock()
		e.authed = true
		e.loaded = false
		e.phase = PhaseLoading
		e.mu.Unlock()
		return e.Reconcile(ctx)
	}
	e.LoadGuestCart(ctx)
	return nil
}

// Login stores the credential and runs mount-time reconciliation against
// the server cart.
func (e *Engine) Login(ctx context.Context, token string) error {
	if err := e.store.SetToken(ctx, token); err != nil {
		return err
	}
	e.mu.Lock()
	e.authed = true
	e.loaded = false
	e.phase = PhaseLoading
	e.mu.Unlock()
	return e.Reconcile(ctx)
}

// Logout discards every authenticated-session artifact before the next
// guest-cart read. The reset is mandatory: skipping it would bleed one
// user's pending markers and loaded state into the next session.
func (e *Engine) Logout(ctx context.Context) error {
	e.throttle.CancelAll()

	e.mu.Lock()
	e.authed = false
	e.loaded = false
	e.phase = PhaseGuest
	e.items = nil
	e.total = 0
	e.serverCount = 0
	e.pending = make(map[string]OpKind)
	e.updateSnaps = make(map[string]func())
	e.mu.Unlock()

	if err := e.store.ClearAuth(ctx); err != nil {
		return err
	}
	e.LoadGuestCart(ctx)
	return nil
}

// Reconcile settles the authenticated cart on mount. Priority order:
// fresh cache envelope, guest-cart merge, plain fetch.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	if !e.authed || e.loaded {
		e.mu.Unlock()
		return nil
	}
	e.phase = PhaseLoading
	e.mu.Unlock()

	if env := e.store.CachedEnvelope(ctx); env != nil && env.Age(e.now()) < e.cfg.CacheTTL {
		e.log.Debug("adopting fresh cache envelope", zap.Duration("age", env.Age(e.now())))
		e.adopt(models.CartPayload{Items: env.Items, Total: env.Total, Count: env.Count}, false)
		return nil
	}

	guest := e.store.GuestCart(ctx)
	if len(guest) > 0 {
		return e.mergeGuest(ctx, guest)
	}

	e.setPhase(PhaseFetching)
	payload, err := e.gw.FetchCart(ctx)
	if err != nil {
		e.notify("error", err.Error())
		return err
	}
	e.adopt(*payload, true)
	return nil
}

// mergeGuest folds the guest cart into the server cart. Guest storage is
// cleared only after the merge (or its sync fallback) succeeds; a failure
// leaves the guest cart intact for the next attempt.
func (e *Engine) mergeGuest(ctx context.Context, guest []models.CartItem) error {
	e.setPhase(PhaseMerging)

	payload, err := e.gw.Merge(ctx, guest)
	if err != nil {
		e.log.Warn("cart merge failed, falling back to sync", zap.Error(err))
		payload, err = e.gw.Sync(ctx, guest)
	}
	if err != nil {
		e.notify("error", err.Error())
		return err
	}
	if err := e.store.ClearGuest(ctx); err != nil {
		e.log.Warn("failed to clear guest cart after merge", zap.Error(err))
	}
	e.adopt(*payload, true)
	return nil
}

// LoadGuestCart loads the guest-local cart into state, but only when the
// in-memory cart is empty: a cart being actively edited must not be
// overwritten by a late mount.
func (e *Engine) LoadGuestCart(ctx context.Context) {
	e.mu.Lock()
	if e.authed || len(e.items) > 0 {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	items := e.store.GuestCart(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.authed || len(e.items) > 0 {
		return
	}
	e.items = items
	e.total, _ = models.Totals(items)
}

// adopt replaces in-process state with a server payload and, when asked,
// refreshes the cache envelope.
func (e *Engine) adopt(payload models.CartPayload, writeCache bool) {
	items := payload.Items
	if items == nil {
		items = []models.CartItem{}
	}
	e.mu.Lock()
	e.items = items
	e.total = payload.Total
	e.serverCount = payload.Count
	e.loaded = true
	e.phase = PhaseLoaded
	e.mu.Unlock()

	if writeCache {
		e.writeCache(payload)
	}
}

func (e *Engine) writeCache(payload models.CartPayload) {
	env := models.CacheEnvelope{
		Items:     payload.Items,
		Total:     payload.Total,
		Count:     payload.Count,
		Timestamp: e.now(),
	}
	if err := e.store.WriteCache(context.Background(), env); err != nil {
		e.log.Warn("cache envelope write failed", zap.Error(err))
	}
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// Phase returns the current session phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Items returns a copy of the current cart items.
func (e *Engine) Items() []models.CartItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.CartItem, len(e.items))
	copy(out, e.items)
	return out
}

// Total returns the running cart total.
func (e *Engine) Total() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

// Count sums item quantities. When no item list is loaded it falls back to
// the last server-reported count, so the badge never depends on a single
// cached counter and never crashes the caller.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.items == nil {
		return e.serverCount
	}
	n := 0
	for _, it := range e.items {
		n += it.Quantity
	}
	return n
}

// Pending reports the in-flight operation for a product, if any.
func (e *Engine) Pending(productID string) (OpKind, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kind, ok := e.pending[productID]
	return kind, ok
}

// Flush cancels all pending throttled dispatches. Intended for shutdown.
func (e *Engine) Flush() {
	e.throttle.CancelAll()
}

func cloneItems(items []models.CartItem) []models.CartItem {
	out := make([]models.CartItem, len(items))
	copy(out, items)
	return out
}

// snapshotState captures items and total for a compensating rollback.
func (e *Engine) snapshotState() func() {
	prevItems := cloneItems(e.items)
	prevTotal := e.total
	return func() {
		e.mu.Lock()
		e.items = prevItems
		e.total = prevTotal
		e.mu.Unlock()
	}
}
