package provider

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/switchyard/errors"
	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/observability"
)

// registryState is an immutable snapshot. Writers build a new one.
type registryState struct {
	byContract map[Contract][]Registration
	byID       map[RegistrationID]Registration
}

type subscriber struct {
	id uint64
	fn ChangeHandler
}

// Registry holds provider registrations.
//
// Reads are lock-free against a copy-on-write snapshot. Writes are serialized
// and every subscriber is notified before the write returns.
type Registry struct {
	mu    sync.Mutex
	state atomic.Pointer[registryState]

	subsMu  sync.Mutex
	subs    atomic.Pointer[[]subscriber]
	nextSub uint64

	platform string
	cache    *SelectionCache
	factory  *StrategyFactory
	executor Executor
	sink     observability.Sink
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryPlatform sets the platform used to filter registrations (default runtime.GOOS).
func WithRegistryPlatform(platform string) RegistryOption {
	return func(r *Registry) { r.platform = strings.ToLower(platform) }
}

// WithExecutor sets the executor used by View invocations.
func WithExecutor(e Executor) RegistryOption {
	return func(r *Registry) { r.executor = e }
}

// WithSink sets the instrumentation sink.
func WithSink(s observability.Sink) RegistryOption {
	return func(r *Registry) { r.sink = s }
}

// WithSelectionCache sets the selection cache.
func WithSelectionCache(c *SelectionCache) RegistryOption {
	return func(r *Registry) { r.cache = c }
}

// WithStrategyFactory sets the strategy factory. The factory should share
// the registry's cache.
func WithStrategyFactory(f *StrategyFactory) RegistryOption {
	return func(r *Registry) { r.factory = f }
}

// NewRegistry creates an empty registry. Missing collaborators get defaults:
// a SelectionCache with default settings, a StrategyFactory over it, a
// pass-through executor and a no-op sink. The cache is subscribed to
// registry changes.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{platform: runtime.GOOS}
	for _, opt := range opts {
		opt(r)
	}
	r.sink = observability.OrNop(r.sink)
	if r.executor == nil {
		r.executor = DirectExecutor{}
	}
	if r.cache == nil {
		r.cache = NewSelectionCache(CacheConfig{})
	}
	if r.factory == nil {
		r.factory = NewStrategyFactory(r.cache, r.sink)
	}
	r.state.Store(&registryState{
		byContract: make(map[Contract][]Registration),
		byID:       make(map[RegistrationID]Registration),
	})
	r.subs.Store(&[]subscriber{})
	r.Subscribe(r.cache.HandleChange)
	return r
}

func (r *Registry) Platform() string          { return r.platform }
func (r *Registry) Cache() *SelectionCache    { return r.cache }
func (r *Registry) Factory() *StrategyFactory { return r.factory }
func (r *Registry) Executor() Executor        { return r.executor }
func (r *Registry) Sink() observability.Sink  { return r.sink }
func (r *Registry) snapshot() *registryState  { return r.state.Load() }
func (r *Registry) log() *logger.Logger       { return logger.Get("provider") }

// Subscribe registers fn for change events and returns a function that
// removes it. The cancel function may be called from inside a handler.
func (r *Registry) Subscribe(fn ChangeHandler) (cancel func()) {
	r.subsMu.Lock()
	r.nextSub++
	id := r.nextSub
	subs := append(slices.Clone(*r.subs.Load()), subscriber{id: id, fn: fn})
	r.subs.Store(&subs)
	r.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subsMu.Lock()
			defer r.subsMu.Unlock()
			subs := slices.DeleteFunc(slices.Clone(*r.subs.Load()), func(s subscriber) bool { return s.id == id })
			r.subs.Store(&subs)
		})
	}
}

// notify delivers events in order. Called with r.mu held.
func (r *Registry) notify(events ...ChangeEvent) {
	subs := *r.subs.Load()
	for _, ev := range events {
		for _, s := range subs {
			s.fn(ev)
		}
	}
}

// Register binds provider to contract.
func (r *Registry) Register(contract Contract, provider any, caps Capabilities) (RegistrationID, error) {
	switch {
	case contract.IsZero():
		return "", errors.InvalidRegistration("contract is required")
	case isNil(provider):
		return "", errors.InvalidRegistration("provider is nil").WithDetail("contract", contract.String())
	case caps.providerID == "":
		return "", errors.InvalidRegistration("provider id is required").WithDetail("contract", contract.String())
	case !contract.accepts(provider):
		return "", errors.InvalidRegistration(fmt.Sprintf("%T does not implement %s", provider, contract)).
			WithDetail("contract", contract.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snapshot()
	for _, existing := range cur.byContract[contract] {
		if existing.caps.providerID == caps.providerID {
			return "", errors.InvalidRegistration(fmt.Sprintf("provider %q is already registered for %s", caps.providerID, contract)).
				WithDetail("contract", contract.String()).
				WithDetail("provider", caps.providerID)
		}
	}

	reg := Registration{
		id:       RegistrationID(uuid.NewString()),
		contract: contract,
		provider: provider,
		caps:     caps,
		active:   true,
	}

	next := cur.clone()
	next.byContract[contract] = append(slices.Clone(cur.byContract[contract]), reg)
	next.byID[reg.id] = reg
	r.state.Store(next)

	r.log().Debug("provider registered", logger.Fields(
		logger.FieldContract, contract.String(),
		logger.FieldProvider, caps.providerID,
		"priority", caps.priority.String(),
	))
	r.notify(ChangeEvent{Kind: ChangeAdded, Contract: contract, Registration: reg})
	return reg.id, nil
}

// Unregister removes a registration. It returns false for unknown ids.
func (r *Registry) Unregister(id RegistrationID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snapshot()
	reg, ok := cur.byID[id]
	if !ok {
		return false
	}

	next := cur.clone()
	delete(next.byID, id)
	remaining := slices.DeleteFunc(slices.Clone(cur.byContract[reg.contract]), func(x Registration) bool { return x.id == id })
	if len(remaining) == 0 {
		delete(next.byContract, reg.contract)
	} else {
		next.byContract[reg.contract] = remaining
	}
	r.state.Store(next)

	r.log().Debug("provider unregistered", logger.Fields(
		logger.FieldContract, reg.contract.String(),
		logger.FieldProvider, reg.caps.providerID,
	))
	r.notify(ChangeEvent{Kind: ChangeRemoved, Contract: reg.contract, Registration: reg})
	return true
}

// SetActive soft-disables or re-enables a registration. It returns false
// for unknown ids. Changing the flag raises ChangeUpdated.
func (r *Registry) SetActive(id RegistrationID, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snapshot()
	prev, ok := cur.byID[id]
	if !ok {
		return false
	}
	if prev.active == active {
		return true
	}

	updated := prev.withActive(active)
	next := cur.clone()
	next.byID[id] = updated
	regs := slices.Clone(cur.byContract[prev.contract])
	for i := range regs {
		if regs[i].id == id {
			regs[i] = updated
		}
	}
	next.byContract[prev.contract] = regs
	r.state.Store(next)

	r.log().Debug("provider activation changed", logger.Fields(
		logger.FieldContract, prev.contract.String(),
		logger.FieldProvider, prev.caps.providerID,
		"active", active,
	))
	r.notify(ChangeEvent{Kind: ChangeUpdated, Contract: prev.contract, Registration: updated, Previous: prev})
	return true
}

// ClearRegistrations removes every registration of contract and returns
// how many were removed. One ChangeRemoved is raised per registration.
func (r *Registry) ClearRegistrations(contract Contract) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snapshot()
	removed := cur.byContract[contract]
	if len(removed) == 0 {
		return 0
	}

	next := cur.clone()
	delete(next.byContract, contract)
	events := make([]ChangeEvent, 0, len(removed))
	for _, reg := range removed {
		delete(next.byID, reg.id)
		events = append(events, ChangeEvent{Kind: ChangeRemoved, Contract: contract, Registration: reg})
	}
	r.state.Store(next)

	r.log().Debug("registrations cleared", logger.Fields(
		logger.FieldContract, contract.String(),
		"count", len(removed),
	))
	r.notify(events...)
	return len(removed)
}

// Registrations returns every registration of contract, active or not, in
// registration order.
func (r *Registry) Registrations(contract Contract) []Registration {
	return slices.Clone(r.snapshot().byContract[contract])
}

// HasRegistrations reports whether contract has at least one registration.
func (r *Registry) HasRegistrations(contract Contract) bool {
	return len(r.snapshot().byContract[contract]) > 0
}

// Get returns the registration with the given id.
func (r *Registry) Get(id RegistrationID) (Registration, bool) {
	reg, ok := r.snapshot().byID[id]
	return reg, ok
}

// Contracts returns every contract with registrations, sorted by name.
// Contracts sharing a name keep a stable relative order.
func (r *Registry) Contracts() []Contract {
	contracts := slices.Collect(maps.Keys(r.snapshot().byContract))
	slices.SortFunc(contracts, compareContracts)
	return contracts
}

func compareContracts(a, b Contract) int {
	if n := strings.Compare(a.name, b.name); n != 0 {
		return n
	}
	return strings.Compare(a.id, b.id)
}

// Lookup finds the registered contract named name. It fails when no
// contract or more than one contract carries that name.
func (r *Registry) Lookup(name string) (Contract, bool) {
	matches := r.LookupAll(name)
	if len(matches) != 1 {
		return Contract{}, false
	}
	return matches[0], true
}

// LookupAll returns every registered contract named name, in Contracts order.
func (r *Registry) LookupAll(name string) []Contract {
	var matches []Contract
	for c := range r.snapshot().byContract {
		if c.name == name {
			matches = append(matches, c)
		}
	}
	slices.SortFunc(matches, compareContracts)
	return matches
}

// SelectionContext builds the context a strategy sees for one call: the
// current snapshot of contract and the call metadata carried by ctx.
func (r *Registry) SelectionContext(ctx context.Context, contract Contract) SelectionContext {
	return NewSelectionContext(ctx, contract, r.snapshot().byContract[contract], CallMetadata(ctx)).
		WithPlatform(r.platform)
}

// Select runs the strategy configured for contract.
func (r *Registry) Select(ctx context.Context, contract Contract) (result SelectionResult, err error) {
	ctx = r.sink.EnterMethod(ctx, "provider", "Select")
	defer func() { r.sink.ExitMethod(ctx, err) }()

	strategy, err := r.factory.CreateStrategy(contract)
	if err != nil {
		return SelectionResult{}, err
	}
	return strategy.Select(r.SelectionContext(ctx, contract))
}

func (s *registryState) clone() *registryState {
	return &registryState{
		byContract: maps.Clone(s.byContract),
		byID:       maps.Clone(s.byID),
	}
}
