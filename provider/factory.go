package provider

import (
	"fmt"
	"sync"

	"github.com/kbukum/switchyard/errors"
	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/observability"
)

// Category is a coarse grouping of contracts, such as "analytics" or
// "resources", that shares a default strategy.
type Category string

// StrategyFactory binds contracts to strategies.
//
// The kind for a contract is resolved as: contract override, then the
// default of the contract's category, then the fallback (PickOne). One
// instance per kind is shared by every contract.
type StrategyFactory struct {
	mu sync.RWMutex

	cache *SelectionCache
	sink  observability.Sink

	strategies       map[StrategyKind]Strategy
	categoryDefaults map[Category]StrategyKind
	overrides        map[Contract]StrategyKind
	categories       map[Contract]Category
	routerOptions    map[Contract]RouterOptions
	routerDefault    *RouterOptions
	fallback         StrategyKind
}

// NewStrategyFactory creates a factory with the built-in strategies. The
// shared Router instance has no registry of its own: it only serves Select
// calls made with a SelectionContext.
func NewStrategyFactory(cache *SelectionCache, sink observability.Sink, shardedOpts ...ShardedOption) *StrategyFactory {
	f := &StrategyFactory{
		cache:            cache,
		sink:             observability.OrNop(sink),
		categoryDefaults: make(map[Category]StrategyKind),
		overrides:        make(map[Contract]StrategyKind),
		categories:       make(map[Contract]Category),
		routerOptions:    make(map[Contract]RouterOptions),
		fallback:         KindPickOne,
	}
	f.strategies = map[StrategyKind]Strategy{
		KindPickOne: NewPickOne(cache, f.sink),
		KindFanOut:  NewFanOut(f.sink),
		KindSharded: NewSharded(cache, f.sink, shardedOpts...),
		KindQoSRouter: &Router{
			defaults:   DefaultRouterOptions(),
			optionsFor: f.RouterOptions,
			sink:       f.sink,
		},
	}
	return f
}

func (f *StrategyFactory) log() *logger.Logger { return logger.Get("provider") }

// SetCategoryDefault sets the strategy used by contracts of category.
func (f *StrategyFactory) SetCategoryDefault(category Category, kind StrategyKind) {
	f.mu.Lock()
	f.categoryDefaults[category] = kind
	f.mu.Unlock()
}

// SetContractOverride pins contract to kind, ignoring its category.
func (f *StrategyFactory) SetContractOverride(contract Contract, kind StrategyKind) {
	f.mu.Lock()
	f.overrides[contract] = kind
	f.mu.Unlock()
}

func (f *StrategyFactory) ClearContractOverride(contract Contract) {
	f.mu.Lock()
	delete(f.overrides, contract)
	f.mu.Unlock()
}

// SetContractCategory assigns contract to category.
func (f *StrategyFactory) SetContractCategory(contract Contract, category Category) {
	f.mu.Lock()
	f.categories[contract] = category
	f.mu.Unlock()
}

// SetRouterOptions sets the options the router uses for contract.
func (f *StrategyFactory) SetRouterOptions(contract Contract, opts RouterOptions) {
	f.mu.Lock()
	f.routerOptions[contract] = opts
	f.mu.Unlock()
}

// SetDefaultRouterOptions sets the options used for contracts without
// their own.
func (f *StrategyFactory) SetDefaultRouterOptions(opts RouterOptions) {
	f.mu.Lock()
	f.routerDefault = &opts
	f.mu.Unlock()
}

// RouterOptions returns the router options configured for contract, or the
// factory default. ok is false when neither is set.
func (f *StrategyFactory) RouterOptions(contract Contract) (RouterOptions, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if o, ok := f.routerOptions[contract]; ok {
		return o, true
	}
	if f.routerDefault != nil {
		return *f.routerDefault, true
	}
	return RouterOptions{}, false
}

// SetStrategy replaces the shared instance for s.Kind().
func (f *StrategyFactory) SetStrategy(s Strategy) {
	f.mu.Lock()
	f.strategies[s.Kind()] = s
	f.mu.Unlock()
}

// SetFallback sets the kind used when neither an override nor a category
// default applies.
func (f *StrategyFactory) SetFallback(kind StrategyKind) {
	f.mu.Lock()
	f.fallback = kind
	f.mu.Unlock()
}

// KindFor resolves the strategy kind bound to contract.
func (f *StrategyFactory) KindFor(contract Contract) StrategyKind {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.kindFor(contract)
}

func (f *StrategyFactory) kindFor(contract Contract) StrategyKind {
	if kind, ok := f.overrides[contract]; ok {
		return kind
	}
	if category, ok := f.categories[contract]; ok {
		if kind, ok := f.categoryDefaults[category]; ok {
			return kind
		}
	}
	return f.fallback
}

// Strategy returns the shared instance of kind.
func (f *StrategyFactory) Strategy(kind StrategyKind) (Strategy, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.strategies[kind]
	return s, ok
}

// CreateStrategy returns the strategy bound to contract.
func (f *StrategyFactory) CreateStrategy(contract Contract) (Strategy, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	kind := f.kindFor(contract)
	s, ok := f.strategies[kind]
	if !ok {
		return nil, errors.Internal(fmt.Errorf("no strategy instance for kind %q", kind)).
			WithDetail("contract", contract.String())
	}
	return s, nil
}

// Bindings returns the resolved kind of each contract the factory has
// explicit configuration for.
func (f *StrategyFactory) Bindings() map[Contract]StrategyKind {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[Contract]StrategyKind, len(f.overrides)+len(f.categories))
	for c := range f.categories {
		out[c] = f.kindFor(c)
	}
	for c := range f.overrides {
		out[c] = f.kindFor(c)
	}
	return out
}

// ApplyConfig maps configuration names to contracts and strategy kinds
// through the contracts table. Names that do not resolve are logged as
// TYPE_RESOLUTION warnings and returned; they never fail startup.
func (f *StrategyFactory) ApplyConfig(cfg SelectionConfig, contracts map[string]Contract) []string {
	var unresolved []string
	warn := func(kind, name string, err error) {
		unresolved = append(unresolved, name)
		fields := logger.Fields(
			logger.FieldCode, string(errors.WarnCodeTypeResolution),
			"kind", kind,
			"name", name,
		)
		if err != nil {
			fields[logger.FieldError] = err.Error()
		}
		f.log().Warn("configuration name could not be resolved", fields)
	}

	if cfg.DefaultStrategy != "" {
		if kind, err := ParseStrategyKind(cfg.DefaultStrategy); err != nil {
			warn("strategy", cfg.DefaultStrategy, err)
		} else {
			f.SetFallback(kind)
		}
	}

	for category, name := range cfg.Categories {
		kind, err := ParseStrategyKind(name)
		if err != nil {
			warn("strategy", name, err)
			continue
		}
		f.SetCategoryDefault(Category(category), kind)
	}

	if !cfg.Router.IsZero() {
		f.SetDefaultRouterOptions(cfg.Router.Options())
	}

	if len(cfg.ShardOverrides) > 0 || cfg.VirtualNodes > 0 {
		opts := []ShardedOption{WithShardOverrides(cfg.ShardOverrides...)}
		if cfg.VirtualNodes > 0 {
			opts = append(opts, WithVirtualNodes(cfg.VirtualNodes))
		}
		f.SetStrategy(NewSharded(f.cache, f.sink, opts...))
	}

	configs := cfg.ContractConfigs()
	for name, cc := range configs {
		contract, ok := contracts[name]
		if !ok {
			warn("contract", name, nil)
			continue
		}
		if cc.Category != "" {
			f.SetContractCategory(contract, Category(cc.Category))
		}
		if cc.Strategy != "" {
			kind, err := ParseStrategyKind(cc.Strategy)
			if err != nil {
				warn("strategy", cc.Strategy, err)
			} else {
				f.SetContractOverride(contract, kind)
			}
		}
		if cc.Router != nil {
			f.SetRouterOptions(contract, cc.Router.Options())
		}
	}

	f.log().Info("selection configuration applied", logger.Fields(
		"contracts", len(configs),
		"categories", len(cfg.Categories),
		"unresolved", len(unresolved),
	))
	return unresolved
}
