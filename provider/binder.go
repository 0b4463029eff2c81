package provider

import (
	"slices"
	"sync"
)

// ContractBinder applies per-contract configuration to a registry's
// StrategyFactory the first time each contract with a configured name is
// registered. It lets configuration name contracts that only appear once
// plugins load.
type ContractBinder struct {
	factory *StrategyFactory
	configs map[string]ContractConfig

	mu      sync.Mutex
	bound   map[string]bool
	applied map[Contract]bool
	cancel  func()
}

// BindContracts binds the configured contracts already present in r and
// subscribes to bind the rest as they are registered.
func BindContracts(r *Registry, configs map[string]ContractConfig) *ContractBinder {
	b := &ContractBinder{
		factory: r.Factory(),
		configs: configs,
		bound:   make(map[string]bool, len(configs)),
		applied: make(map[Contract]bool, len(configs)),
	}
	for _, c := range r.Contracts() {
		b.bind(c)
	}
	b.cancel = r.Subscribe(func(ev ChangeEvent) {
		if ev.Kind == ChangeAdded {
			b.bind(ev.Contract)
		}
	})
	return b
}

func (b *ContractBinder) bind(c Contract) {
	name := c.String()
	cc, ok := b.configs[name]
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// Distinct contracts may share a name; each is bound once.
	if b.applied[c] {
		return
	}
	b.applied[c] = true
	b.bound[name] = true
	b.factory.ApplyConfig(
		SelectionConfig{Contracts: map[string]ContractConfig{name: cc}},
		map[string]Contract{name: c},
	)
}

// Bound returns the names bound so far, sorted.
func (b *ContractBinder) Bound() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.bound))
	for name := range b.bound {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Pending returns the configured names not registered yet, sorted.
func (b *ContractBinder) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for name := range b.configs {
		if !b.bound[name] {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Close stops binding new contracts. Bindings already applied stay.
func (b *ContractBinder) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}
