package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// StrategyKind names a selection algorithm.
type StrategyKind string

const (
	KindPickOne   StrategyKind = "pick_one"
	KindFanOut    StrategyKind = "fan_out"
	KindSharded   StrategyKind = "sharded"
	KindQoSRouter StrategyKind = "qos_router"
)

// ParseStrategyKind maps a configuration string to a kind. It accepts
// case and separator variations such as "PickOne" or "fan-out".
func ParseStrategyKind(s string) (StrategyKind, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	switch norm {
	case "pickone":
		return KindPickOne, nil
	case "fanout":
		return KindFanOut, nil
	case "sharded":
		return KindSharded, nil
	case "qosrouter", "router":
		return KindQoSRouter, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Strategy chooses which registration(s) answer a call.
//
// Select checks sc's context first and returns its error untouched when it
// is done. Strategies have no side effects beyond telemetry and cache writes.
type Strategy interface {
	Kind() StrategyKind
	Select(sc SelectionContext) (SelectionResult, error)
}

// SelectionContext is the input of one selection. It is built per call and
// never mutated.
type SelectionContext struct {
	ctx           context.Context
	contract      Contract
	registrations []Registration
	metadata      map[string]string
	platform      string
}

// NewSelectionContext creates a context over a registration snapshot.
// An empty platform disables platform filtering.
func NewSelectionContext(ctx context.Context, contract Contract, registrations []Registration, metadata map[string]string) SelectionContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return SelectionContext{
		ctx:           ctx,
		contract:      contract,
		registrations: registrations,
		metadata:      maps.Clone(metadata),
	}
}

// WithPlatform returns a copy filtered for platform.
func (sc SelectionContext) WithPlatform(platform string) SelectionContext {
	sc.platform = platform
	return sc
}

func (sc SelectionContext) Context() context.Context { return sc.ctx }
func (sc SelectionContext) Contract() Contract       { return sc.contract }
func (sc SelectionContext) Platform() string         { return sc.platform }

// Registrations returns the whole snapshot, inactive entries included.
func (sc SelectionContext) Registrations() []Registration {
	return slices.Clone(sc.registrations)
}

// Active returns the registrations that are active and match the platform,
// in registration order.
func (sc SelectionContext) Active() []Registration {
	out := make([]Registration, 0, len(sc.registrations))
	for _, reg := range sc.registrations {
		if reg.active && reg.caps.SupportsPlatform(sc.platform) {
			out = append(out, reg)
		}
	}
	return out
}

// Metadata returns one call metadata value.
func (sc SelectionContext) Metadata(key string) string {
	return sc.metadata[key]
}

// MetadataMap returns a copy of the call metadata.
func (sc SelectionContext) MetadataMap() map[string]string {
	return maps.Clone(sc.metadata)
}

// SelectionResult is the outcome of a selection. It is immutable and safe
// to cache.
type SelectionResult struct {
	selected []Registration
	kind     StrategyKind
	at       time.Time
}

func newResult(kind StrategyKind, selected []Registration) SelectionResult {
	return SelectionResult{selected: slices.Clone(selected), kind: kind, at: time.Now()}
}

// Selected returns the chosen registrations in invocation order.
func (r SelectionResult) Selected() []Registration { return slices.Clone(r.selected) }

// First returns the first chosen registration.
func (r SelectionResult) First() (Registration, bool) {
	if len(r.selected) == 0 {
		return Registration{}, false
	}
	return r.selected[0], true
}

func (r SelectionResult) Len() int             { return len(r.selected) }
func (r SelectionResult) Kind() StrategyKind   { return r.kind }
func (r SelectionResult) Timestamp() time.Time { return r.at }

// ProviderIDs returns the provider ids of the chosen registrations.
func (r SelectionResult) ProviderIDs() []string {
	ids := make([]string, len(r.selected))
	for i, reg := range r.selected {
		ids[i] = reg.caps.providerID
	}
	return ids
}
