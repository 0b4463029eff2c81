package provider

import (
	"testing"
	"time"

	"github.com/kbukum/switchyard/errors"
)

func route(t *testing.T, r *Registry, opts RouterOptions) (string, error) {
	t.Helper()
	reg, err := NewRouter(r).Route(t.Context(), greeterContract, opts)
	if err != nil {
		return "", err
	}
	return reg.ProviderID(), nil
}

func TestRouter_CostPrecedence(t *testing.T) {
	r, _ := newTestRegistry(t)
	mustRegister(t, r, "mid", WithPriority(PriorityCritical), WithMetadata(MetaCost, 0.25), WithMetadata(MetaLatencyMs, 5))
	mustRegister(t, r, "cheap", WithPriority(PriorityLow), WithMetadata(MetaCost, 0.10), WithMetadata(MetaLatencyMs, 900))
	mustRegister(t, r, "pricey", WithPriority(PriorityHigh), WithMetadata(MetaCost, "0.50"), WithMetadata(MetaLatencyMs, 1))

	for _, opts := range []RouterOptions{
		DefaultRouterOptions().WithBudget(0.60),
		DefaultRouterOptions().WithBudget(0.60).WithTargetLatency(10 * time.Millisecond),
		CostOptimized(),
	} {
		got, err := route(t, r, opts)
		if err != nil {
			t.Fatalf("%s: %v", opts, err)
		}
		if got != "cheap" {
			t.Errorf("%s: expected cheap, got %s", opts, got)
		}
	}
}

func TestRouter_Ranking(t *testing.T) {
	r, _ := newTestRegistry(t)
	mustRegister(t, r, "slow", WithPriority(PriorityHigh), WithMetadata(MetaLatencyMs, 250))
	mustRegister(t, r, "fast", WithMetadata(MetaLatencyMs, 20))
	mustRegister(t, r, "unknown", WithPriority(PriorityCritical))

	tests := []struct {
		name string
		opts RouterOptions
		want string
	}{
		{"priority without preferences", DefaultRouterOptions(), "unknown"},
		{"latency preference", LatencyOptimized(), "fast"},
		// No candidate has a cost, so ranking falls through to latency.
		{"budget falls through to latency", DefaultRouterOptions().WithBudget(1).WithTargetLatency(0), "fast"},
		{"budget falls through to priority", DefaultRouterOptions().WithBudget(1), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := route(t, r, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRouter_EqualCostKeepsPriorityOrder(t *testing.T) {
	r, _ := newTestRegistry(t)
	mustRegister(t, r, "normal", WithMetadata(MetaCost, 0.1))
	mustRegister(t, r, "high", WithPriority(PriorityHigh), WithMetadata(MetaCost, 0.1))
	if got, _ := route(t, r, CostOptimized()); got != "high" {
		t.Errorf("expected priority tie-break, got %s", got)
	}
}

func TestRouter_HardFilters(t *testing.T) {
	r, _ := newTestRegistry(t)
	mustRegister(t, r, "vendor", WithTags(TagThirdParty), WithMetadata(MetaRegion, "EU"), WithMetadata(MetaCost, 0.05))
	mustRegister(t, r, "inhouse", WithMetadata(MetaRegion, "us"), WithMetadata(MetaCost, 0.30), WithMetadata("tier", "gold"))
	mustRegister(t, r, "free", WithMetadata(MetaRegion, "us"))

	tests := []struct {
		name string
		opts RouterOptions
		want string
	}{
		{"internal only", InternalOnly().WithBudget(1), "inhouse"},
		{"region is case-insensitive", DefaultRouterOptions().WithRegion("eu"), "vendor"},
		{"missing cost passes the budget", DefaultRouterOptions().WithRegion("US").WithBudget(0.1), "free"},
		{"metadata filter", DefaultRouterOptions().WithMetadataFilter("tier", "GOLD"), "inhouse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := route(t, r, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRouter_ConstraintUnsatisfiable(t *testing.T) {
	r, sink := newTestRegistry(t)
	mustRegister(t, r, "vendor", WithTags(TagExternal), WithMetadata(MetaRegion, "eu"), WithMetadata(MetaCost, 0.9))
	mustRegister(t, r, "inhouse", WithMetadata(MetaRegion, "us"), WithMetadata(MetaCost, 0.9))

	tests := []struct {
		opts   RouterOptions
		filter string
	}{
		{InternalOnly().WithRegion("eu"), FilterRegion},
		{DefaultRouterOptions().WithBudget(0.5), FilterBudget},
		{DefaultRouterOptions().WithMetadataFilter("tier", "gold"), "metadata:tier"},
	}
	for _, tt := range tests {
		_, err := route(t, r, tt.opts)
		if !errors.IsCode(err, errors.ErrCodeConstraintUnsatisfiable) {
			t.Fatalf("%s: expected CONSTRAINT_UNSATISFIABLE, got %v", tt.opts, err)
		}
		appErr, _ := errors.AsAppError(err)
		if appErr.Details["filter"] != tt.filter {
			t.Errorf("%s: expected filter %q, got %v", tt.opts, tt.filter, appErr.Details["filter"])
		}
		if sink.Count(MetricRouterRejected, TagKeyFilter, tt.filter) != 1 {
			t.Errorf("%s: rejection not recorded", tt.opts)
		}
	}
}

func TestRouter_NotRegistered(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := route(t, r, DefaultRouterOptions())
	if !errors.IsCode(err, errors.ErrCodeNotRegistered) {
		t.Fatalf("expected NOT_REGISTERED, got %v", err)
	}
}

func TestRouter_FactoryInstanceWithoutRegistry(t *testing.T) {
	r, _ := newTestRegistry(t)
	s, _ := r.Factory().Strategy(KindQoSRouter)
	_, err := s.(*Router).Route(t.Context(), greeterContract, DefaultRouterOptions())
	if !errors.IsCode(err, errors.ErrCodeInternal) {
		t.Fatalf("expected INTERNAL_ERROR, got %v", err)
	}
}

func TestRouterOptions_AreImmutable(t *testing.T) {
	base := DefaultRouterOptions().WithMetadataFilter("tier", "gold")
	derived := base.WithMetadataFilter("tier", "silver").WithBudget(1)

	if base.MetadataFilters()["tier"] != "gold" {
		t.Error("With mutated the receiver's metadata")
	}
	if _, ok := base.Budget(); ok {
		t.Error("With mutated the receiver's budget")
	}
	if derived.MetadataFilters()["tier"] != "silver" {
		t.Error("derived copy lost its filter")
	}
	if !base.AllowExternal() || InternalOnly().AllowExternal() {
		t.Error("unexpected allowExternal defaults")
	}
}

func TestRouterOptions_ZeroValueAllowsExternal(t *testing.T) {
	r, _ := newTestRegistry(t)
	mustRegister(t, r, "vendor", WithTags(TagExternal), WithPriority(PriorityHigh))
	mustRegister(t, r, "inhouse")

	var zero RouterOptions
	if !zero.AllowExternal() {
		t.Fatal("zero RouterOptions must allow external providers")
	}
	got, err := route(t, r, zero)
	if err != nil {
		t.Fatal(err)
	}
	if got != "vendor" {
		t.Errorf("zero options filtered the external provider, got %s", got)
	}
	if got, _ := route(t, r, zero.WithAllowExternal(false)); got != "inhouse" {
		t.Errorf("WithAllowExternal(false) routed to %s", got)
	}
	if s := zero.String(); s != "router{}" {
		t.Errorf("String() = %q", s)
	}
}
