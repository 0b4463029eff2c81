package provider

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStrategyFactory_Resolution(t *testing.T) {
	f := NewStrategyFactory(nil, nil)
	billing := NamedContract("billing")

	if got := f.KindFor(billing); got != KindPickOne {
		t.Fatalf("fallback: got %s", got)
	}

	f.SetContractCategory(billing, "analytics")
	f.SetCategoryDefault("analytics", KindFanOut)
	if got := f.KindFor(billing); got != KindFanOut {
		t.Fatalf("category default: got %s", got)
	}

	f.SetContractOverride(billing, KindSharded)
	if got := f.KindFor(billing); got != KindSharded {
		t.Fatalf("override must win over category: got %s", got)
	}
	s, err := f.CreateStrategy(billing)
	if err != nil || s.Kind() != KindSharded {
		t.Fatalf("CreateStrategy = %v, %v", s, err)
	}
	again, _ := f.CreateStrategy(billing)
	if again != s {
		t.Error("strategy instances should be shared")
	}

	f.ClearContractOverride(billing)
	if got := f.KindFor(billing); got != KindFanOut {
		t.Errorf("after clearing override: got %s", got)
	}
}

func TestStrategyFactory_RouterOptions(t *testing.T) {
	f := NewStrategyFactory(nil, nil)
	c := NamedContract("search")
	if _, ok := f.RouterOptions(c); ok {
		t.Fatal("no options expected")
	}
	f.SetDefaultRouterOptions(InternalOnly())
	if o, ok := f.RouterOptions(c); !ok || o.AllowExternal() {
		t.Errorf("expected default options, got %v %v", o, ok)
	}
	f.SetRouterOptions(c, DefaultRouterOptions().WithRegion("eu"))
	if o, _ := f.RouterOptions(c); o.Region() != "eu" {
		t.Errorf("expected contract options, got %v", o)
	}
}

func TestStrategyFactory_ApplyConfig(t *testing.T) {
	f := NewStrategyFactory(NewSelectionCache(CacheConfig{}), nil)
	budget := 0.2
	internal := false

	cfg := SelectionConfig{
		DefaultStrategy: "fan-out",
		Categories:      map[string]string{"analytics": "FanOut", "broken": "round-robin"},
		Contracts: map[string]ContractConfig{
			"provider.greeter": {Strategy: "router", Router: &RouterConfig{Budget: &budget}},
			"billing":          {Category: "analytics"},
			"missing":          {Strategy: "pick_one"},
		},
		Router:         RouterConfig{AllowExternal: &internal},
		ShardOverrides: []ShardOverride{{Key: "billing", ProviderID: "a"}},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	unresolved := f.ApplyConfig(cfg, map[string]Contract{
		"provider.greeter": greeterContract,
		"billing":          NamedContract("billing"),
	})
	if diff := cmp.Diff([]string{"missing", "round-robin"}, sortedStrings(unresolved)); diff != "" {
		t.Errorf("unresolved mismatch (-want +got):\n%s", diff)
	}

	if got := f.KindFor(greeterContract); got != KindQoSRouter {
		t.Errorf("greeter: got %s", got)
	}
	if got := f.KindFor(NamedContract("billing")); got != KindFanOut {
		t.Errorf("billing: got %s", got)
	}
	if got := f.KindFor(NamedContract("unbound")); got != KindFanOut {
		t.Errorf("default strategy not applied: got %s", got)
	}
	if o, _ := f.RouterOptions(greeterContract); func() bool { b, ok := o.Budget(); return !ok || b != 0.2 }() {
		t.Errorf("contract router options not applied: %v", o)
	}
	if o, _ := f.RouterOptions(NamedContract("unbound")); o.AllowExternal() {
		t.Errorf("default router options not applied: %v", o)
	}
	s, _ := f.Strategy(KindSharded)
	if s.(*Sharded).Overrides()["billing"] != "a" {
		t.Error("shard overrides not applied")
	}
}

func TestSelectionConfig_Validate(t *testing.T) {
	neg := -1.0
	tests := []struct {
		name string
		cfg  SelectionConfig
	}{
		{"negative budget", SelectionConfig{Router: RouterConfig{Budget: &neg}}},
		{"negative contract budget", SelectionConfig{Contracts: map[string]ContractConfig{"x": {Router: &RouterConfig{Budget: &neg}}}}},
		{"incomplete override", SelectionConfig{ShardOverrides: []ShardOverride{{Key: "billing"}}}},
		{"negative vnodes", SelectionConfig{VirtualNodes: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func sortedStrings(in []string) []string {
	m := make(map[string]string, len(in))
	for _, s := range in {
		m[s] = s
	}
	return sortedKeys(m)
}

func TestSelectionConfig_ContractConfigs(t *testing.T) {
	cfg := SelectionConfig{
		Contracts: map[string]ContractConfig{
			"a": {Strategy: "pick_one"},
			"b": {Strategy: "pick_one"},
		},
		Bindings: []ContractBinding{
			{Name: "b", ContractConfig: ContractConfig{Strategy: "fan_out"}},
			{Name: "speech.Transcriber", ContractConfig: ContractConfig{Category: "asr"}},
		},
	}
	got := cfg.ContractConfigs()
	if len(got) != 3 || got["b"].Strategy != "fan_out" || got["speech.Transcriber"].Category != "asr" {
		t.Fatalf("ContractConfigs = %+v", got)
	}

	cfg.Bindings = append(cfg.Bindings, ContractBinding{})
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("a binding without a name must fail validation")
	}
}
