// Package provider decides which implementation of a service contract
// answers a call.
//
// A contract is identified by a Go type (usually an interface) or a name:
//
//	tracker := provider.ContractOf[analytics.Tracker]()
//
// Providers are registered with immutable Capabilities:
//
//	reg := provider.NewRegistry()
//	id, err := reg.Register(tracker, segment, provider.NewCapabilities("segment",
//	    provider.WithPriority(provider.PriorityHigh),
//	    provider.WithMetadata(provider.MetaCost, 0.25),
//	))
//
// The registry's StrategyFactory binds each contract to a Strategy:
// PickOne (highest priority), FanOut (every active provider), Sharded
// (consistent hashing on a shard key with explicit overrides) or the QoS
// Router (cost, latency, region and policy constraints). PickOne and Sharded
// results are memoized in a SelectionCache that the registry invalidates on
// every change.
//
// Typed access goes through View:
//
//	err := provider.For[analytics.Tracker](reg).InvokeContext(ctx,
//	    func(ctx context.Context, t analytics.Tracker) error {
//	        return t.Track(ctx, event)
//	    })
package provider
