package provider

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/switchyard/errors"
	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/observability"
)

// Router filter names reported in ConstraintUnsatisfiable errors.
const (
	FilterAllowExternal = "allow_external"
	FilterRegion        = "region"
	FilterBudget        = "budget"
	filterMetadata      = "metadata:"
)

// Router picks one provider under QoS constraints.
//
// Hard filters run in a fixed order: external policy, region, budget, then
// metadata filters. A filter that empties the candidate set fails the call
// with ConstraintUnsatisfiable; constraints are never relaxed. Survivors are
// ranked by cost when a budget is set, else by latency when a target latency
// is set, else by priority. Ties keep priority order.
type Router struct {
	registry   *Registry
	defaults   RouterOptions
	optionsFor func(Contract) (RouterOptions, bool)
	sink       observability.Sink
}

var _ Strategy = (*Router)(nil)

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithDefaultRouterOptions sets the options used when the factory has none
// for a contract.
func WithDefaultRouterOptions(o RouterOptions) RouterOption {
	return func(r *Router) { r.defaults = o }
}

func WithRouterSink(s observability.Sink) RouterOption {
	return func(r *Router) { r.sink = s }
}

// NewRouter creates a router over registry. Per-contract options come from
// the registry's StrategyFactory.
func NewRouter(registry *Registry, opts ...RouterOption) *Router {
	r := &Router{
		registry:   registry,
		defaults:   DefaultRouterOptions(),
		optionsFor: registry.Factory().RouterOptions,
		sink:       registry.Sink(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sink = observability.OrNop(r.sink)
	return r
}

func (r *Router) Kind() StrategyKind { return KindQoSRouter }

// Route selects the best registration of contract under opts.
func (r *Router) Route(ctx context.Context, contract Contract, opts RouterOptions) (reg Registration, err error) {
	if r.registry == nil {
		return Registration{}, errors.Internal(fmt.Errorf("router for %s has no registry", contract))
	}
	ctx = r.sink.EnterMethod(ctx, "provider", "Route")
	defer func() { r.sink.ExitMethod(ctx, err) }()

	if err := ctx.Err(); err != nil {
		return Registration{}, err
	}
	return r.route(r.registry.SelectionContext(ctx, contract), opts)
}

// Select routes with the contract's configured options.
func (r *Router) Select(sc SelectionContext) (SelectionResult, error) {
	if err := sc.Context().Err(); err != nil {
		return SelectionResult{}, err
	}
	opts := r.defaults
	if r.optionsFor != nil {
		if o, ok := r.optionsFor(sc.Contract()); ok {
			opts = o
		}
	}
	reg, err := r.route(sc, opts)
	if err != nil {
		return SelectionResult{}, err
	}
	return newResult(KindQoSRouter, []Registration{reg}), nil
}

func (r *Router) route(sc SelectionContext, opts RouterOptions) (Registration, error) {
	ctx := sc.Context()
	start := time.Now()
	contract := sc.Contract()

	candidates := sortByPriority(sc.Active())
	if len(candidates) == 0 {
		return Registration{}, errors.NotRegistered(contract.String())
	}

	for _, f := range buildFilters(opts) {
		candidates = slices.DeleteFunc(candidates, func(reg Registration) bool { return !f.keep(reg.caps) })
		if len(candidates) == 0 {
			r.sink.RecordMetric(ctx, MetricRouterRejected, 1,
				observability.T(TagKeyContract, contract.String()),
				observability.T(TagKeyFilter, f.name),
			)
			logger.Get("provider").Debug("router constraints unsatisfiable", logger.Fields(
				logger.FieldContract, contract.String(),
				"filter", f.name,
				"options", opts.String(),
			))
			return Registration{}, errors.ConstraintUnsatisfiable(contract.String(), f.name)
		}
	}

	chosen := rank(candidates, opts)
	recordSelected(ctx, r.sink, contract, KindQoSRouter, chosen)
	recordDuration(ctx, r.sink, contract, KindQoSRouter, start)
	return chosen, nil
}

type routerFilter struct {
	name string
	keep func(Capabilities) bool
}

func buildFilters(opts RouterOptions) []routerFilter {
	var filters []routerFilter
	if !opts.AllowExternal() {
		filters = append(filters, routerFilter{FilterAllowExternal, func(c Capabilities) bool {
			return !c.IsExternal()
		}})
	}
	if opts.region != "" {
		filters = append(filters, routerFilter{FilterRegion, func(c Capabilities) bool {
			region, ok := c.MetaString(MetaRegion)
			return ok && strings.EqualFold(region, opts.region)
		}})
	}
	if budget, ok := opts.Budget(); ok {
		filters = append(filters, routerFilter{FilterBudget, func(c Capabilities) bool {
			cost, ok := c.MetaFloat(MetaCost)
			return !ok || cost <= budget
		}})
	}
	for _, key := range sortedKeys(opts.metadata) {
		want := opts.metadata[key]
		filters = append(filters, routerFilter{filterMetadata + key, func(c Capabilities) bool {
			got, ok := c.MetaString(key)
			return ok && strings.EqualFold(got, want)
		}})
	}
	return filters
}

// rank returns the best of candidates, which are in priority order.
func rank(candidates []Registration, opts RouterOptions) Registration {
	if _, ok := opts.Budget(); ok {
		if reg, ok := minBy(candidates, MetaCost); ok {
			return reg
		}
	}
	if _, ok := opts.TargetLatency(); ok {
		if reg, ok := minBy(candidates, MetaLatencyMs); ok {
			return reg
		}
	}
	return candidates[0]
}

// minBy returns the first candidate with the smallest numeric metadata key.
func minBy(candidates []Registration, key string) (Registration, bool) {
	var (
		best   Registration
		lowest float64
		found  bool
	)
	for _, reg := range candidates {
		v, ok := reg.caps.MetaFloat(key)
		if !ok {
			continue
		}
		if !found || v < lowest {
			best, lowest, found = reg, v, true
		}
	}
	return best, found
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
