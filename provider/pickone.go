package provider

import (
	"github.com/kbukum/switchyard/errors"
	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/observability"
)

// PickOne selects the single best active provider: highest priority, then
// earliest registration, then lowest provider id.
type PickOne struct {
	cache *SelectionCache
	sink  observability.Sink
}

var _ Strategy = (*PickOne)(nil)

// NewPickOne creates the strategy. A nil cache disables memoization.
func NewPickOne(cache *SelectionCache, sink observability.Sink) *PickOne {
	return &PickOne{cache: cache, sink: observability.OrNop(sink)}
}

func (s *PickOne) Kind() StrategyKind { return KindPickOne }

func (s *PickOne) Select(sc SelectionContext) (SelectionResult, error) {
	ctx := sc.Context()
	if err := ctx.Err(); err != nil {
		return SelectionResult{}, err
	}

	ordered := sortByPriority(sc.Active())
	if len(ordered) == 0 {
		return SelectionResult{}, errors.NotRegistered(sc.Contract().String())
	}

	result, hit := cachedSelect(s.cache, s.sink, sc, KindPickOne, identityHash(sc.Contract(), ordered), func() SelectionResult {
		return newResult(KindPickOne, ordered[:1])
	})
	chosen, _ := result.First()
	recordSelected(ctx, s.sink, sc.Contract(), KindPickOne, chosen)

	if !hit {
		logger.Get("provider").Debug("provider selected", logger.Fields(
			logger.FieldContract, sc.Contract().String(),
			logger.FieldStrategy, string(KindPickOne),
			logger.FieldProvider, chosen.ProviderID(),
		))
	}
	return result, nil
}

// cachedSelect returns the cached result for (contract, kind, setHash), or
// computes and stores it. It records the hit or miss metric.
func cachedSelect(cache *SelectionCache, sink observability.Sink, sc SelectionContext, kind StrategyKind, setHash uint64, compute func() SelectionResult) (SelectionResult, bool) {
	ctx := sc.Context()
	tags := []observability.Tag{
		observability.T(TagKeyContract, sc.Contract().String()),
		observability.T(TagKeyStrategy, string(kind)),
	}
	if cache == nil {
		sink.RecordMetric(ctx, MetricCacheMiss, 1, tags...)
		return compute(), false
	}

	key := cache.Key(sc.Contract(), kind, setHash)
	if result, ok := cache.Get(key); ok {
		sink.RecordMetric(ctx, MetricCacheHit, 1, tags...)
		return result, true
	}
	sink.RecordMetric(ctx, MetricCacheMiss, 1, tags...)
	result := compute()
	cache.Set(key, result)
	return result, false
}
