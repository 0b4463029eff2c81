package provider

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/kbukum/switchyard/errors"
	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/observability"
)

const (
	// MetaEvent is the call metadata key the default shard key is read from.
	MetaEvent = "event"
	// DefaultShardKey is used when the call carries no event.
	DefaultShardKey = "default"
)

// ShardKeyFunc extracts the shard key of a call.
type ShardKeyFunc func(SelectionContext) string

// EventShardKey returns the part of the "event" metadata before the first
// dot, so "billing.invoice.created" shards on "billing".
func EventShardKey(sc SelectionContext) string {
	ev := sc.Metadata(MetaEvent)
	if i := strings.IndexByte(ev, '.'); i >= 0 {
		ev = ev[:i]
	}
	if ev == "" {
		return DefaultShardKey
	}
	return ev
}

// ShardOverride pins a shard key to a provider id.
type ShardOverride struct {
	Key        string `yaml:"key" mapstructure:"key" json:"key"`
	ProviderID string `yaml:"provider" mapstructure:"provider" json:"provider"`
}

// ShardedOption configures Sharded.
type ShardedOption func(*Sharded)

// WithShardKeyFunc replaces EventShardKey.
func WithShardKeyFunc(fn ShardKeyFunc) ShardedOption {
	return func(s *Sharded) { s.keyFunc = fn }
}

// WithShardOverrides sets the override table. When a key appears more than
// once the first entry wins and a DUPLICATE_SHARD_KEY warning is logged.
func WithShardOverrides(overrides ...ShardOverride) ShardedOption {
	return func(s *Sharded) { s.rawOverrides = append(s.rawOverrides, overrides...) }
}

// WithVirtualNodes sets the ring points per provider.
func WithVirtualNodes(n int) ShardedOption {
	return func(s *Sharded) { s.vnodes = n }
}

// Sharded routes each call to one provider by shard key. An override whose
// target is active always wins; otherwise the key is placed on a consistent
// hash ring over the active provider ids.
type Sharded struct {
	cache   *SelectionCache
	sink    observability.Sink
	keyFunc ShardKeyFunc
	vnodes  int

	rawOverrides []ShardOverride
	overrides    map[string]string
	// salt distinguishes instances with different override tables that
	// share one cache.
	salt string
}

var _ Strategy = (*Sharded)(nil)

// NewSharded creates the strategy. A nil cache disables memoization.
func NewSharded(cache *SelectionCache, sink observability.Sink, opts ...ShardedOption) *Sharded {
	s := &Sharded{
		cache:     cache,
		sink:      observability.OrNop(sink),
		keyFunc:   EventShardKey,
		vnodes:    DefaultVirtualNodes,
		overrides: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	d := xxhash.New()
	for _, o := range s.rawOverrides {
		if first, dup := s.overrides[o.Key]; dup {
			logger.Get("provider").Warn("duplicate shard override ignored", logger.Fields(
				logger.FieldCode, string(errors.WarnCodeDuplicateShardKey),
				logger.FieldShardKey, o.Key,
				logger.FieldProvider, o.ProviderID,
				"kept_provider", first,
			))
			continue
		}
		s.overrides[o.Key] = o.ProviderID
		_, _ = d.WriteString(o.Key + "=" + o.ProviderID + ";")
	}
	s.salt = strconv.FormatUint(d.Sum64(), 16) + "/" + strconv.Itoa(s.vnodes)
	return s
}

func (s *Sharded) Kind() StrategyKind { return KindSharded }

// Overrides returns a copy of the effective override table.
func (s *Sharded) Overrides() map[string]string {
	out := make(map[string]string, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

func (s *Sharded) Select(sc SelectionContext) (SelectionResult, error) {
	ctx := sc.Context()
	if err := ctx.Err(); err != nil {
		return SelectionResult{}, err
	}

	ordered := sortByPriority(sc.Active())
	if len(ordered) == 0 {
		return SelectionResult{}, errors.NotRegistered(sc.Contract().String())
	}

	key := s.keyFunc(sc)
	s.sink.RecordMetric(ctx, MetricShardKey, 1,
		observability.T(TagKeyContract, sc.Contract().String()),
		observability.T(TagKeyShard, key),
	)

	result, _ := cachedSelect(s.cache, s.sink, sc, KindSharded, identityHash(sc.Contract(), ordered, key, s.salt), func() SelectionResult {
		return newResult(KindSharded, []Registration{s.resolve(sc.Contract(), ordered, key)})
	})

	chosen, _ := result.First()
	s.sink.RecordMetric(ctx, MetricShardTarget, 1,
		observability.T(TagKeyContract, sc.Contract().String()),
		observability.T(TagKeyProvider, chosen.ProviderID()),
	)
	return result, nil
}

// resolve picks the owner of key among active registrations.
func (s *Sharded) resolve(contract Contract, active []Registration, key string) Registration {
	if target, ok := s.overrides[key]; ok {
		for _, reg := range active {
			if reg.caps.providerID == target {
				return reg
			}
		}
		logger.Get("provider").Warn("shard override target is not active, using hash ring", logger.Fields(
			logger.FieldContract, contract.String(),
			logger.FieldShardKey, key,
			logger.FieldProvider, target,
		))
	}

	ids := make([]string, len(active))
	for i, reg := range active {
		ids[i] = reg.caps.providerID
	}
	owner, _ := NewHashRing(ids, s.vnodes).Lookup(key)
	for _, reg := range active {
		if reg.caps.providerID == owner {
			return reg
		}
	}
	return active[0]
}
