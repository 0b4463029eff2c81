package provider

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kbukum/switchyard/observability"
)

// Metric names recorded through the sink.
const (
	MetricCacheHit         = "selection.cache.hit"
	MetricCacheMiss        = "selection.cache.miss"
	MetricProviderSelected = "selection.provider_selected"
	MetricFanOutSize       = "selection.fanout.size"
	MetricDuration         = "selection.duration"
	MetricShardKey         = "selection.shard_key"
	MetricShardTarget      = "selection.shard_target"
	MetricRouterRejected   = "selection.router.rejected"
)

// Metric tag keys.
const (
	TagKeyContract = "contract"
	TagKeyProvider = "provider"
	TagKeyStrategy = "strategy"
	TagKeyShard    = "shard"
	TagKeyFilter   = "filter"
)

func recordSelected(ctx context.Context, sink observability.Sink, contract Contract, kind StrategyKind, reg Registration) {
	sink.RecordMetric(ctx, MetricProviderSelected, 1,
		observability.T(TagKeyContract, contract.String()),
		observability.T(TagKeyStrategy, string(kind)),
		observability.T(TagKeyProvider, reg.caps.providerID),
	)
}

func recordDuration(ctx context.Context, sink observability.Sink, contract Contract, kind StrategyKind, start time.Time) {
	sink.RecordMetric(ctx, MetricDuration, time.Since(start).Seconds(),
		observability.T(TagKeyContract, contract.String()),
		observability.T(TagKeyStrategy, string(kind)),
	)
}

// identityHash hashes the contract and the identity tuples of regs, in the
// given order, plus any extra strings.
func identityHash(contract Contract, regs []Registration, extra ...string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(contract.key())
	_, _ = d.Write([]byte{0})
	var buf [8]byte
	for _, reg := range regs {
		_, _ = d.WriteString(reg.caps.providerID)
		_, _ = d.Write([]byte{0, byte(reg.caps.priority)})
		binary.LittleEndian.PutUint64(buf[:], uint64(reg.caps.registeredAt))
		_, _ = d.Write(buf[:])
	}
	for _, s := range extra {
		_, _ = d.Write([]byte{0xff})
		_, _ = d.WriteString(s)
	}
	return d.Sum64()
}
