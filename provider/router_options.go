package provider

import (
	"maps"
	"math"
	"strings"
	"time"
)

// RouterOptions are the QoS constraints of one routing decision. Values are
// immutable; the With methods return modified copies. The zero value has no
// constraints and allows external providers.
type RouterOptions struct {
	budget        *float64
	targetLatency *time.Duration
	region        string
	denyExternal  bool
	metadata      map[string]string
}

// DefaultRouterOptions has no constraints and allows external providers.
func DefaultRouterOptions() RouterOptions {
	return RouterOptions{}
}

// CostOptimized ranks candidates by cost without capping it.
func CostOptimized() RouterOptions {
	return DefaultRouterOptions().WithBudget(math.MaxFloat64)
}

// LatencyOptimized ranks candidates by reported latency.
func LatencyOptimized() RouterOptions {
	return DefaultRouterOptions().WithTargetLatency(0)
}

// InternalOnly rejects providers tagged external or third-party.
func InternalOnly() RouterOptions {
	return DefaultRouterOptions().WithAllowExternal(false)
}

// WithBudget sets the maximum cost. Candidates without a cost are kept.
func (o RouterOptions) WithBudget(budget float64) RouterOptions {
	o.budget = &budget
	return o
}

func (o RouterOptions) WithoutBudget() RouterOptions {
	o.budget = nil
	return o
}

// WithTargetLatency makes the router prefer the lowest latency_ms when no
// budget is set. The value is a ranking hint, not a filter.
func (o RouterOptions) WithTargetLatency(d time.Duration) RouterOptions {
	o.targetLatency = &d
	return o
}

// WithRegion restricts candidates to one region (case-insensitive).
func (o RouterOptions) WithRegion(region string) RouterOptions {
	o.region = region
	return o
}

func (o RouterOptions) WithAllowExternal(allow bool) RouterOptions {
	o.denyExternal = !allow
	return o
}

// WithMetadataFilter requires metadata key to equal value (case-insensitive).
func (o RouterOptions) WithMetadataFilter(key, value string) RouterOptions {
	m := maps.Clone(o.metadata)
	if m == nil {
		m = make(map[string]string, 1)
	}
	m[key] = value
	o.metadata = m
	return o
}

func (o RouterOptions) Budget() (float64, bool) {
	if o.budget == nil {
		return 0, false
	}
	return *o.budget, true
}

func (o RouterOptions) TargetLatency() (time.Duration, bool) {
	if o.targetLatency == nil {
		return 0, false
	}
	return *o.targetLatency, true
}

func (o RouterOptions) Region() string      { return o.region }
func (o RouterOptions) AllowExternal() bool { return !o.denyExternal }

// MetadataFilters returns a copy of the metadata filters.
func (o RouterOptions) MetadataFilters() map[string]string {
	return maps.Clone(o.metadata)
}

func (o RouterOptions) String() string {
	var b strings.Builder
	b.WriteString("router{")
	if v, ok := o.Budget(); ok {
		b.WriteString("budget=")
		if v == math.MaxFloat64 {
			b.WriteString("unbounded")
		} else {
			b.WriteString(formatFloat(v))
		}
		b.WriteByte(' ')
	}
	if d, ok := o.TargetLatency(); ok {
		b.WriteString("latency=" + d.String() + " ")
	}
	if o.region != "" {
		b.WriteString("region=" + o.region + " ")
	}
	if o.denyExternal {
		b.WriteString("internal ")
	}
	for _, k := range sortedKeys(o.metadata) {
		b.WriteString("meta:" + k + "=" + o.metadata[k] + " ")
	}
	return strings.TrimSuffix(b.String(), " ") + "}"
}
