package provider

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Priority orders providers of the same contract. Higher wins.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "priority(" + strconv.Itoa(int(p)) + ")"
	}
}

// ParsePriority parses a priority name, case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PlatformAny matches every platform.
const PlatformAny = "any"

// Well-known metadata keys and tags read by the router.
const (
	MetaCost      = "cost"
	MetaLatencyMs = "latency_ms"
	MetaRegion    = "region"

	TagExternal   = "external"
	TagThirdParty = "third-party"
)

// lastStamp backs registeredAt. Every stamp is strictly greater than the last.
var lastStamp atomic.Int64

func nextStamp() int64 {
	for {
		last := lastStamp.Load()
		now := time.Now().UnixNano()
		if now <= last {
			now = last + 1
		}
		if lastStamp.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Capabilities describe a provider. They are immutable once built.
type Capabilities struct {
	providerID   string
	priority     Priority
	platform     string
	tags         map[string]struct{}
	metadata     map[string]any
	registeredAt int64
}

// CapabilityOption configures Capabilities.
type CapabilityOption func(*Capabilities)

// WithPriority sets the priority (default PriorityNormal).
func WithPriority(p Priority) CapabilityOption {
	return func(c *Capabilities) { c.priority = p }
}

// WithPlatform restricts the provider to a GOOS-style platform (default "any").
func WithPlatform(platform string) CapabilityOption {
	return func(c *Capabilities) { c.platform = strings.ToLower(platform) }
}

// WithTags adds tags.
func WithTags(tags ...string) CapabilityOption {
	return func(c *Capabilities) {
		for _, t := range tags {
			c.tags[t] = struct{}{}
		}
	}
}

// WithMetadata sets one metadata entry.
func WithMetadata(key string, value any) CapabilityOption {
	return func(c *Capabilities) { c.metadata[key] = value }
}

// WithMetadataMap copies every entry of m into the metadata.
func WithMetadataMap(m map[string]any) CapabilityOption {
	return func(c *Capabilities) { maps.Copy(c.metadata, m) }
}

// WithRegisteredAt overrides the registration stamp. The stamp only breaks
// priority ties, so callers restoring a known order may set it explicitly.
func WithRegisteredAt(stamp int64) CapabilityOption {
	return func(c *Capabilities) { c.registeredAt = stamp }
}

// NewCapabilities builds capabilities for providerID, stamped with a
// strictly increasing registration time.
func NewCapabilities(providerID string, opts ...CapabilityOption) Capabilities {
	c := Capabilities{
		providerID:   providerID,
		priority:     PriorityNormal,
		platform:     PlatformAny,
		tags:         make(map[string]struct{}),
		metadata:     make(map[string]any),
		registeredAt: nextStamp(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.platform == "" {
		c.platform = PlatformAny
	}
	return c
}

func (c Capabilities) ProviderID() string  { return c.providerID }
func (c Capabilities) Priority() Priority  { return c.priority }
func (c Capabilities) Platform() string    { return c.platform }
func (c Capabilities) RegisteredAt() int64 { return c.registeredAt }

// Tags returns the tags, sorted.
func (c Capabilities) Tags() []string {
	return slices.Sorted(maps.Keys(c.tags))
}

// HasTag reports whether the tag is present.
func (c Capabilities) HasTag(tag string) bool {
	_, ok := c.tags[tag]
	return ok
}

// IsExternal reports whether the provider is tagged external or third-party.
func (c Capabilities) IsExternal() bool {
	return c.HasTag(TagExternal) || c.HasTag(TagThirdParty)
}

// Metadata returns a copy of the metadata.
func (c Capabilities) Metadata() map[string]any {
	return maps.Clone(c.metadata)
}

// Meta returns one metadata value.
func (c Capabilities) Meta(key string) (any, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

// MetaString returns a metadata value rendered as a string.
func (c Capabilities) MetaString(key string) (string, bool) {
	v, ok := c.metadata[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// MetaFloat returns a numeric metadata value. Strings are parsed.
func (c Capabilities) MetaFloat(key string) (float64, bool) {
	switch v := c.metadata[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case time.Duration:
		return float64(v.Milliseconds()), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// SupportsPlatform reports whether the provider can run on platform.
func (c Capabilities) SupportsPlatform(platform string) bool {
	return c.platform == PlatformAny || platform == "" || strings.EqualFold(c.platform, platform)
}
