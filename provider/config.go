package provider

import (
	"fmt"
	"time"
)

// SelectionConfig is the configuration of the selection layer.
type SelectionConfig struct {
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`
	// DefaultStrategy replaces the PickOne fallback.
	DefaultStrategy string `yaml:"default_strategy" mapstructure:"default_strategy"`
	// Categories maps a category name to a strategy name.
	Categories map[string]string `yaml:"categories" mapstructure:"categories"`
	// Contracts is keyed by contract name.
	Contracts map[string]ContractConfig `yaml:"contracts" mapstructure:"contracts"`
	// Bindings is the list form of Contracts. Configuration files use it
	// because viper lower-cases map keys and splits them on dots.
	Bindings       []ContractBinding `yaml:"bindings" mapstructure:"bindings"`
	Router         RouterConfig      `yaml:"router" mapstructure:"router"`
	ShardOverrides []ShardOverride   `yaml:"shard_overrides" mapstructure:"shard_overrides"`
	VirtualNodes   int               `yaml:"virtual_nodes" mapstructure:"virtual_nodes"`
}

// ContractConfig binds one contract.
type ContractConfig struct {
	Category string        `yaml:"category" mapstructure:"category"`
	Strategy string        `yaml:"strategy" mapstructure:"strategy"`
	Router   *RouterConfig `yaml:"router" mapstructure:"router"`
}

// ContractBinding is one entry of SelectionConfig.Bindings.
type ContractBinding struct {
	Name           string `yaml:"name" mapstructure:"name"`
	ContractConfig `yaml:",inline" mapstructure:",squash"`
}

// ContractConfigs merges Contracts and Bindings by contract name. A binding
// replaces a Contracts entry of the same name.
func (c SelectionConfig) ContractConfigs() map[string]ContractConfig {
	out := make(map[string]ContractConfig, len(c.Contracts)+len(c.Bindings))
	for name, cc := range c.Contracts {
		out[name] = cc
	}
	for _, b := range c.Bindings {
		out[b.Name] = b.ContractConfig
	}
	return out
}

// RouterConfig is the configuration form of RouterOptions.
type RouterConfig struct {
	Budget        *float64          `yaml:"budget" mapstructure:"budget"`
	TargetLatency *time.Duration    `yaml:"target_latency" mapstructure:"target_latency"`
	Region        string            `yaml:"region" mapstructure:"region"`
	AllowExternal *bool             `yaml:"allow_external" mapstructure:"allow_external"`
	Metadata      map[string]string `yaml:"metadata" mapstructure:"metadata"`
}

// IsZero reports whether no field is set.
func (c RouterConfig) IsZero() bool {
	return c.Budget == nil && c.TargetLatency == nil && c.Region == "" &&
		c.AllowExternal == nil && len(c.Metadata) == 0
}

// Options converts the configuration to RouterOptions.
func (c RouterConfig) Options() RouterOptions {
	o := DefaultRouterOptions()
	if c.Budget != nil {
		o = o.WithBudget(*c.Budget)
	}
	if c.TargetLatency != nil {
		o = o.WithTargetLatency(*c.TargetLatency)
	}
	if c.Region != "" {
		o = o.WithRegion(c.Region)
	}
	if c.AllowExternal != nil {
		o = o.WithAllowExternal(*c.AllowExternal)
	}
	for _, k := range sortedKeys(c.Metadata) {
		o = o.WithMetadataFilter(k, c.Metadata[k])
	}
	return o
}

func (c *RouterConfig) validate(path string) error {
	if c.Budget != nil && *c.Budget < 0 {
		return fmt.Errorf("%s.budget must not be negative", path)
	}
	if c.TargetLatency != nil && *c.TargetLatency < 0 {
		return fmt.Errorf("%s.target_latency must not be negative", path)
	}
	return nil
}

// ApplyDefaults fills zero values.
func (c *SelectionConfig) ApplyDefaults() {
	c.Cache.ApplyDefaults()
	if c.VirtualNodes == 0 {
		c.VirtualNodes = DefaultVirtualNodes
	}
}

// Validate checks the configuration. Strategy and contract names are not
// checked here; ApplyConfig reports them.
func (c *SelectionConfig) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.VirtualNodes < 0 {
		return fmt.Errorf("selection.virtual_nodes must not be negative")
	}
	if err := c.Router.validate("selection.router"); err != nil {
		return err
	}
	for i, b := range c.Bindings {
		if b.Name == "" {
			return fmt.Errorf("selection.bindings[%d].name is required", i)
		}
	}
	for name, cc := range c.ContractConfigs() {
		if cc.Router == nil {
			continue
		}
		if err := cc.Router.validate("selection.contracts." + name + ".router"); err != nil {
			return err
		}
	}
	for i, o := range c.ShardOverrides {
		if o.Key == "" || o.ProviderID == "" {
			return fmt.Errorf("selection.shard_overrides[%d] requires key and provider", i)
		}
	}
	return nil
}
