package plugin

import (
	"fmt"
	"time"

	"github.com/kbukum/switchyard/resilience"
)

const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultStopTimeout = 10 * time.Second
)

// Config configures the plugin host.
type Config struct {
	// Dir is scanned by Discover when the host starts. Empty disables discovery.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// AutoActivate activates every plugin loaded from Dir.
	AutoActivate bool `yaml:"auto_activate" mapstructure:"auto_activate"`
	// Watch reloads a plugin when files in its directory change.
	Watch    bool          `yaml:"watch" mapstructure:"watch"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	// StopTimeout bounds the SIGTERM grace period of process plugins.
	StopTimeout time.Duration `yaml:"stop_timeout" mapstructure:"stop_timeout"`
	// Shared names resolve to the host's single instance in every load context.
	Shared []string `yaml:"shared" mapstructure:"shared"`
	// Preflight wraps the load-time preflight run of process plugins.
	Preflight resilience.Config `yaml:"preflight" mapstructure:"preflight"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.Preflight.Name == "" {
		c.Preflight.Name = "plugin-preflight"
	}
	if c.Preflight.Timeout == 0 {
		c.Preflight.Timeout = 30 * time.Second
	}
	c.Preflight.ApplyDefaults()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Debounce < 0 {
		return fmt.Errorf("plugins.debounce must not be negative")
	}
	if c.StopTimeout < 0 {
		return fmt.Errorf("plugins.stop_timeout must not be negative")
	}
	if c.Watch && c.Dir == "" {
		return fmt.Errorf("plugins.watch requires plugins.dir")
	}
	return c.Preflight.Validate()
}
