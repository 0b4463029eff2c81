package resilience

import (
	"fmt"
	"time"
)

// Config describes the layers of an Executor. Zero values disable a layer:
// no timeout, a single attempt, no breaker, no bulkhead, no rate limit.
type Config struct {
	Name string `yaml:"name" mapstructure:"name"`

	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`

	BreakerFailures int           `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" mapstructure:"breaker_timeout"`

	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxWait       time.Duration `yaml:"max_wait" mapstructure:"max_wait"`

	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

// ApplyDefaults fills zero values that have a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "provider"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 1
	}
	if c.BreakerFailures > 0 && c.BreakerTimeout == 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.Timeout < 0:
		return fmt.Errorf("resilience.timeout must not be negative")
	case c.MaxAttempts < 1:
		return fmt.Errorf("resilience.max_attempts must be at least 1 (got: %d)", c.MaxAttempts)
	case c.BreakerFailures < 0:
		return fmt.Errorf("resilience.breaker_failures must not be negative")
	case c.MaxConcurrent < 0:
		return fmt.Errorf("resilience.max_concurrent must not be negative")
	case c.RatePerSecond < 0:
		return fmt.Errorf("resilience.rate_per_second must not be negative")
	}
	return nil
}
