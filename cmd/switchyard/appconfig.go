package main

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/kbukum/switchyard/admin"
	"github.com/kbukum/switchyard/config"
	"github.com/kbukum/switchyard/observability"
	"github.com/kbukum/switchyard/plugin"
	"github.com/kbukum/switchyard/provider"
	"github.com/kbukum/switchyard/resilience"
)

const serviceName = "switchyard"

// Config is the configuration of the switchyard binary.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Selection     provider.SelectionConfig `yaml:"selection" mapstructure:"selection"`
	Resilience    resilience.Config        `yaml:"resilience" mapstructure:"resilience"`
	Plugins       plugin.Config            `yaml:"plugins" mapstructure:"plugins"`
	Admin         admin.Config             `yaml:"admin" mapstructure:"admin"`
	Observability observability.Config     `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults fills zero values in every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.Selection.ApplyDefaults()
	c.Resilience.ApplyDefaults()
	c.Plugins.ApplyDefaults()
	c.Admin.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate checks every section and returns all problems together.
func (c *Config) Validate() error {
	var errs error
	errs = multierr.Append(errs, c.ServiceConfig.Validate())
	errs = multierr.Append(errs, wrap("selection", c.Selection.Validate()))
	errs = multierr.Append(errs, c.Resilience.Validate())
	errs = multierr.Append(errs, wrap("plugins", c.Plugins.Validate()))
	errs = multierr.Append(errs, c.Admin.Validate())
	errs = multierr.Append(errs, c.Observability.Validate())
	return errs
}

func wrap(section string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", section, err)
}

// loadConfig reads the configuration file (optional), the .env file and
// SWITCHYARD_* environment variables.
func loadConfig(path string) (*Config, error) {
	var opts []config.LoaderOption
	if path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	cfg := &Config{}
	if err := config.LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
