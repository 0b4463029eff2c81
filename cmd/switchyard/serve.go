package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/kbukum/switchyard/admin"
	"github.com/kbukum/switchyard/component"
	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/observability"
	"github.com/kbukum/switchyard/plugin"
	"github.com/kbukum/switchyard/provider"
	"github.com/kbukum/switchyard/resilience"
	"github.com/kbukum/switchyard/version"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load plugins and serve the admin API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// runtimeParts is everything serve wires together.
type runtimeParts struct {
	registry   *provider.Registry
	binder     *provider.ContractBinder
	host       *plugin.Host
	components *component.Registry
}

// build wires the selection layer, the plugin host and the admin server.
func build(cfg *Config, sink observability.Sink) (*runtimeParts, error) {
	cache := provider.NewSelectionCache(cfg.Selection.Cache)
	factory := provider.NewStrategyFactory(cache, sink)
	registry := provider.NewRegistry(
		provider.WithSink(sink),
		provider.WithSelectionCache(cache),
		provider.WithStrategyFactory(factory),
		provider.WithExecutor(resilience.NewExecutor(cfg.Resilience)),
	)

	// Per-contract bindings wait for the contract to be registered.
	selection := cfg.Selection
	contracts := selection.ContractConfigs()
	selection.Contracts, selection.Bindings = nil, nil
	factory.ApplyConfig(selection, nil)
	binder := provider.BindContracts(registry, contracts)

	host := plugin.NewHost(cfg.Plugins, registry, plugin.WithHostSink(sink))

	components := component.NewRegistry()
	if err := components.Register(host); err != nil {
		return nil, err
	}
	if cfg.Admin.Enabled {
		srv, err := admin.New(cfg.Admin, registry, host, admin.WithHealth(func(ctx context.Context) *observability.ServiceHealth {
			return components.ServiceHealth(ctx, cfg.Name, version.GetShortVersion())
		}))
		if err != nil {
			return nil, fmt.Errorf("admin: %w", err)
		}
		if err := components.Register(srv); err != nil {
			return nil, err
		}
	}
	return &runtimeParts{registry: registry, binder: binder, host: host, components: components}, nil
}

func serve(ctx context.Context, cfg *Config) (err error) {
	logger.Init(cfg.Logging)
	log := logger.Get(serviceName)

	sink, shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, shutdownTelemetry(shutdownCtx))
	}()

	parts, err := build(cfg, sink)
	if err != nil {
		return err
	}
	defer parts.binder.Close()

	if err := parts.components.StartAll(ctx); err != nil {
		return err
	}
	log.Info("switchyard started", logger.Fields(
		logger.FieldVersion, version.GetShortVersion(),
		"plugins", len(parts.host.List()),
		"contracts", len(parts.registry.Contracts()),
		"pending_bindings", len(parts.binder.Pending()),
	))

	<-ctx.Done()
	log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return parts.components.StopAll(stopCtx)
}

// initTelemetry installs the OpenTelemetry providers when enabled and
// returns the sink to instrument with.
func initTelemetry(ctx context.Context, cfg *Config) (observability.Sink, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Observability.Enabled {
		return observability.NopSink{}, noop, nil
	}

	tel, err := observability.Start(ctx, cfg.Observability, observability.ServiceInfo{
		Name:        cfg.Name,
		Version:     version.GetShortVersion(),
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, noop, err
	}
	return tel.Sink(), tel.Shutdown, nil
}
