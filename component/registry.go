package component

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/observability"
)

// DefaultStopTimeout bounds each component's Stop call.
const DefaultStopTimeout = 10 * time.Second

type componentEntry struct {
	component Component
	started   bool
}

// Registry manages component lifecycle with deterministic ordering.
type Registry struct {
	mu          sync.Mutex
	entries     []*componentEntry
	lookup      map[string]*componentEntry
	stopTimeout time.Duration
}

// NewRegistry creates a new component registry.
func NewRegistry() *Registry {
	return &Registry{
		lookup:      make(map[string]*componentEntry),
		stopTimeout: DefaultStopTimeout,
	}
}

// Register adds a component. Register dependencies first.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.lookup[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	entry := &componentEntry{component: c}
	r.entries = append(r.entries, entry)
	r.lookup[name] = entry

	logger.Debug("component registered", logger.Fields(logger.FieldComponent, name))
	return nil
}

// StartAll starts every component in registration order. If one fails, the
// components already started are stopped again before the error is returned.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger.Info("starting components", logger.Fields("count", len(r.entries)))
	for _, entry := range r.entries {
		if entry.started {
			continue
		}
		name := entry.component.Name()
		if err := entry.component.Start(ctx); err != nil {
			logger.Error("component start failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err))
			startErr := fmt.Errorf("failed to start %s: %w", name, err)
			return multierr.Append(startErr, r.stopStarted(context.WithoutCancel(ctx)))
		}
		entry.started = true
		logger.Debug("component started", logger.Fields(logger.FieldComponent, name))
	}
	return nil
}

// StopAll stops started components in reverse registration order and
// returns every failure combined.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	logger.Info("stopping components")
	return r.stopStarted(ctx)
}

func (r *Registry) stopStarted(ctx context.Context) error {
	var errs error
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]
		if !entry.started {
			continue
		}
		name := entry.component.Name()

		stopCtx, cancel := context.WithTimeout(ctx, r.stopTimeout)
		if err := entry.component.Stop(stopCtx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to stop %s: %w", name, err))
			logger.Error("component stop failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err))
		} else {
			logger.Info("component stopped", logger.Fields(logger.FieldComponent, name))
		}
		cancel()
		entry.started = false
	}
	return errs
}

// HealthAll reports every component's health, in registration order.
func (r *Registry) HealthAll(ctx context.Context) []observability.Health {
	r.mu.Lock()
	components := make([]Component, len(r.entries))
	for i, entry := range r.entries {
		components[i] = entry.component
	}
	r.mu.Unlock()

	results := make([]observability.Health, 0, len(components))
	for _, c := range components {
		results = append(results, c.Health(ctx))
	}
	return results
}

// ServiceHealth aggregates HealthAll into a ServiceHealth.
func (r *Registry) ServiceHealth(ctx context.Context, service, version string) *observability.ServiceHealth {
	sh := observability.NewServiceHealth(service, version)
	for _, h := range r.HealthAll(ctx) {
		sh.AddComponent(h)
	}
	return sh
}

// Get returns a registered component by name, or nil if not found.
func (r *Registry) Get(name string) Component {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, exists := r.lookup[name]; exists {
		return entry.component
	}
	return nil
}
