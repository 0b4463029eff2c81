package plugin

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/kbukum/switchyard/component"
	"github.com/kbukum/switchyard/errors"
	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/observability"
	"github.com/kbukum/switchyard/process"
	"github.com/kbukum/switchyard/provider"
	"github.com/kbukum/switchyard/resilience"
)

// MetricLifecycle counts lifecycle operations, tagged by plugin, operation
// and outcome.
const MetricLifecycle = "plugin.lifecycle"

// Host owns the loaded plugins.
//
// Operations on one plugin id are serialized; different ids proceed
// concurrently.
type Host struct {
	cfg      Config
	registry *provider.Registry
	catalog  *Catalog
	shared   *Shared
	fallback Resolver
	runner   *process.Runner
	sink     observability.Sink
	log      *logger.Logger

	locks keyedMutex

	mu      sync.RWMutex
	handles map[string]*Handle
	watcher *Watcher
	running bool
}

var _ component.Component = (*Host)(nil)

// HostOption configures a Host.
type HostOption func(*Host)

// WithCatalog sets the table of in-process entry points.
func WithCatalog(c *Catalog) HostOption {
	return func(h *Host) { h.catalog = c }
}

// WithShared sets the shared allow-list. Names from Config.Shared are added to it.
func WithShared(s *Shared) HostOption {
	return func(h *Host) { h.shared = s }
}

// WithFallbackResolver sets the resolver consulted last by load contexts.
func WithFallbackResolver(r Resolver) HostOption {
	return func(h *Host) { h.fallback = r }
}

// WithPreflightExecutor replaces the executor built from Config.Preflight.
func WithPreflightExecutor(e process.Executor) HostOption {
	return func(h *Host) { h.runner = process.NewRunner(e) }
}

func WithHostSink(s observability.Sink) HostOption {
	return func(h *Host) { h.sink = s }
}

// NewHost creates a host that registers plugin providers in registry.
func NewHost(cfg Config, registry *provider.Registry, opts ...HostOption) *Host {
	cfg.ApplyDefaults()
	h := &Host{
		cfg:      cfg,
		registry: registry,
		handles:  make(map[string]*Handle),
		log:      logger.Get("plugin"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.catalog == nil {
		h.catalog = NewCatalog()
	}
	if h.shared == nil {
		h.shared = NewShared()
	}
	h.shared.Allow(cfg.Shared...)
	if h.runner == nil {
		h.runner = process.NewRunner(resilience.NewExecutor(cfg.Preflight))
	}
	if h.sink == nil {
		h.sink = registry.Sink()
	}
	h.sink = observability.OrNop(h.sink)
	return h
}

func (h *Host) Catalog() *Catalog            { return h.catalog }
func (h *Host) Shared() *Shared              { return h.shared }
func (h *Host) Registry() *provider.Registry { return h.registry }

// Dir returns the configured plugin directory, or "" when discovery is off.
func (h *Host) Dir() string { return h.cfg.Dir }

func (h *Host) record(ctx context.Context, id, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.sink.RecordMetric(ctx, MetricLifecycle, 1,
		observability.T("plugin", id),
		observability.T("op", op),
		observability.T("outcome", outcome),
	)
}

// Get returns the handle of a loaded plugin.
func (h *Host) Get(id string) (*Handle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hd, ok := h.handles[id]
	return hd, ok
}

// List returns every loaded plugin, sorted by id.
func (h *Host) List() []*Handle {
	h.mu.RLock()
	out := make([]*Handle, 0, len(h.handles))
	for _, hd := range h.handles {
		out = append(out, hd)
	}
	h.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Handle) int { return strings.Compare(a.ID(), b.ID()) })
	return out
}

// Load validates d, reads its bundle into a new load context and
// instantiates the plugin. Any failure disposes the context and leaves no
// handle behind.
func (h *Host) Load(ctx context.Context, d Descriptor) (hd *Handle, err error) {
	ctx = h.sink.EnterMethod(ctx, "plugin", "Load")
	defer func() {
		h.record(ctx, d.ID, "load", err)
		h.sink.ExitMethod(ctx, err)
	}()

	if err := d.Validate(); err != nil {
		return nil, err
	}
	unlock, err := h.locks.lock(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return h.load(ctx, d)
}

func (h *Host) load(ctx context.Context, d Descriptor) (*Handle, error) {
	if _, exists := h.Get(d.ID); exists {
		return nil, errors.AlreadyExists("plugin", d.ID)
	}

	start := time.Now()
	lc := newLoadContext(d.ID, d.BaseDir(), h.shared, h.fallback)
	fail := func(err error) (*Handle, error) {
		lc.Dispose()
		h.log.Warn("plugin load failed", logger.Fields(
			logger.FieldPlugin, d.ID,
			logger.FieldVersion, d.Version,
			logger.FieldError, err.Error(),
		))
		return nil, errors.PluginLoadFailure(d.ID, err)
	}

	if err := readBundles(ctx, d, lc); err != nil {
		return fail(err)
	}
	rt, err := h.resolveRuntime(ctx, d, lc)
	if err != nil {
		return fail(err)
	}

	hd := newHandle(d, lc, rt)
	h.mu.Lock()
	h.handles[d.ID] = hd
	watcher := h.watcher
	h.mu.Unlock()
	if watcher != nil {
		watcher.track(d.ID, d.BaseDir())
	}

	h.log.Info("plugin loaded", logger.Fields(
		logger.FieldPlugin, d.ID,
		logger.FieldVersion, d.Version,
		"runtime", rt.kind(),
		"bytes", lc.Size(),
		logger.FieldDuration, time.Since(start).String(),
	))
	return hd, nil
}

func (h *Host) resolveRuntime(ctx context.Context, d Descriptor, lc *LoadContext) (runtime, error) {
	switch d.Runtime() {
	case RuntimeProcess:
		rt := newProcessRuntime(d, h.cfg.StopTimeout, h.log)
		if args, ok := d.Manifest[ManifestPreflight]; ok {
			if err := rt.preflight(ctx, h.runner, args); err != nil {
				return nil, err
			}
		}
		return rt, nil
	default:
		factory, ok := h.catalog.Lookup(d.Entry())
		if !ok {
			h.log.Warn("plugin entry point is not in the catalog", logger.Fields(
				logger.FieldCode, string(errors.WarnCodeTypeResolution),
				logger.FieldPlugin, d.ID,
				"entry", d.Entry(),
			))
			return nil, fmt.Errorf("entry point %q is not registered", d.Entry())
		}
		p, err := factory(lc)
		if err != nil {
			return nil, fmt.Errorf("instantiate %q: %w", d.Entry(), err)
		}
		if p == nil {
			return nil, fmt.Errorf("entry point %q returned no plugin", d.Entry())
		}
		return &inprocRuntime{plugin: p}, nil
	}
}

// Activate moves a Loaded or Deactivated plugin to Active. Activating an
// Active plugin is a no-op.
func (h *Host) Activate(ctx context.Context, id string) (err error) {
	ctx = h.sink.EnterMethod(ctx, "plugin", "Activate")
	defer func() {
		h.record(ctx, id, "activate", err)
		h.sink.ExitMethod(ctx, err)
	}()

	unlock, err := h.locks.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	hd, ok := h.Get(id)
	if !ok {
		return errors.PluginNotFound(id)
	}
	return h.activate(ctx, hd)
}

func (h *Host) activate(ctx context.Context, hd *Handle) error {
	from := hd.State()
	if from == StateActive {
		return nil
	}
	if !canTransition(from, StateActive) {
		return errors.InvalidState(hd.ID(), from.String(), StateActive.String())
	}

	before := len(hd.Registrations())
	pc := &Context{handle: hd, registry: h.registry, log: h.log}
	if err := hd.rt.activate(ctx, pc); err != nil {
		h.rollbackActivation(hd, from, before)
		return errors.PluginLoadFailure(hd.ID(), fmt.Errorf("activate: %w", err)).
			WithDetail("state", from.String())
	}
	for _, rid := range hd.Registrations() {
		h.registry.SetActive(rid, true)
	}
	hd.setState(StateActive)

	h.log.Info("plugin activated", logger.Fields(
		logger.FieldPlugin, hd.ID(),
		"registrations", len(hd.Registrations()),
	))
	return nil
}

// rollbackActivation removes registrations added by a failed activation
// and disables the rest again.
func (h *Host) rollbackActivation(hd *Handle, from State, before int) {
	regs := hd.Registrations()
	for i, rid := range regs {
		if i >= before {
			h.registry.Unregister(rid)
			hd.untrack(rid)
			continue
		}
		if from != StateActive {
			h.registry.SetActive(rid, false)
		}
	}
}

// Deactivate moves an Active plugin to Deactivated and soft-disables its
// providers. Deactivating a Deactivated plugin is a no-op.
func (h *Host) Deactivate(ctx context.Context, id string) (err error) {
	ctx = h.sink.EnterMethod(ctx, "plugin", "Deactivate")
	defer func() {
		h.record(ctx, id, "deactivate", err)
		h.sink.ExitMethod(ctx, err)
	}()

	unlock, err := h.locks.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	hd, ok := h.Get(id)
	if !ok {
		return errors.PluginNotFound(id)
	}
	return h.deactivate(ctx, hd)
}

func (h *Host) deactivate(ctx context.Context, hd *Handle) error {
	from := hd.State()
	if from == StateDeactivated {
		return nil
	}
	if !canTransition(from, StateDeactivated) {
		return errors.InvalidState(hd.ID(), from.String(), StateDeactivated.String())
	}

	// Providers stop receiving calls before the plugin tears down.
	for _, rid := range hd.Registrations() {
		h.registry.SetActive(rid, false)
	}
	err := hd.rt.deactivate(ctx)
	hd.setState(StateDeactivated)

	fields := logger.Fields(logger.FieldPlugin, hd.ID())
	if err != nil {
		fields[logger.FieldError] = err.Error()
		h.log.Warn("plugin deactivated with error", fields)
		return errors.Internal(err).WithDetail("plugin", hd.ID())
	}
	h.log.Info("plugin deactivated", fields)
	return nil
}

// Unload deactivates the plugin if needed, unregisters its providers,
// drops the plugin instance and disposes its load context. It returns
// false, with no error, for ids that are not loaded. Errors raised while
// deactivating are returned after the unload completes.
func (h *Host) Unload(ctx context.Context, id string) (unloaded bool, err error) {
	ctx = h.sink.EnterMethod(ctx, "plugin", "Unload")
	defer func() {
		h.record(ctx, id, "unload", err)
		h.sink.ExitMethod(ctx, err)
	}()

	unlock, err := h.locks.lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	hd, ok := h.Get(id)
	if !ok {
		return false, nil
	}
	return true, h.unload(ctx, hd)
}

func (h *Host) unload(ctx context.Context, hd *Handle) error {
	var errs error
	if hd.State() == StateActive {
		errs = multierr.Append(errs, h.deactivate(ctx, hd))
	}

	removed := 0
	for _, rid := range hd.takeRegistrations() {
		if h.registry.Unregister(rid) {
			removed++
		}
	}
	hd.rt.release()
	hd.lc.Dispose()
	hd.setState(StateUnloaded)

	h.mu.Lock()
	delete(h.handles, hd.ID())
	watcher := h.watcher
	h.mu.Unlock()
	if watcher != nil {
		watcher.untrack(hd.ID())
	}

	h.log.Info("plugin unloaded", logger.Fields(
		logger.FieldPlugin, hd.ID(),
		"registrations_removed", removed,
	))
	return errs
}

// Reload replaces a loaded plugin with a fresh load of its descriptor,
// re-reading the descriptor file when it came from one. A plugin that was
// Active is activated again.
func (h *Host) Reload(ctx context.Context, id string) (hd *Handle, err error) {
	ctx = h.sink.EnterMethod(ctx, "plugin", "Reload")
	defer func() {
		h.record(ctx, id, "reload", err)
		h.sink.ExitMethod(ctx, err)
	}()

	unlock, err := h.locks.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	old, ok := h.Get(id)
	if !ok {
		return nil, errors.PluginNotFound(id)
	}
	desc := old.Descriptor()
	if desc.Source != "" {
		fresh, err := LoadDescriptor(desc.Source)
		if err != nil {
			return nil, errors.PluginLoadFailure(id, err)
		}
		if fresh.ID != id {
			return nil, errors.PluginLoadFailure(id, fmt.Errorf("descriptor id changed to %q", fresh.ID))
		}
		desc = fresh
	}
	wasActive := old.State() == StateActive

	if err := h.unload(ctx, old); err != nil {
		h.log.Warn("error while unloading plugin for reload", logger.Fields(
			logger.FieldPlugin, id,
			logger.FieldError, err.Error(),
		))
	}
	hd, err = h.load(ctx, desc)
	if err != nil {
		return nil, err
	}
	if wasActive {
		if err := h.activate(ctx, hd); err != nil {
			return hd, err
		}
	}
	h.log.Info("plugin reloaded", logger.Fields(
		logger.FieldPlugin, id,
		logger.FieldVersion, desc.Version,
		"generation", strconv.FormatUint(hd.lc.Generation(), 10),
	))
	return hd, nil
}

// LoadDir discovers and loads every plugin under dir, activating each when
// activate is set. Failures are logged and returned together; the plugins
// that loaded stay loaded.
func (h *Host) LoadDir(ctx context.Context, dir string, activate bool) ([]*Handle, error) {
	descs, errs := Discover(dir)
	var loaded []*Handle
	for _, d := range descs {
		hd, err := h.Load(ctx, d)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		loaded = append(loaded, hd)
		if activate {
			errs = multierr.Append(errs, h.Activate(ctx, d.ID))
		}
	}
	return loaded, errs
}

// Name implements component.Component.
func (h *Host) Name() string { return "plugin-host" }

// Start loads the plugins of Config.Dir and starts the watcher when enabled.
func (h *Host) Start(ctx context.Context) error {
	if h.cfg.Dir != "" {
		loaded, err := h.LoadDir(ctx, h.cfg.Dir, h.cfg.AutoActivate)
		if err != nil {
			h.log.Warn("some plugins failed to load", logger.Fields(logger.FieldError, err.Error()))
		}
		h.log.Info("plugin directory loaded", logger.Fields(
			"dir", h.cfg.Dir,
			"loaded", len(loaded),
		))
	}
	if h.cfg.Watch {
		w, err := NewWatcher(h, h.cfg.Debounce)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		h.mu.Lock()
		h.watcher = w
		h.mu.Unlock()
	}
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	return nil
}

// Stop stops the watcher and unloads every plugin.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	w := h.watcher
	h.watcher = nil
	h.running = false
	h.mu.Unlock()

	var errs error
	if w != nil {
		errs = multierr.Append(errs, w.Stop())
	}
	for _, hd := range h.List() {
		_, err := h.Unload(ctx, hd.ID())
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Health reports the number of plugins per state.
func (h *Host) Health(_ context.Context) observability.Health {
	counts := map[State]int{}
	for _, hd := range h.List() {
		counts[hd.State()]++
	}
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()

	health := observability.Health{
		Name:   h.Name(),
		Status: observability.HealthStatusUp,
		Details: map[string]string{
			"loaded":      strconv.Itoa(counts[StateLoaded]),
			"active":      strconv.Itoa(counts[StateActive]),
			"deactivated": strconv.Itoa(counts[StateDeactivated]),
		},
	}
	if !running {
		health.Status = observability.HealthStatusDown
		health.Message = "not started"
	}
	return health
}
