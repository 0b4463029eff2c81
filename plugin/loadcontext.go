package plugin

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/switchyard/errors"
	"github.com/kbukum/switchyard/logger"
)

// Resolver is the host fallback consulted last by LoadContext.Resolve.
type Resolver func(name string) (any, bool)

// LoadContext is the isolation boundary of one loaded plugin: an arena of
// the bundle bytes read at load time and the components the plugin defines.
//
// Dispose releases the arena as a unit. Afterwards every call fails with
// Disposed and every Ref handed out reports Disposed, so nothing in the
// host keeps plugin memory reachable.
type LoadContext struct {
	id       string
	pluginID string
	dir      string
	shared   *Shared
	fallback Resolver

	generation atomic.Uint64
	disposed   atomic.Bool

	mu         sync.RWMutex
	bundles    map[string][]byte
	components map[string]any
}

func newLoadContext(pluginID, dir string, shared *Shared, fallback Resolver) *LoadContext {
	if shared == nil {
		shared = NewShared()
	}
	lc := &LoadContext{
		id:         uuid.NewString(),
		pluginID:   pluginID,
		dir:        dir,
		shared:     shared,
		fallback:   fallback,
		bundles:    make(map[string][]byte),
		components: make(map[string]any),
	}
	lc.generation.Store(1)
	return lc
}

func (c *LoadContext) ID() string         { return c.id }
func (c *LoadContext) PluginID() string   { return c.pluginID }
func (c *LoadContext) Dir() string        { return c.dir }
func (c *LoadContext) Generation() uint64 { return c.generation.Load() }
func (c *LoadContext) Disposed() bool     { return c.disposed.Load() }

func (c *LoadContext) errDisposed() error {
	return errors.Disposed(c.pluginID).WithDetail("load_context", c.id)
}

func (c *LoadContext) addBundle(name string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed.Load() {
		return c.errDisposed()
	}
	if _, dup := c.bundles[name]; dup {
		return fmt.Errorf("bundle file %q is listed twice", name)
	}
	c.bundles[name] = data
	return nil
}

// Define stores a plugin-defined component under name.
func (c *LoadContext) Define(name string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed.Load() {
		return c.errDisposed()
	}
	c.components[name] = v
	return nil
}

// Asset returns a copy of the bundle file named name.
func (c *LoadContext) Asset(name string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.disposed.Load() {
		return nil, c.errDisposed()
	}
	data, ok := c.bundles[name]
	if !ok {
		return nil, errors.NotFound("asset", name).WithDetail("plugin", c.pluginID)
	}
	return slices.Clone(data), nil
}

// Assets returns the names of the bundle files, sorted.
func (c *LoadContext) Assets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.bundles))
	for n := range c.bundles {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Size returns the number of bytes held by the arena.
func (c *LoadContext) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, b := range c.bundles {
		n += len(b)
	}
	return n
}

// Resolve looks name up in order: the shared allow-list (always the host's
// instance), components defined by the plugin, bundle files, a file of that
// name in the plugin directory, then the host fallback.
func (c *LoadContext) Resolve(name string) (any, error) {
	if c.disposed.Load() {
		return nil, c.errDisposed()
	}

	if c.shared.Allowed(name) {
		if v, ok := c.shared.Instance(name); ok {
			return v, nil
		}
		logger.Get("plugin").Warn("shared name has no host instance", logger.Fields(
			logger.FieldCode, string(errors.WarnCodeTypeResolution),
			logger.FieldPlugin, c.pluginID,
			"name", name,
		))
		return nil, errors.New(errors.WarnCodeTypeResolution,
			fmt.Sprintf("Shared name %q has no host instance.", name), http.StatusInternalServerError).
			WithDetail("plugin", c.pluginID)
	}

	c.mu.RLock()
	if v, ok := c.components[name]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	if data, ok := c.bundles[name]; ok {
		c.mu.RUnlock()
		return slices.Clone(data), nil
	}
	c.mu.RUnlock()

	if c.dir != "" && name == filepath.Base(name) {
		if data, err := os.ReadFile(filepath.Join(c.dir, name)); err == nil {
			return data, nil
		}
	}

	if c.fallback != nil {
		if v, ok := c.fallback(name); ok {
			return v, nil
		}
	}
	return nil, errors.NotFound("component", name).WithDetail("plugin", c.pluginID)
}

// Acquire resolves name and returns a Ref bound to the current generation.
func (c *LoadContext) Acquire(name string) (*Ref, error) {
	gen := c.generation.Load()
	if _, err := c.Resolve(name); err != nil {
		return nil, err
	}
	return &Ref{lc: c, name: name, gen: gen}, nil
}

// Dispose releases the arena. It returns false when the context was
// already disposed.
func (c *LoadContext) Dispose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.disposed.CompareAndSwap(false, true) {
		return false
	}
	c.generation.Add(1)
	c.bundles = nil
	c.components = nil
	c.fallback = nil
	return true
}

// Ref is a generation-checked handle to an entry of a LoadContext. It does
// not hold the value itself, so it never keeps a disposed arena alive.
type Ref struct {
	lc   *LoadContext
	name string
	gen  uint64
}

func (r *Ref) Name() string { return r.name }

// Valid reports whether the context is live and still at the Ref's generation.
func (r *Ref) Valid() bool {
	return !r.lc.disposed.Load() && r.lc.generation.Load() == r.gen
}

// Value resolves the entry again. It fails with Disposed once the context
// has been disposed.
func (r *Ref) Value() (any, error) {
	if !r.Valid() {
		return nil, r.lc.errDisposed()
	}
	return r.lc.Resolve(r.name)
}
