package plugin

import (
	"context"
	"slices"
	"sync"

	"github.com/kbukum/switchyard/errors"
)

// Plugin is the entry point of an in-process plugin.
//
// Activate may be called again after Deactivate. Providers registered
// through the Context on an earlier activation are re-enabled instead of
// registered twice.
type Plugin interface {
	Activate(ctx context.Context, pc *Context) error
	Deactivate(ctx context.Context) error
}

// Factory instantiates a plugin inside its load context.
type Factory func(lc *LoadContext) (Plugin, error)

// Catalog is the startup table of in-process entry points. Descriptors
// select an entry by name; nothing is looked up by reflection.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Factory)}
}

// Register adds an entry point.
func (c *Catalog) Register(entry string, f Factory) error {
	if entry == "" || f == nil {
		return errors.InvalidInput("entry", "entry name and factory are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[entry]; exists {
		return errors.AlreadyExists("entry point", entry)
	}
	c.entries[entry] = f
	return nil
}

// MustRegister is Register for init-time tables. It panics on error.
func (c *Catalog) MustRegister(entry string, f Factory) {
	if err := c.Register(entry, f); err != nil {
		panic(err)
	}
}

func (c *Catalog) Lookup(entry string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.entries[entry]
	return f, ok
}

// Entries returns the registered names, sorted.
func (c *Catalog) Entries() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
