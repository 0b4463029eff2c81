package plugin

import (
	"slices"
	"sync"
)

// Shared is the allow-list of names that every load context resolves to
// the host's own instance rather than a plugin-local copy. Contracts that
// plugins implement and host services they call belong here, so a value
// crossing the boundary has one identity on both sides.
type Shared struct {
	mu        sync.RWMutex
	allowed   map[string]struct{}
	instances map[string]any
}

// NewShared creates an allow-list containing names.
func NewShared(names ...string) *Shared {
	s := &Shared{
		allowed:   make(map[string]struct{}),
		instances: make(map[string]any),
	}
	s.Allow(names...)
	return s
}

// Allow adds names to the allow-list.
func (s *Shared) Allow(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.allowed[n] = struct{}{}
	}
}

// Provide sets the host instance of name and allows it.
func (s *Shared) Provide(name string, instance any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[name] = struct{}{}
	s.instances[name] = instance
}

func (s *Shared) Allowed(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.allowed[name]
	return ok
}

// Instance returns the host instance of name.
func (s *Shared) Instance(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.instances[name]
	return v, ok
}

// Names returns the allow-list, sorted.
func (s *Shared) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.allowed))
	for n := range s.allowed {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
