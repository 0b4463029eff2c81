package plugin

import (
	"slices"
	"sync"
	"time"

	"github.com/kbukum/switchyard/provider"
)

// Handle is the host's record of one loaded plugin.
type Handle struct {
	desc Descriptor
	lc   *LoadContext
	rt   runtime

	mu            sync.RWMutex
	state         State
	registrations []provider.RegistrationID
	tracked       map[trackKey]provider.RegistrationID
	loadedAt      time.Time
	activatedAt   time.Time
}

type trackKey struct {
	contract   provider.Contract
	providerID string
}

func newHandle(desc Descriptor, lc *LoadContext, rt runtime) *Handle {
	return &Handle{
		desc:     desc,
		lc:       lc,
		rt:       rt,
		state:    StateLoaded,
		tracked:  make(map[trackKey]provider.RegistrationID),
		loadedAt: time.Now(),
	}
}

func (h *Handle) ID() string                { return h.desc.ID }
func (h *Handle) Descriptor() Descriptor    { return h.desc }
func (h *Handle) LoadContext() *LoadContext { return h.lc }

func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	if s == StateActive {
		h.activatedAt = time.Now()
	}
	h.mu.Unlock()
}

// Registrations returns the provider registrations owned by the plugin.
func (h *Handle) Registrations() []provider.RegistrationID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.registrations)
}

// track records a registration made by the plugin, indexed by contract
// and provider id so a later activation can re-enable it.
func (h *Handle) track(contract provider.Contract, providerID string, id provider.RegistrationID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registrations = append(h.registrations, id)
	h.tracked[trackKey{contract, providerID}] = id
}

func (h *Handle) trackedRegistration(contract provider.Contract, providerID string) (provider.RegistrationID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.tracked[trackKey{contract, providerID}]
	return id, ok
}

func (h *Handle) untrack(id provider.RegistrationID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registrations = slices.DeleteFunc(h.registrations, func(x provider.RegistrationID) bool { return x == id })
	for k, v := range h.tracked {
		if v == id {
			delete(h.tracked, k)
		}
	}
}

// takeRegistrations clears and returns the owned registrations.
func (h *Handle) takeRegistrations() []provider.RegistrationID {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := h.registrations
	h.registrations = nil
	h.tracked = make(map[trackKey]provider.RegistrationID)
	return ids
}

// Info is a serializable snapshot of a Handle.
type Info struct {
	ID            string    `json:"id"`
	Version       string    `json:"version"`
	Name          string    `json:"name"`
	State         State     `json:"state"`
	Runtime       string    `json:"runtime"`
	Dir           string    `json:"dir,omitempty"`
	LoadContext   string    `json:"load_context"`
	Generation    uint64    `json:"generation"`
	Disposed      bool      `json:"disposed"`
	Assets        []string  `json:"assets"`
	Registrations int       `json:"registrations"`
	Capabilities  []string  `json:"capabilities,omitempty"`
	LoadedAt      time.Time `json:"loaded_at"`
	ActivatedAt   time.Time `json:"activated_at,omitzero"`
}

// Info returns a snapshot of the handle.
func (h *Handle) Info() Info {
	h.mu.RLock()
	state, regs, activatedAt := h.state, len(h.registrations), h.activatedAt
	h.mu.RUnlock()
	return Info{
		ID:            h.desc.ID,
		Version:       h.desc.Version,
		Name:          h.desc.DisplayName(),
		State:         state,
		Runtime:       h.desc.Runtime(),
		Dir:           h.desc.BaseDir(),
		LoadContext:   h.lc.ID(),
		Generation:    h.lc.Generation(),
		Disposed:      h.lc.Disposed(),
		Assets:        h.lc.Assets(),
		Registrations: regs,
		Capabilities:  slices.Clone(h.desc.Capabilities),
		LoadedAt:      h.loadedAt,
		ActivatedAt:   activatedAt,
	}
}
