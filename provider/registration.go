package provider

import (
	"cmp"
	"fmt"
	"slices"
)

// RegistrationID is the token returned by Register.
type RegistrationID string

// Registration binds a provider to a contract. It is a value; soft-disabling
// a provider replaces the record instead of mutating it.
type Registration struct {
	id       RegistrationID
	contract Contract
	provider any
	caps     Capabilities
	active   bool
}

func (r Registration) ID() RegistrationID         { return r.id }
func (r Registration) Contract() Contract         { return r.contract }
func (r Registration) Provider() any              { return r.provider }
func (r Registration) Capabilities() Capabilities { return r.caps }
func (r Registration) Active() bool               { return r.active }
func (r Registration) ProviderID() string         { return r.caps.providerID }

// Identity returns the tuple used for equality, ordering and cache keys.
func (r Registration) Identity() Identity {
	return Identity{
		Contract:     r.contract,
		ProviderID:   r.caps.providerID,
		Priority:     r.caps.priority,
		RegisteredAt: r.caps.registeredAt,
	}
}

func (r Registration) withActive(active bool) Registration {
	r.active = active
	return r
}

// Identity is (contract, providerID, priority, registeredAt).
type Identity struct {
	Contract     Contract
	ProviderID   string
	Priority     Priority
	RegisteredAt int64
}

func (i Identity) String() string {
	return fmt.Sprintf("%s/%s@%s#%d", i.Contract, i.ProviderID, i.Priority, i.RegisteredAt)
}

// comparePriority orders by priority desc, registeredAt asc, providerID asc.
func comparePriority(a, b Registration) int {
	if c := cmp.Compare(b.caps.priority, a.caps.priority); c != 0 {
		return c
	}
	if c := cmp.Compare(a.caps.registeredAt, b.caps.registeredAt); c != 0 {
		return c
	}
	return cmp.Compare(a.caps.providerID, b.caps.providerID)
}

// sortByPriority returns regs in selection order without touching the input.
func sortByPriority(regs []Registration) []Registration {
	out := slices.Clone(regs)
	slices.SortStableFunc(out, comparePriority)
	return out
}
