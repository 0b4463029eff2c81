package plugin

// State is the lifecycle state of a loaded plugin.
type State int

const (
	StateLoaded State = iota
	StateActive
	StateDeactivated
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateActive:
		return "active"
	case StateDeactivated:
		return "deactivated"
	case StateUnloaded:
		return "unloaded"
	}
	return "unknown"
}

// MarshalText renders the state name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// canTransition reports whether from -> to is a legal lifecycle step.
// Unloading is allowed from every live state.
func canTransition(from, to State) bool {
	switch to {
	case StateActive:
		return from == StateLoaded || from == StateDeactivated
	case StateDeactivated:
		return from == StateActive
	case StateUnloaded:
		return from != StateUnloaded
	}
	return false
}
