package provider

// ChangeKind is the kind of a registry mutation.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
	ChangeUpdated
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// ChangeEvent describes one registry mutation. For ChangeUpdated, Previous
// holds the replaced record.
type ChangeEvent struct {
	Kind         ChangeKind
	Contract     Contract
	Registration Registration
	Previous     Registration
}

// ChangeHandler receives change events. Handlers run synchronously inside the
// mutating call and must not mutate the registry.
type ChangeHandler func(ChangeEvent)
