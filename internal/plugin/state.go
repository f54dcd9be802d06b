package plugin

// State represents the lifecycle state of a plugin.
type State int

// Plugin states.
const (
	// StateUnloaded - Plugin is known but holds no runtime resources.
	StateUnloaded State = iota

	// StateActivating - Plugin is being activated.
	StateActivating

	// StateActive - Plugin is active and running.
	StateActive

	// StateDeactivating - Plugin is being deactivated.
	StateDeactivating

	// StateFailed - Activation failed. Failed plugins hold no runtime
	// resources and may be re-activated like unloaded ones.
	StateFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanActivate reports whether a plugin in this state may start an
// activation. Failed counts as unloaded, it retains only its error.
func (s State) CanActivate() bool {
	return s == StateUnloaded || s == StateFailed
}
