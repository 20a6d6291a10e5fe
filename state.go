package upload

// State is the lifecycle state of an upload task. Exactly one Task owns
// one file transfer; transitions are serialized by the task's mutex and
// no transition is valid once a terminal state is reached.
type State int

const (
	// StateInit is the state of a freshly constructed task that has not
	// been resumed yet.
	StateInit State = iota

	// StateInProgress means the task is launching and tracking part
	// uploads, or finalizing.
	StateInProgress

	// StatePaused means no new parts launch and in-flight parts were
	// aborted; Resume picks the transfer back up.
	StatePaused

	// StateCancelled is terminal. The remote session and the ledger
	// entry are left in place.
	StateCancelled

	// StateCompleted is terminal. The object is stored and the ledger
	// entry removed.
	StateCompleted
)

// Terminal reports whether no further transitions are valid from s.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateCompleted
}

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateInProgress:
		return "IN_PROGRESS"
	case StatePaused:
		return "PAUSED"
	case StateCancelled:
		return "CANCELLED"
	case StateCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}
