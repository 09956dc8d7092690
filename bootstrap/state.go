package bootstrap

import "fmt"

// State is a step in the application lifecycle.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateInitialized
	StateRunning
	StateStarted
	StateStopping
	StateStopped
)

var stateNames = [...]string{
	StateCreated:      "CREATED",
	StateInitializing: "INITIALIZING",
	StateInitialized:  "INITIALIZED",
	StateRunning:      "RUNNING",
	StateStarted:      "STARTED",
	StateStopping:     "STOPPING",
	StateStopped:      "STOPPED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StateError reports an operation attempted in the wrong lifecycle state.
type StateError struct {
	Op       string
	State    State
	Expected State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("bootstrap: cannot %s in state %s (expected %s)", e.Op, e.State, e.Expected)
}
