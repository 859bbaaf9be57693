package session

// State of the session state machine
type State int

const (
	AwaitCommand State = iota // Waiting for the next command frame
	Dispatch                  // Executing a command handler
	Terminated                // Peer ended the session
	Aborted                   // Session failed
)

// String returns string representation of State
func (s State) String() string {
	switch s {
	case AwaitCommand:
		return "AwaitCommand"
	case Dispatch:
		return "Dispatch"
	case Terminated:
		return "Terminated"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Final reports whether no further transition can happen
func (s State) Final() bool {
	return s == Terminated || s == Aborted
}

// TransitionFunc observes state changes. cmd is the command being handled,
// Unknown while no command is in flight.
type TransitionFunc func(from, to State, cmd Command)
