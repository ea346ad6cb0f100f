package extraction

import "fmt"

// State is the orchestrator's position in the request cycle.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateRetrying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateRetrying:
		return "retrying"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateIdle:       {StateRequesting},
	StateRequesting: {StateRetrying, StateIdle},
	StateRetrying:   {StateRequesting, StateIdle},
}

// transition moves from one state to another. It fails with ErrBusy when
// leaving Idle finds the orchestrator already running.
func (o *Orchestrator) transition(from, to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != from {
		if from == StateIdle {
			return ErrBusy
		}
		return fmt.Errorf("state transition %s -> %s from %s", from, to, o.state)
	}
	for _, next := range transitions[from] {
		if next == to {
			o.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid state transition %s -> %s", from, to)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}
