package session

import "fmt"

// State is one stage of a room session's lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateGreeting     State = "greeting"
	StateListening    State = "listening"
	StateReasoning    State = "reasoning"
	StateToolDispatch State = "tool_dispatch"
	StateResponding   State = "responding"
)

// transitions encodes the legal lifecycle:
// disconnected → connected → greeting → listening → reasoning →
// (tool_dispatch ↔ reasoning)* → responding → listening, with disconnected
// reachable from anywhere as the terminal state.
var transitions = map[State][]State{
	StateDisconnected: {StateConnected},
	StateConnected:    {StateGreeting, StateDisconnected},
	StateGreeting:     {StateListening, StateDisconnected},
	StateListening:    {StateReasoning, StateDisconnected},
	StateReasoning:    {StateToolDispatch, StateResponding, StateDisconnected},
	StateToolDispatch: {StateReasoning, StateDisconnected},
	StateResponding:   {StateListening, StateDisconnected},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrBadTransition reports an illegal state transition.
type ErrBadTransition struct {
	From, To State
}

func (e *ErrBadTransition) Error() string {
	return fmt.Sprintf("session: illegal transition %s -> %s", e.From, e.To)
}
