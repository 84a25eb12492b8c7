package escrow

import (
	"fmt"
	"strings"
)

// State is the on-chain escrow status code.
type State uint8

const (
	StatePending   State = 0
	StateAccepted  State = 1
	StateInTransit State = 2
	StateDelivered State = 3
	StateCompleted State = 4
	StateDisputed  State = 5
	StateCancelled State = 6
)

var stateLabels = map[State]string{
	StatePending:   "Pending",
	StateAccepted:  "Accepted",
	StateInTransit: "In Transit",
	StateDelivered: "Delivered",
	StateCompleted: "Completed",
	StateDisputed:  "Disputed",
	StateCancelled: "Cancelled",
}

var transitions = map[State][]State{
	StatePending:   {StateAccepted, StateDisputed, StateCancelled},
	StateAccepted:  {StateInTransit, StateDelivered, StateDisputed, StateCancelled},
	StateInTransit: {StateInTransit, StateDelivered, StateDisputed},
	StateDelivered: {StateCompleted, StateDisputed},
	StateDisputed:  {},
	StateCompleted: {},
	StateCancelled: {},
}

func (s State) String() string {
	if label, ok := stateLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// Valid reports whether s is a known status code.
func (s State) Valid() bool {
	_, ok := stateLabels[s]
	return ok
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// CanTransition reports whether to is a legal next state. InTransit may repeat
// since every tracking update in transit is recorded as a transition.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStates lists the legal successors of s.
func (s State) NextStates() []State {
	return append([]State(nil), transitions[s]...)
}

// ParseState accepts a numeric code or a label.
func ParseState(v string) (State, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(v), " ", ""))
	for state, label := range stateLabels {
		if norm == strings.ToLower(strings.ReplaceAll(label, " ", "")) || norm == fmt.Sprint(uint8(state)) {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown escrow state %q", v)
}

// TrackingStatusDelivered is the tracking status that marks delivery.
const TrackingStatusDelivered = "delivered"

// StateAfterTracking returns the state an escrow moves to after a tracking update.
func StateAfterTracking(status string) State {
	if strings.EqualFold(strings.TrimSpace(status), TrackingStatusDelivered) {
		return StateDelivered
	}
	return StateInTransit
}
