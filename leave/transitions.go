package leave

import "github.com/warp/leave-engine/generic"

// transitions lists every legal edge. Anything absent is refused.
var transitions = map[State][]State{
	StatePending:   {StateApproved, StateRejected, StateCancelled, StateModified},
	StateApproved:  {StateModified},
	StateModified:  {StateApproved, StateRejected, StateModified},
	StateRejected:  nil,
	StateCancelled: nil,
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Operations, as named in transition errors.
const (
	OpApprove     = "approve"
	OpReject      = "reject"
	OpCancel      = "cancel"
	OpModify      = "modify"
	OpRefund      = "refund"
	OpSetDiscount = "set discount"
)

func transitionError(r *Request, op string) error {
	return &generic.TransitionError{RequestID: r.ID, From: string(r.State), Operation: op}
}

// checkTransition validates the move r.State -> to for the named operation.
func checkTransition(r *Request, to State, op string) error {
	if !CanTransition(r.State, to) {
		return transitionError(r, op)
	}
	return nil
}
