package conversation

import "fmt"

// Phase is the coarse stage of a conversation. Transitions between phases
// are governed by a fixed table; see CanTransition.
type Phase string

const (
	PhaseInitial   Phase = "INITIAL"
	PhaseBrowsing  Phase = "BROWSING"
	PhaseCart      Phase = "CART"
	PhaseCheckout  Phase = "CHECKOUT"
	PhasePayment   Phase = "PAYMENT"
	PhaseCompleted Phase = "COMPLETED"
	PhaseAbandoned Phase = "ABANDONED"
)

// transitions is the fixed phase table. COMPLETED and ABANDONED are not
// structural dead ends: both route back to the entry phases so a finished
// or dropped conversation can start over.
var transitions = map[Phase][]Phase{
	PhaseInitial:   {PhaseBrowsing, PhaseAbandoned},
	PhaseBrowsing:  {PhaseCart, PhaseInitial, PhaseAbandoned},
	PhaseCart:      {PhaseCheckout, PhaseBrowsing, PhaseAbandoned},
	PhaseCheckout:  {PhasePayment, PhaseCart, PhaseAbandoned},
	PhasePayment:   {PhaseCompleted, PhaseCheckout, PhaseAbandoned},
	PhaseCompleted: {PhaseInitial, PhaseBrowsing},
	PhaseAbandoned: {PhaseInitial, PhaseBrowsing},
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	_, ok := transitions[p]
	return ok
}

// IsTerminal reports whether p marks the end of a purchase flow. This is a
// policy flag only; terminal phases still transition back to entry phases.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseAbandoned
}

// CanTransition reports whether the fixed table allows moving from one
// phase to another.
func CanTransition(from, to Phase) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an attempted phase move not present in the
// transition table.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// StateMachine tracks the current phase of one conversation and enforces
// the fixed transition table.
type StateMachine struct {
	current Phase
}

// NewStateMachine creates a state machine starting at the given phase.
// An unknown phase falls back to INITIAL.
func NewStateMachine(start Phase) *StateMachine {
	if !start.Valid() {
		start = PhaseInitial
	}
	return &StateMachine{current: start}
}

// Current returns the current phase.
func (m *StateMachine) Current() Phase {
	return m.current
}

// CanTransitionTo reports whether moving to the given phase is legal from
// the current phase.
func (m *StateMachine) CanTransitionTo(to Phase) bool {
	return CanTransition(m.current, to)
}

// TransitionTo moves to the given phase. On an illegal move it returns an
// InvalidTransitionError and leaves the current phase unchanged.
func (m *StateMachine) TransitionTo(to Phase) error {
	if !CanTransition(m.current, to) {
		return &InvalidTransitionError{From: m.current, To: to}
	}
	m.current = to
	return nil
}
