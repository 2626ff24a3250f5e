package crisis

import "fmt"

// DefaultEscalationThreshold is the number of consecutive general-crisis utterances
// that corroborate each other enough to activate the emergency protocol.
const DefaultEscalationThreshold = 2

// Decision is the escalation outcome for one utterance.
type Decision string

const (
	DecisionNoOp              Decision = "noop"
	DecisionActivateEmergency Decision = "activate_emergency"
)

// Policy carries the tunable escalation knobs.
type Policy struct {
	EscalationThreshold int
}

// DefaultPolicy returns the product defaults.
func DefaultPolicy() Policy {
	return Policy{EscalationThreshold: DefaultEscalationThreshold}
}

func (p Policy) threshold() int {
	if p.EscalationThreshold < 1 {
		return DefaultEscalationThreshold
	}
	return p.EscalationThreshold
}

// State is the per-conversation escalation state.
type State struct {
	ConsecutiveGeneralCrisisCount int    `json:"consecutive_general_crisis_count"`
	EmergencyActive               bool   `json:"emergency_active"`
	TriggerReason                 string `json:"trigger_reason,omitempty"`
}

// Deactivate returns the idle state used after a cancel or a completed session.
func (s State) Deactivate() State {
	return State{}
}

// Transition consumes one verdict and returns the next state and decision.
// It is pure: the input state is never modified.
func Transition(state State, verdict Verdict, rawUtterance string, policy Policy) (State, Decision) {
	if state.EmergencyActive {
		return state, DecisionNoOp
	}

	next := state
	switch verdict.Tier {
	case TierHighPriority:
		next.ConsecutiveGeneralCrisisCount = 0
		next.EmergencyActive = true
		next.TriggerReason = fmt.Sprintf("Direct statement: \"%s\"", rawUtterance)
		return next, DecisionActivateEmergency

	case TierGeneralCrisis:
		next.ConsecutiveGeneralCrisisCount++
		if next.ConsecutiveGeneralCrisisCount >= policy.threshold() {
			next.EmergencyActive = true
			next.TriggerReason = fmt.Sprintf("Multiple (%d) crisis messages. Last: \"%s\"",
				next.ConsecutiveGeneralCrisisCount, rawUtterance)
			return next, DecisionActivateEmergency
		}
		return next, DecisionNoOp

	default:
		next.ConsecutiveGeneralCrisisCount = 0
		return next, DecisionNoOp
	}
}
