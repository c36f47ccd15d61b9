package domain

// ConversationState identifies the phase a prospect's conversation is in.
type ConversationState string

const (
	StateInitial               ConversationState = "INITIAL"
	StateGreeting              ConversationState = "GREETING"
	StateQualification         ConversationState = "QUALIFICATION"
	StateInterestValidation    ConversationState = "INTEREST_VALIDATION"
	StateAppointmentScheduling ConversationState = "APPOINTMENT_SCHEDULING"
	StateClosing               ConversationState = "CLOSING"
	StateClosed                ConversationState = "CLOSED"
	StateGeneralInquiry        ConversationState = "GENERAL_INQUIRY"
	StateOperatorTakeover      ConversationState = "OPERATOR_TAKEOVER"
)

// AllStates lists every valid conversation state.
var AllStates = []ConversationState{
	StateInitial,
	StateGreeting,
	StateQualification,
	StateInterestValidation,
	StateAppointmentScheduling,
	StateClosing,
	StateClosed,
	StateGeneralInquiry,
	StateOperatorTakeover,
}

// IsValid reports whether s is a member of the enumerated state set.
func (s ConversationState) IsValid() bool {
	for _, v := range AllStates {
		if s == v {
			return true
		}
	}
	return false
}

// NormalizeState collapses unknown state values to INITIAL. Records written
// by older versions of the bot may carry states that no longer exist.
func NormalizeState(s ConversationState) ConversationState {
	if s.IsValid() {
		return s
	}
	return StateInitial
}

// allowedTransitions is the edge set of the conversation state machine.
// Edges not listed are forbidden. OPERATOR_TAKEOVER is reachable from any
// state and releases back to the remembered previous state, so it is
// handled separately in AllowedTransition.
var allowedTransitions = map[ConversationState][]ConversationState{
	StateInitial:               {StateGreeting},
	StateGreeting:              {StateQualification},
	StateQualification:         {StateInterestValidation, StateGeneralInquiry},
	StateInterestValidation:    {StateAppointmentScheduling, StateGeneralInquiry},
	StateAppointmentScheduling: {StateClosing},
	StateClosing:               {StateClosed, StateGeneralInquiry},
	StateGeneralInquiry:        {StateAppointmentScheduling},
	StateClosed:                {StateInitial},
}

// AllowedTransition reports whether the state machine permits moving from
// one state to another. Staying in place is always allowed; takeover may
// start from any state and release to any state.
func AllowedTransition(from, to ConversationState) bool {
	if from == to {
		return true
	}
	if to == StateOperatorTakeover || from == StateOperatorTakeover {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
