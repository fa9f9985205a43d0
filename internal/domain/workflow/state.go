package workflow

import "github.com/garyjia/koe-workflow/internal/domain/entity"

// State represents a lifecycle state handled by a state machine.
// Case phases and package statuses share one namespace so a single builder type serves both.
type State string

const (
	// Case phases. The state names the submission the case is waiting for.
	StateVarsel     State = "VARSEL"
	StateKoe        State = "KOE"
	StateSvar       State = "SVAR"
	StateRevidering State = "REVIDERING"
	StateFerdig     State = "FERDIG"

	// Response package lifecycle
	StatePakkePending  State = "PAKKE_PENDING"
	StatePakkeApproved State = "PAKKE_APPROVED"
	StatePakkeRejected State = "PAKKE_REJECTED"
)

var validStates = map[State]bool{
	StateVarsel:        true,
	StateKoe:           true,
	StateSvar:          true,
	StateRevidering:    true,
	StateFerdig:        true,
	StatePakkePending:  true,
	StatePakkeApproved: true,
	StatePakkeRejected: true,
}

var terminalStates = map[State]bool{
	StateFerdig:        true,
	StatePakkeApproved: true,
	StatePakkeRejected: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

var modeStates = map[entity.CaseMode]State{
	entity.ModeVarsel:     StateVarsel,
	entity.ModeKoe:        StateKoe,
	entity.ModeUnset:      StateKoe,
	entity.ModeSvar:       StateSvar,
	entity.ModeRevidering: StateRevidering,
	entity.ModeFerdig:     StateFerdig,
}

// StateForMode maps a case mode to its machine state. An unset mode behaves as KOE.
func StateForMode(mode entity.CaseMode) (State, error) {
	s, ok := modeStates[mode]
	if !ok {
		return "", ErrInvalidState
	}
	return s, nil
}

// ModeForState maps a case machine state back to the case mode
func ModeForState(s State) entity.CaseMode {
	switch s {
	case StateVarsel:
		return entity.ModeVarsel
	case StateKoe:
		return entity.ModeKoe
	case StateSvar:
		return entity.ModeSvar
	case StateRevidering:
		return entity.ModeRevidering
	case StateFerdig:
		return entity.ModeFerdig
	}
	return entity.ModeUnset
}

// StateForPakke maps a package status to its machine state
func StateForPakke(status entity.PakkeStatus) (State, error) {
	switch status {
	case entity.PakkePending:
		return StatePakkePending, nil
	case entity.PakkeApproved:
		return StatePakkeApproved, nil
	case entity.PakkeRejected:
		return StatePakkeRejected, nil
	}
	return "", ErrInvalidState
}

// PakkeStatusForState maps a package machine state back to the package status
func PakkeStatusForState(s State) entity.PakkeStatus {
	switch s {
	case StatePakkeApproved:
		return entity.PakkeApproved
	case StatePakkeRejected:
		return entity.PakkeRejected
	}
	return entity.PakkePending
}
