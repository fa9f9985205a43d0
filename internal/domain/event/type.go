package event

// Type identifies the type of domain event
type Type string

const (
	TypeCaseCreated       Type = "case.created"
	TypeCaseStatusChanged Type = "case.status_changed"
	TypeRevisionAppended  Type = "revision.appended"
	TypeResponseReleased  Type = "track.response_released"
	TypePakkeSubmitted    Type = "pakke.submitted"
	TypePakkeStepApproved Type = "pakke.step_approved"
	TypePakkeApproved     Type = "pakke.approved"
	TypePakkeRejected     Type = "pakke.rejected"
	TypePakkeDiscarded    Type = "pakke.discarded"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeCaseCreated,
		TypeCaseStatusChanged,
		TypeRevisionAppended,
		TypeResponseReleased,
		TypePakkeSubmitted,
		TypePakkeStepApproved,
		TypePakkeApproved,
		TypePakkeRejected,
		TypePakkeDiscarded:
		return true
	default:
		return false
	}
}
