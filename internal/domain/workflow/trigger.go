package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmitVarsel   Trigger = "SUBMIT_VARSEL"
	TriggerSubmitKoe      Trigger = "SUBMIT_KOE"
	TriggerSubmitSvar     Trigger = "SUBMIT_SVAR"
	TriggerSubmitRevision Trigger = "SUBMIT_REVISION"
	TriggerAccept         Trigger = "ACCEPT"

	TriggerApproveStep Trigger = "APPROVE_STEP"
	TriggerRejectStep  Trigger = "REJECT_STEP"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
