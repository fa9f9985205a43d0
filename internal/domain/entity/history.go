package entity

import "time"

// CaseHistory represents the audit trail of case-level status changes
type CaseHistory struct {
	ID             int64      `json:"id"`
	CaseID         string     `json:"case_id"`
	ActorID        string     `json:"actor_id"`
	PreviousStatus CaseStatus `json:"previous_status"`
	NewStatus      CaseStatus `json:"new_status"`
	PreviousMode   CaseMode   `json:"previous_mode"`
	NewMode        CaseMode   `json:"new_mode"`
	Trigger        string     `json:"trigger"`
	Timestamp      time.Time  `json:"timestamp"`
}
