package entity

import "time"

// RevisionEntry is an immutable record in a track's revision ledger.
// Seq is strictly increasing per (CaseID, Track) and assigned on append.
type RevisionEntry struct {
	ID         int64     `json:"id"`
	CaseID     string    `json:"case_id"`
	Track      TrackType `json:"track"`
	Seq        int64     `json:"seq"`
	Kind       EntryKind `json:"kind"`
	Actor      Actor     `json:"actor"`
	Party      Party     `json:"party"`
	RecordedAt time.Time `json:"recorded_at"`

	// Claim content (send/revise)
	Amount        *float64      `json:"amount,omitempty"`
	Days          *int          `json:"days,omitempty"`
	Method        string        `json:"method,omitempty"`
	ExtensionType string        `json:"extension_type,omitempty"`
	Justification string        `json:"justification,omitempty"`
	Signer        *Signer       `json:"signer,omitempty"`
	Grunnlag      *GrunnlagData `json:"grunnlag,omitempty"`

	// Response content (response)
	Result             OwnerResult `json:"result,omitempty"`
	RespondedToVersion int         `json:"responded_to_version"`
	ApprovedValue      *float64    `json:"approved_value,omitempty"`
	SubsidiaryValue    *float64    `json:"subsidiary_value,omitempty"`

	Comment string         `json:"comment,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Track is the projected current state of one claim track
type Track struct {
	Type                    TrackType   `json:"type"`
	Status                  TrackStatus `json:"status"`
	Initiated               bool        `json:"initiated"`
	RevisionCount           int         `json:"revision_count"`
	LastRevisionRespondedTo int         `json:"last_revision_responded_to"`
	OwnerResult             OwnerResult `json:"owner_result,omitempty"`
	SubsidiaryApprovedValue *float64    `json:"subsidiary_approved_value,omitempty"`
	ApprovedValue           *float64    `json:"approved_value,omitempty"`
	ClaimedAmount           *float64    `json:"claimed_amount,omitempty"`
	ClaimedDays             *int        `json:"claimed_days,omitempty"`
	LastSeq                 int64       `json:"last_seq"`
}

// CanBeAccepted reports whether the contractor may accept the owner's position
func (t Track) CanBeAccepted() bool {
	return t.Initiated && t.OwnerResult.IsRecorded() && t.Status != TrackStatusLocked
}
