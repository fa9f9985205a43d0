package entity

import "time"

// DraftResponseData is a BH role's unsubmitted response to one track.
// At most one draft exists per (CaseID, Track).
type DraftResponseData struct {
	CaseID             string         `json:"case_id"`
	Track              TrackType      `json:"track"`
	Author             Actor          `json:"author"`
	Result             OwnerResult    `json:"resultat"`
	Belop              *float64       `json:"belop,omitempty"`
	Dager              *int           `json:"dager,omitempty"`
	SubsidiaryValue    *float64       `json:"subsidiaer_verdi,omitempty"`
	Begrunnelse        string         `json:"begrunnelse,omitempty"`
	RespondedToVersion int            `json:"responded_to_version"`
	FormData           map[string]any `json:"form_data,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ApprovalStep is one position in a package's approval chain.
// Array index in the chain is the step's position.
type ApprovalStep struct {
	Role       ApprovalRole `json:"role"`
	Status     StepStatus   `json:"status"`
	ApprovedBy string       `json:"approved_by,omitempty"`
	ApprovedAt *time.Time   `json:"approved_at,omitempty"`
	Comment    string       `json:"comment,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
}

// BhResponsPakke bundles up to three track drafts into one approvable unit.
// Steps are derived from SamletBelop at submission and never rebuilt.
type BhResponsPakke struct {
	ID            string              `json:"id"`
	CaseID        string              `json:"case_id"`
	Drafts        []DraftResponseData `json:"drafts"`
	VederlagBelop float64             `json:"vederlag_belop"`
	FristDager    int                 `json:"frist_dager"`
	Dagmulktsats  float64             `json:"dagmulktsats"`
	FristBelop    float64             `json:"frist_belop"`
	SamletBelop   float64             `json:"samlet_belop"`
	Steps         []ApprovalStep      `json:"steps"`
	Status        PakkeStatus         `json:"status"`
	SubmittedBy   Actor               `json:"submitted_by"`
	SubmittedAt   time.Time           `json:"submitted_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	DocumentPath  string              `json:"document_path,omitempty"`
	Version       int                 `json:"version"`
}

// Draft returns the package's snapshot for a track, if present
func (p *BhResponsPakke) Draft(track TrackType) (DraftResponseData, bool) {
	for _, d := range p.Drafts {
		if d.Track == track {
			return d, true
		}
	}
	return DraftResponseData{}, false
}
