package entity

import "time"

// Case is the registry record of a change-order case.
// Status and Mode are derived by the transition service and persisted for display.
type Case struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	TopicGUID    string     `json:"topic_guid,omitempty"`
	Status       CaseStatus `json:"status"`
	Mode         CaseMode   `json:"mode"`
	Dagmulktsats float64    `json:"dagmulktsats"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Actor identifies who performed an action
type Actor struct {
	ID    string       `json:"id"`
	Name  string       `json:"name,omitempty"`
	Email string       `json:"email,omitempty"`
	Role  ApprovalRole `json:"role,omitempty"`
	Party Party        `json:"party,omitempty"`
}

// SameIdentity reports whether two actors are the same person
func (a Actor) SameIdentity(other Actor) bool {
	return a.ID != "" && a.ID == other.ID
}

// Signer is a verified signer identity attached to a claim
type Signer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Contact is a person registered on a case who may sign claims
type Contact struct {
	CaseID string `json:"case_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Party  Party  `json:"party"`
}

// GrunnlagData is the liability-basis notice (varsel) form content
type GrunnlagData struct {
	DiscoveryDate string `json:"oppdaget_dato"`
	MainCategory  string `json:"hovedkategori"`
	SubCategory   string `json:"underkategori,omitempty"`
	Description   string `json:"beskrivelse,omitempty"`
}

// VederlagKrav is the payment part of a claim revision
type VederlagKrav struct {
	Claimed       bool     `json:"krevd"`
	Method        string   `json:"metode,omitempty"`
	Amount        *float64 `json:"belop,omitempty"`
	Justification string   `json:"begrunnelse,omitempty"`
}

// FristKrav is the time-extension part of a claim revision
type FristKrav struct {
	Claimed       bool   `json:"krevd"`
	Type          string `json:"type,omitempty"`
	Days          *int   `json:"dager,omitempty"`
	Justification string `json:"begrunnelse,omitempty"`
}

// KoeRevision is one contractor claim revision covering the Vederlag and Frist tracks,
// together with the BH result codes recorded against it.
type KoeRevision struct {
	Number         int          `json:"nummer"`
	Vederlag       VederlagKrav `json:"vederlag"`
	Frist          FristKrav    `json:"frist"`
	Signer         *Signer      `json:"signer,omitempty"`
	VederlagResult OwnerResult  `json:"bh_svar_vederlag,omitempty"`
	FristResult    OwnerResult  `json:"bh_svar_frist,omitempty"`
}

// TrackResponse is the BH response to one track
type TrackResponse struct {
	Track           TrackType   `json:"track"`
	Result          OwnerResult `json:"resultat"`
	ApprovedAmount  *float64    `json:"godkjent_belop,omitempty"`
	ApprovedDays    *int        `json:"godkjent_dager,omitempty"`
	SubsidiaryValue *float64    `json:"subsidiaer_verdi,omitempty"`
	Justification   string      `json:"begrunnelse,omitempty"`
}

// BhSvar is a combined BH response covering one or more tracks
type BhSvar struct {
	Responses []TrackResponse `json:"svar"`
}

// Response returns the response for a track, if present
func (s BhSvar) Response(track TrackType) (TrackResponse, bool) {
	for _, r := range s.Responses {
		if r.Track == track {
			return r, true
		}
	}
	return TrackResponse{}, false
}

// CaseState is the projected state of a case, derived by replaying its revision entries
type CaseState struct {
	CaseID    string              `json:"case_id"`
	Status    CaseStatus          `json:"status"`
	Mode      CaseMode            `json:"mode"`
	Grunnlag  GrunnlagData        `json:"grunnlag"`
	Revisions []KoeRevision       `json:"koe_revisjoner"`
	Tracks    map[TrackType]Track `json:"tracks"`
	// Svar is the owner's response being prepared, not part of the replayed history
	Svar BhSvar `json:"bh_svar,omitempty"`
}

// LatestRevision returns the most recent claim revision, if any
func (s CaseState) LatestRevision() (KoeRevision, bool) {
	if len(s.Revisions) == 0 {
		return KoeRevision{}, false
	}
	return s.Revisions[len(s.Revisions)-1], true
}

// Track returns the projected track, or a not-applicable track when absent
func (s CaseState) Track(t TrackType) Track {
	if tr, ok := s.Tracks[t]; ok {
		return tr
	}
	return Track{Type: t, Status: TrackStatusNotApplicable}
}
