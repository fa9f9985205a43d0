package entity

// TrackType identifies one of the three claim tracks of a case
type TrackType string

const (
	TrackGrunnlag TrackType = "grunnlag" // liability basis
	TrackVederlag TrackType = "vederlag" // payment adjustment
	TrackFrist    TrackType = "frist"    // time extension
)

// AllTracks lists the tracks in form order
var AllTracks = []TrackType{TrackGrunnlag, TrackVederlag, TrackFrist}

// IsValid returns true if the track type is known
func (t TrackType) IsValid() bool {
	switch t {
	case TrackGrunnlag, TrackVederlag, TrackFrist:
		return true
	}
	return false
}

func (t TrackType) String() string { return string(t) }

// TrackStatus is the projected status of a single track
type TrackStatus string

const (
	TrackStatusNotApplicable     TrackStatus = "not_applicable"
	TrackStatusDraft             TrackStatus = "draft"
	TrackStatusSent              TrackStatus = "sent"
	TrackStatusUnderReview       TrackStatus = "under_review"
	TrackStatusApproved          TrackStatus = "approved"
	TrackStatusPartiallyApproved TrackStatus = "partially_approved"
	TrackStatusRejected          TrackStatus = "rejected"
	TrackStatusUnderNegotiation  TrackStatus = "under_negotiation"
	TrackStatusWithdrawn         TrackStatus = "withdrawn"
	TrackStatusLocked            TrackStatus = "locked"
)

func (s TrackStatus) String() string { return string(s) }

// OwnerResult is the BH result code recorded on a track.
// The zero value means no response has been recorded for the active revision.
type OwnerResult string

const (
	ResultNone              OwnerResult = ""
	ResultApproved          OwnerResult = "approved"
	ResultPartiallyApproved OwnerResult = "partially_approved"
	ResultRejected          OwnerResult = "rejected"
	ResultWaived            OwnerResult = "waived"
)

// AllOwnerResults enumerates every result code including ResultNone
var AllOwnerResults = []OwnerResult{
	ResultNone,
	ResultApproved,
	ResultPartiallyApproved,
	ResultRejected,
	ResultWaived,
}

// IsValid returns true for the known result codes, including ResultNone
func (r OwnerResult) IsValid() bool {
	switch r {
	case ResultNone, ResultApproved, ResultPartiallyApproved, ResultRejected, ResultWaived:
		return true
	}
	return false
}

// IsRecorded returns true when a response has actually been given
func (r OwnerResult) IsRecorded() bool {
	return r != ResultNone
}

func (r OwnerResult) String() string { return string(r) }

// ApprovalRole is an internal BH authorization role
type ApprovalRole string

const (
	RolePL ApprovalRole = "PL" // prosjektleder
	RoleSL ApprovalRole = "SL" // seksjonsleder
	RoleAL ApprovalRole = "AL" // avdelingsleder
	RoleDU ApprovalRole = "DU" // direktør utbygging
	RoleAD ApprovalRole = "AD" // administrerende direktør
)

// RoleSeniority lists roles from least to most senior
var RoleSeniority = []ApprovalRole{RolePL, RoleSL, RoleAL, RoleDU, RoleAD}

// IsValid returns true if the role is known
func (r ApprovalRole) IsValid() bool {
	for _, known := range RoleSeniority {
		if r == known {
			return true
		}
	}
	return false
}

func (r ApprovalRole) String() string { return string(r) }

// StepStatus is the status of one approval step
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepApproved   StepStatus = "approved"
	StepRejected   StepStatus = "rejected"
)

// PakkeStatus is the status of a combined response package
type PakkeStatus string

const (
	PakkePending  PakkeStatus = "pending"
	PakkeApproved PakkeStatus = "approved"
	PakkeRejected PakkeStatus = "rejected"
)

// IsTerminal returns true once the package can no longer change
func (s PakkeStatus) IsTerminal() bool {
	return s == PakkeApproved || s == PakkeRejected
}

// CaseMode is the phase of the case the next submission belongs to
type CaseMode string

const (
	ModeUnset      CaseMode = ""
	ModeVarsel     CaseMode = "varsel"
	ModeKoe        CaseMode = "koe"
	ModeSvar       CaseMode = "svar"
	ModeRevidering CaseMode = "revidering"
	ModeFerdig     CaseMode = "ferdig"
)

// IsValid returns true for known modes, including ModeUnset
func (m CaseMode) IsValid() bool {
	switch m {
	case ModeUnset, ModeVarsel, ModeKoe, ModeSvar, ModeRevidering, ModeFerdig:
		return true
	}
	return false
}

func (m CaseMode) String() string { return string(m) }

// CaseStatus is the case-level status shown to both parties
type CaseStatus string

const (
	CaseStatusUtkast        CaseStatus = "utkast"
	CaseStatusVarslet       CaseStatus = "varslet"
	CaseStatusVenterPaaSvar CaseStatus = "venter_paa_svar"
	CaseStatusTeVurderer    CaseStatus = "te_vurderer"
	CaseStatusOmforent      CaseStatus = "omforent"
)

func (s CaseStatus) String() string { return string(s) }

// EntryKind identifies the action recorded in a revision entry
type EntryKind string

const (
	EntrySend     EntryKind = "send"
	EntryRevise   EntryKind = "revise"
	EntryReview   EntryKind = "review"
	EntryResponse EntryKind = "response"
	EntryWithdraw EntryKind = "withdraw"
	EntryAccept   EntryKind = "accept"
)

// IsValid returns true if the entry kind is known
func (k EntryKind) IsValid() bool {
	switch k {
	case EntrySend, EntryRevise, EntryReview, EntryResponse, EntryWithdraw, EntryAccept:
		return true
	}
	return false
}

// CreatesRevision returns true for the kinds that open a new revision number
func (k EntryKind) CreatesRevision() bool {
	return k == EntrySend || k == EntryRevise
}

// Party is one of the two contract parties
type Party string

const (
	PartyTE Party = "TE" // contractor
	PartyBH Party = "BH" // owner
)

// PartyFor returns which party is allowed to record an entry kind
func PartyFor(kind EntryKind) Party {
	switch kind {
	case EntryReview, EntryResponse:
		return PartyBH
	default:
		return PartyTE
	}
}
