package validation

import (
	"testing"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

func validRevision() entity.KoeRevision {
	return entity.KoeRevision{
		Vederlag: entity.VederlagKrav{Claimed: true, Method: "regning", Amount: f(250000), Justification: "ekstra arbeid"},
		Frist:    entity.FristKrav{Claimed: true, Type: "spesifisert", Days: i(10), Justification: "forsinket leveranse"},
		Signer:   &entity.Signer{Email: "te@entreprenor.no", Name: "Kari Nordmann"},
	}
}

func TestFieldID_DOMID(t *testing.T) {
	tests := []struct {
		field FieldID
		want  string
	}{
		{FieldOppdagetDato, "grunnlag_oppdaget_dato"},
		{FieldVederlagBelop, "vederlag_belop"},
		{FieldFristSvarBegrunnelse, "frist_svar_begrunnelse"},
	}

	for _, tt := range tests {
		if got := tt.field.DOMID(); got != tt.want {
			t.Errorf("DOMID(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}
}

func TestValidateGrunnlag(t *testing.T) {
	tests := []struct {
		name      string
		data      entity.GrunnlagData
		wantValid bool
		wantFirst FieldID
		wantCount int
	}{
		{"complete", entity.GrunnlagData{DiscoveryDate: "2026-02-01", MainCategory: "endring"}, true, "", 0},
		{"missing both", entity.GrunnlagData{}, false, FieldOppdagetDato, 2},
		{"whitespace date", entity.GrunnlagData{DiscoveryDate: "   ", MainCategory: "endring"}, false, FieldOppdagetDato, 1},
		{"whitespace category", entity.GrunnlagData{DiscoveryDate: "2026-02-01", MainCategory: "\t"}, false, FieldHovedkategori, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateGrunnlag(tt.data)
			if got.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v", got.IsValid, tt.wantValid)
			}
			if got.FirstInvalidFieldID != tt.wantFirst {
				t.Errorf("FirstInvalidFieldID = %q, want %q", got.FirstInvalidFieldID, tt.wantFirst)
			}
			if len(got.Errors) != tt.wantCount {
				t.Errorf("len(Errors) = %d, want %d: %v", len(got.Errors), tt.wantCount, got.Errors)
			}
		})
	}
}

func TestValidateKoe(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*entity.KoeRevision)
		wantValid bool
		wantFirst FieldID
	}{
		{"complete", func(r *entity.KoeRevision) {}, true, ""},
		{"nothing claimed", func(r *entity.KoeRevision) { r.Vederlag.Claimed, r.Frist.Claimed = false, false }, false, FieldKravType},
		{"payment only", func(r *entity.KoeRevision) { r.Frist = entity.FristKrav{} }, true, ""},
		{"extension only", func(r *entity.KoeRevision) { r.Vederlag = entity.VederlagKrav{} }, true, ""},
		{"zero amount", func(r *entity.KoeRevision) { r.Vederlag.Amount = f(0) }, false, FieldVederlagBelop},
		{"missing amount", func(r *entity.KoeRevision) { r.Vederlag.Amount = nil }, false, FieldVederlagBelop},
		{"missing method", func(r *entity.KoeRevision) { r.Vederlag.Method = "" }, false, FieldVederlagMetode},
		{"missing days", func(r *entity.KoeRevision) { r.Frist.Days = nil }, false, FieldFristDager},
		{"blank extension justification", func(r *entity.KoeRevision) { r.Frist.Justification = "  " }, false, FieldFristBegrunnelse},
		{"no signer", func(r *entity.KoeRevision) { r.Signer = nil }, false, FieldSignatur},
		{"form order tie-break", func(r *entity.KoeRevision) {
			r.Signer = nil
			r.Frist.Type = ""
			r.Vederlag.Justification = ""
		}, false, FieldVederlagBegrunnelse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rev := validRevision()
			tt.mutate(&rev)
			got := ValidateKoe([]entity.KoeRevision{rev})
			if got.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v (%v)", got.IsValid, tt.wantValid, got.Errors)
			}
			if got.FirstInvalidFieldID != tt.wantFirst {
				t.Errorf("FirstInvalidFieldID = %q, want %q", got.FirstInvalidFieldID, tt.wantFirst)
			}
		})
	}
}

func TestValidateKoe_OnlyLatestRevision(t *testing.T) {
	stale := entity.KoeRevision{Vederlag: entity.VederlagKrav{Claimed: true}}
	latest := validRevision()

	if got := ValidateKoe([]entity.KoeRevision{stale, latest}); !got.IsValid {
		t.Errorf("invalid superseded revision must not fail validation: %v", got.Errors)
	}
	if got := ValidateKoe([]entity.KoeRevision{latest, stale}); got.IsValid {
		t.Error("invalid latest revision must fail validation")
	}
}

func TestValidateKoe_NoRevisions(t *testing.T) {
	got := ValidateKoe(nil)
	if got.IsValid || got.FirstInvalidFieldID != FieldKravType {
		t.Errorf("ValidateKoe(nil) = %+v", got)
	}
}

func TestValidateSvar(t *testing.T) {
	tests := []struct {
		name      string
		responses []entity.TrackResponse
		wantValid bool
		wantFirst FieldID
	}{
		{"both approved", []entity.TrackResponse{
			{Track: entity.TrackVederlag, Result: entity.ResultApproved},
			{Track: entity.TrackFrist, Result: entity.ResultApproved},
		}, true, ""},
		{"missing frist", []entity.TrackResponse{
			{Track: entity.TrackVederlag, Result: entity.ResultApproved},
		}, false, FieldFristResultat},
		{"partial without amount", []entity.TrackResponse{
			{Track: entity.TrackVederlag, Result: entity.ResultPartiallyApproved, Justification: "for høyt"},
			{Track: entity.TrackFrist, Result: entity.ResultApproved},
		}, false, FieldVederlagGodkjent},
		{"rejection without justification", []entity.TrackResponse{
			{Track: entity.TrackVederlag, Result: entity.ResultApproved},
			{Track: entity.TrackFrist, Result: entity.ResultRejected},
		}, false, FieldFristSvarBegrunnelse},
		{"partial with values", []entity.TrackResponse{
			{Track: entity.TrackVederlag, Result: entity.ResultPartiallyApproved, ApprovedAmount: f(100000), Justification: "delvis"},
			{Track: entity.TrackFrist, Result: entity.ResultPartiallyApproved, ApprovedDays: i(5), Justification: "delvis"},
		}, true, ""},
		{"unknown result", []entity.TrackResponse{
			{Track: entity.TrackVederlag, Result: "kanskje"},
			{Track: entity.TrackFrist, Result: entity.ResultApproved},
		}, false, FieldVederlagResultat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateSvar([]entity.KoeRevision{validRevision()}, entity.BhSvar{Responses: tt.responses})
			if got.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v (%v)", got.IsValid, tt.wantValid, got.Errors)
			}
			if got.FirstInvalidFieldID != tt.wantFirst {
				t.Errorf("FirstInvalidFieldID = %q, want %q", got.FirstInvalidFieldID, tt.wantFirst)
			}
		})
	}
}

func TestValidateForStep(t *testing.T) {
	empty := entity.CaseState{}
	complete := entity.CaseState{
		Grunnlag:  entity.GrunnlagData{DiscoveryDate: "2026-02-01", MainCategory: "endring"},
		Revisions: []entity.KoeRevision{validRevision()},
		Svar: entity.BhSvar{Responses: []entity.TrackResponse{
			{Track: entity.TrackVederlag, Result: entity.ResultApproved},
			{Track: entity.TrackFrist, Result: entity.ResultApproved},
		}},
	}

	tests := []struct {
		step  int
		state entity.CaseState
		want  bool
	}{
		{StepGrunnlag, empty, false},
		{StepGrunnlag, complete, true},
		{StepKoe, empty, false},
		{StepKoe, complete, true},
		{StepSvar, complete, true},
		{3, empty, true},
		{-1, empty, true},
		{99, empty, true},
	}

	for _, tt := range tests {
		got := ValidateForStep(tt.state, tt.step)
		if got.IsValid != tt.want {
			t.Errorf("ValidateForStep(step %d) IsValid = %v, want %v", tt.step, got.IsValid, tt.want)
		}
		if got.Errors == nil {
			t.Errorf("ValidateForStep(step %d) returned nil error map", tt.step)
		}
	}
}

func TestResult_WithError(t *testing.T) {
	r := Valid().WithError(FieldSignatur, "unknown signer")
	if r.IsValid {
		t.Fatal("expected invalid result")
	}
	if r.FirstInvalidFieldID != FieldSignatur {
		t.Errorf("expected %s first, got %s", FieldSignatur, r.FirstInvalidFieldID)
	}

	r = r.WithError(FieldVederlagBelop, "amount required")
	if r.FirstInvalidFieldID != FieldVederlagBelop {
		t.Errorf("expected form order to put %s first, got %s", FieldVederlagBelop, r.FirstInvalidFieldID)
	}
	if len(r.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d", len(r.Errors))
	}
}
