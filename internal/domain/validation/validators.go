package validation

import (
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// Workflow steps as presented to the parties
const (
	StepGrunnlag = 0
	StepKoe      = 1
	StepSvar     = 2
)

// ValidateGrunnlag checks the liability-basis notice
func ValidateGrunnlag(g entity.GrunnlagData) Result {
	c := newCollector()
	c.requireText(FieldOppdagetDato, g.DiscoveryDate, "discovery date is required")
	c.requireText(FieldHovedkategori, g.MainCategory, "main category is required")
	return c.result()
}

// ValidateKoe checks the claim. Only the latest revision is validated; earlier
// revisions were validated when they were sent.
func ValidateKoe(revisions []entity.KoeRevision) Result {
	c := newCollector()
	if len(revisions) == 0 {
		c.add(FieldKravType, "payment or time extension must be claimed")
		return c.result()
	}
	rev := revisions[len(revisions)-1]

	if !rev.Vederlag.Claimed && !rev.Frist.Claimed {
		c.add(FieldKravType, "payment or time extension must be claimed")
		return c.result()
	}

	if rev.Vederlag.Claimed {
		c.requireText(FieldVederlagMetode, rev.Vederlag.Method, "settlement method is required")
		if rev.Vederlag.Amount == nil || *rev.Vederlag.Amount <= 0 {
			c.add(FieldVederlagBelop, "amount must be greater than zero")
		}
		c.requireText(FieldVederlagBegrunnelse, rev.Vederlag.Justification, "justification is required")
	}

	if rev.Frist.Claimed {
		c.requireText(FieldFristType, rev.Frist.Type, "extension type is required")
		if rev.Frist.Days == nil || *rev.Frist.Days <= 0 {
			c.add(FieldFristDager, "day count must be greater than zero")
		}
		c.requireText(FieldFristBegrunnelse, rev.Frist.Justification, "justification is required")
	}

	if rev.Signer == nil || rev.Signer.Email == "" {
		c.add(FieldSignatur, "a verified signer is required")
	}

	return c.result()
}

// ValidateSvar checks an owner response against the latest claim revision.
// Every claimed track needs a result; partial approval needs the approved value
// and anything short of approval needs a justification.
func ValidateSvar(revisions []entity.KoeRevision, svar entity.BhSvar) Result {
	c := newCollector()
	if len(revisions) == 0 {
		return c.result()
	}
	rev := revisions[len(revisions)-1]

	if rev.Vederlag.Claimed {
		checkResponse(c, svar, entity.TrackVederlag, FieldVederlagResultat, FieldVederlagGodkjent, FieldVederlagSvarBegrunnelse)
	}
	if rev.Frist.Claimed {
		checkResponse(c, svar, entity.TrackFrist, FieldFristResultat, FieldFristGodkjent, FieldFristSvarBegrunnelse)
	}
	return c.result()
}

func checkResponse(c *collector, svar entity.BhSvar, track entity.TrackType, resultField, valueField, justificationField FieldID) {
	resp, ok := svar.Response(track)
	if !ok || !resp.Result.IsRecorded() || !resp.Result.IsValid() {
		c.add(resultField, "a result is required")
		return
	}

	if resp.Result == entity.ResultPartiallyApproved {
		switch track {
		case entity.TrackVederlag:
			if resp.ApprovedAmount == nil || *resp.ApprovedAmount <= 0 {
				c.add(valueField, "approved amount is required for partial approval")
			}
		case entity.TrackFrist:
			if resp.ApprovedDays == nil || *resp.ApprovedDays <= 0 {
				c.add(valueField, "approved days are required for partial approval")
			}
		}
	}

	if resp.Result != entity.ResultApproved {
		c.requireText(justificationField, resp.Justification, "justification is required")
	}
}

// ValidateForStep validates the form belonging to a workflow step.
// Steps without a validator are accepted as is.
func ValidateForStep(state entity.CaseState, step int) Result {
	switch step {
	case StepGrunnlag:
		return ValidateGrunnlag(state.Grunnlag)
	case StepKoe:
		return ValidateKoe(state.Revisions)
	case StepSvar:
		return ValidateSvar(state.Revisions, state.Svar)
	}
	return Valid()
}
