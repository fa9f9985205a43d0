// Package transition computes the next case-level status and mode after a submission.
package transition

import (
	"fmt"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// Result is the outcome of a submission in a given mode
type Result struct {
	NextStatus       entity.CaseStatus `json:"next_status"`
	NextMode         entity.CaseMode   `json:"next_mode"`
	RequiresRevision bool              `json:"requires_revision"`
	// NothingToRespond is set when an owner response finalized the case without
	// any recorded result on the latest claim revision.
	NothingToRespond bool `json:"nothing_to_respond,omitempty"`
}

// Compute returns the transition for a submission made in mode. Only the svar
// mode depends on the case state; every other mode maps to a fixed pair.
func Compute(mode entity.CaseMode, state entity.CaseState) (Result, error) {
	switch mode {
	case entity.ModeVarsel:
		return Result{NextStatus: entity.CaseStatusVarslet, NextMode: entity.ModeKoe}, nil
	case entity.ModeKoe, entity.ModeUnset, entity.ModeRevidering:
		return Result{NextStatus: entity.CaseStatusVenterPaaSvar, NextMode: entity.ModeSvar}, nil
	case entity.ModeSvar:
		return svar(state), nil
	}
	return Result{}, fmt.Errorf("no transition for mode %q", mode)
}

// svar inspects the latest claim revision's Vederlag and Frist results. Grunnlag does not gate.
func svar(state entity.CaseState) Result {
	var vederlag, frist entity.OwnerResult
	if latest, ok := state.LatestRevision(); ok {
		vederlag, frist = latest.VederlagResult, latest.FristResult
	}

	if needsRevision(vederlag) || needsRevision(frist) {
		return Result{
			NextStatus:       entity.CaseStatusTeVurderer,
			NextMode:         entity.ModeRevidering,
			RequiresRevision: true,
		}
	}

	return Result{
		NextStatus:       entity.CaseStatusOmforent,
		NextMode:         entity.ModeFerdig,
		NothingToRespond: !vederlag.IsRecorded() && !frist.IsRecorded(),
	}
}

func needsRevision(r entity.OwnerResult) bool {
	return r != entity.ResultApproved && r != entity.ResultNone
}

// Accepted is the transition applied when the contractor accepts the owner's position
func Accepted() Result {
	return Result{NextStatus: entity.CaseStatusOmforent, NextMode: entity.ModeFerdig}
}
