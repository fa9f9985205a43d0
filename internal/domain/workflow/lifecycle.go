package workflow

import (
	"context"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// NewCaseMachine builds the case phase machine positioned at the given mode.
// requiresRevision decides the outcome of an owner response.
func NewCaseMachine(mode entity.CaseMode, requiresRevision GuardFunc) (StateMachine, error) {
	initial, err := StateForMode(mode)
	if err != nil {
		return nil, err
	}

	finalizes := func(ctx context.Context) bool { return !requiresRevision(ctx) }

	b := NewBuilder()
	b.Configure(StateVarsel).
		Permit(TriggerSubmitVarsel, StateKoe).
		Permit(TriggerSubmitKoe, StateSvar)

	b.Configure(StateKoe).
		Permit(TriggerSubmitKoe, StateSvar)

	b.Configure(StateSvar).
		PermitIf(TriggerSubmitSvar, StateRevidering, requiresRevision).
		PermitIf(TriggerSubmitSvar, StateFerdig, finalizes)

	b.Configure(StateRevidering).
		Permit(TriggerSubmitRevision, StateSvar).
		Permit(TriggerAccept, StateFerdig)

	return b.Build(initial), nil
}

// NewPakkeMachine builds the response package machine positioned at the given status.
// lastStep reports whether the step being approved closes the chain.
func NewPakkeMachine(status entity.PakkeStatus, lastStep GuardFunc) (StateMachine, error) {
	initial, err := StateForPakke(status)
	if err != nil {
		return nil, err
	}

	moreSteps := func(ctx context.Context) bool { return !lastStep(ctx) }

	b := NewBuilder()
	b.Configure(StatePakkePending).
		PermitIf(TriggerApproveStep, StatePakkeApproved, lastStep).
		PermitIf(TriggerApproveStep, StatePakkePending, moreSteps).
		Permit(TriggerRejectStep, StatePakkeRejected)

	return b.Build(initial), nil
}

// TriggerForMode returns the trigger that submitting in the given mode fires
func TriggerForMode(mode entity.CaseMode) (Trigger, error) {
	switch mode {
	case entity.ModeVarsel:
		return TriggerSubmitVarsel, nil
	case entity.ModeKoe, entity.ModeUnset:
		return TriggerSubmitKoe, nil
	case entity.ModeSvar:
		return TriggerSubmitSvar, nil
	case entity.ModeRevidering:
		return TriggerSubmitRevision, nil
	}
	return "", ErrInvalidTransition
}
