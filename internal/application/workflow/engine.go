package workflow

import (
	"context"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
	"github.com/garyjia/koe-workflow/internal/domain/transition"
	domainwf "github.com/garyjia/koe-workflow/internal/domain/workflow"
)

// TxStep is extra work committed atomically with a transition, such as appending revision entries
type TxStep func(ctx context.Context) error

// CaseEngine applies case-level phase transitions
type CaseEngine interface {
	// Apply computes and persists the transition for a submission made in mode.
	// steps run inside the same transaction before the status update.
	Apply(ctx context.Context, caseID string, mode entity.CaseMode, actor entity.Actor, state entity.CaseState, steps ...TxStep) (transition.Result, error)

	// Accept closes a case in revision when the contractor accepts the owner's position
	Accept(ctx context.Context, caseID string, actor entity.Actor, steps ...TxStep) (transition.Result, error)

	// Preview computes the transition for mode without persisting anything
	Preview(ctx context.Context, caseID string, mode entity.CaseMode, state entity.CaseState) (transition.Result, error)

	// GetStateMachine returns the phase machine for a case (creates if not cached)
	GetStateMachine(ctx context.Context, caseID string) (domainwf.StateMachine, error)

	// GetCurrentState returns the current phase of a case
	GetCurrentState(ctx context.Context, caseID string) (domainwf.State, error)
}
