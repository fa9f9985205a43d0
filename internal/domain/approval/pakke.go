package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
	"github.com/garyjia/koe-workflow/internal/domain/workflow"
)

// SelfCheck selects how self-approval is detected
type SelfCheck int

const (
	// SelfCheckIdentity refuses when the approver is the submitting person
	SelfCheckIdentity SelfCheck = iota
	// SelfCheckRole refuses when the approver acts in the submitter's role.
	// Only meant for demo setups where one person switches between roles.
	SelfCheckRole
)

// NewPakke bundles drafts into a package with a frozen approval chain
func NewPakke(caseID string, drafts []entity.DraftResponseData, dagmulktsats float64, submitter entity.Actor, policy Policy, now time.Time) (*entity.BhResponsPakke, error) {
	if len(drafts) == 0 {
		return nil, ErrEmptyPakke
	}

	p := &entity.BhResponsPakke{
		ID:           uuid.NewString(),
		CaseID:       caseID,
		Drafts:       make([]entity.DraftResponseData, 0, len(drafts)),
		Dagmulktsats: dagmulktsats,
		Status:       entity.PakkePending,
		SubmittedBy:  submitter,
		SubmittedAt:  now,
		Version:      1,
	}

	seen := make(map[entity.TrackType]bool, len(drafts))
	for _, d := range drafts {
		if seen[d.Track] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTrack, d.Track)
		}
		seen[d.Track] = true
		d.CaseID = caseID
		p.Drafts = append(p.Drafts, d)

		switch d.Track {
		case entity.TrackVederlag:
			if d.Belop != nil {
				p.VederlagBelop = *d.Belop
			}
		case entity.TrackFrist:
			if d.Dager != nil {
				p.FristDager = *d.Dager
			}
		}
	}

	p.FristBelop = float64(p.FristDager) * dagmulktsats
	p.SamletBelop = p.VederlagBelop + p.FristBelop
	p.Steps = BuildSteps(p.SamletBelop, policy, now)
	return p, nil
}

// NextApprover returns the index of the next-in-line step: the step in progress,
// or the first pending step when none is. ok is false once the chain is decided.
func NextApprover(steps []entity.ApprovalStep) (int, bool) {
	for i, s := range steps {
		switch s.Status {
		case entity.StepInProgress:
			return i, true
		case entity.StepRejected:
			return -1, false
		case entity.StepPending:
			return i, true
		}
	}
	return -1, false
}

// IsFullyApproved reports whether every step has been approved
func IsFullyApproved(steps []entity.ApprovalStep) bool {
	if len(steps) == 0 {
		return false
	}
	for _, s := range steps {
		if s.Status != entity.StepApproved {
			return false
		}
	}
	return true
}

// CheckApprover returns nil when actor may decide the package's next step
func CheckApprover(p *entity.BhResponsPakke, actor entity.Actor, check SelfCheck) error {
	if p.Status != entity.PakkePending {
		return fmt.Errorf("%w: %s", ErrPakkeNotPending, p.Status)
	}
	idx, ok := NextApprover(p.Steps)
	if !ok {
		return fmt.Errorf("%w: chain has no open step", ErrPakkeNotPending)
	}
	if actor.Role != p.Steps[idx].Role {
		return fmt.Errorf("%w: next is %s, actor is %s", ErrNotNextApprover, p.Steps[idx].Role, actor.Role)
	}

	switch check {
	case SelfCheckRole:
		if actor.Role == p.SubmittedBy.Role {
			return ErrSelfApproval
		}
	default:
		if actor.SameIdentity(p.SubmittedBy) {
			return ErrSelfApproval
		}
	}
	return nil
}

// CanApprove reports whether actor may decide the package's next step
func CanApprove(p *entity.BhResponsPakke, actor entity.Actor, check SelfCheck) bool {
	return CheckApprover(p, actor, check) == nil
}

// ApproveStep approves the next-in-line step and starts the following one.
// The package is approved once the last step is approved. p is untouched on error.
func ApproveStep(ctx context.Context, p *entity.BhResponsPakke, actor entity.Actor, comment string, check SelfCheck, now time.Time) error {
	if err := CheckApprover(p, actor, check); err != nil {
		return err
	}
	idx, _ := NextApprover(p.Steps)
	last := idx == len(p.Steps)-1

	status, err := fire(ctx, p.Status, workflow.TriggerApproveStep, last)
	if err != nil {
		return err
	}

	at := now
	p.Steps[idx].Status = entity.StepApproved
	p.Steps[idx].ApprovedBy = actor.ID
	p.Steps[idx].ApprovedAt = &at
	p.Steps[idx].Comment = comment
	if p.Steps[idx].StartedAt == nil {
		p.Steps[idx].StartedAt = &at
	}
	if !last {
		p.Steps[idx+1].Status = entity.StepInProgress
		p.Steps[idx+1].StartedAt = &at
	}

	p.Status = status
	if status == entity.PakkeApproved && IsFullyApproved(p.Steps) {
		p.CompletedAt = &at
	}
	return nil
}

// RejectStep rejects the next-in-line step, which rejects the package.
// Later steps are left exactly as they were.
func RejectStep(ctx context.Context, p *entity.BhResponsPakke, actor entity.Actor, comment string, check SelfCheck, now time.Time) error {
	if err := CheckApprover(p, actor, check); err != nil {
		return err
	}
	idx, _ := NextApprover(p.Steps)

	status, err := fire(ctx, p.Status, workflow.TriggerRejectStep, false)
	if err != nil {
		return err
	}

	at := now
	p.Steps[idx].Status = entity.StepRejected
	p.Steps[idx].ApprovedBy = actor.ID
	p.Steps[idx].ApprovedAt = &at
	p.Steps[idx].Comment = comment

	p.Status = status
	p.CompletedAt = &at
	return nil
}

// RestoreDrafts rebuilds editable drafts from a rejected package's snapshot.
// ok is false for packages that were not rejected.
func RestoreDrafts(p *entity.BhResponsPakke, now time.Time) ([]entity.DraftResponseData, bool) {
	if p == nil || p.Status != entity.PakkeRejected {
		return nil, false
	}
	drafts := make([]entity.DraftResponseData, len(p.Drafts))
	for i, d := range p.Drafts {
		d.FormData = cloneForm(d.FormData)
		d.UpdatedAt = now
		drafts[i] = d
	}
	return drafts, true
}

func fire(ctx context.Context, status entity.PakkeStatus, trigger workflow.Trigger, last bool) (entity.PakkeStatus, error) {
	m, err := workflow.NewPakkeMachine(status, func(context.Context) bool { return last })
	if err != nil {
		return status, err
	}
	if err := m.Fire(ctx, trigger); err != nil {
		return status, fmt.Errorf("%w: %v", ErrPakkeNotPending, err)
	}
	return workflow.PakkeStatusForState(m.State()), nil
}

func cloneForm(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
