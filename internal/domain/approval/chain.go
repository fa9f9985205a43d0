// Package approval holds the owner's internal sign-off rules for response packages.
package approval

import (
	"fmt"
	"time"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// Policy maps an amount to the roles that must sign off.
// An amount up to Ceilings[i] requires Roles[:i+1]; anything above the last
// ceiling requires every role.
type Policy struct {
	Ceilings []float64
	Roles    []entity.ApprovalRole
}

// DefaultPolicy returns the standard NOK bands
func DefaultPolicy() Policy {
	return Policy{
		Ceilings: []float64{100_000, 500_000, 2_000_000, 5_000_000},
		Roles:    append([]entity.ApprovalRole(nil), entity.RoleSeniority...),
	}
}

// Validate checks that ceilings ascend and that there is exactly one more role than ceilings
func (p Policy) Validate() error {
	if len(p.Roles) != len(p.Ceilings)+1 {
		return fmt.Errorf("%w: %d roles for %d ceilings", ErrInvalidPolicy, len(p.Roles), len(p.Ceilings))
	}
	for i, c := range p.Ceilings {
		if c <= 0 || (i > 0 && c <= p.Ceilings[i-1]) {
			return fmt.Errorf("%w: ceilings must be positive and ascending", ErrInvalidPolicy)
		}
	}
	seen := make(map[entity.ApprovalRole]bool, len(p.Roles))
	for _, r := range p.Roles {
		if !r.IsValid() || seen[r] {
			return fmt.Errorf("%w: role %q", ErrInvalidPolicy, r)
		}
		seen[r] = true
	}
	return nil
}

// RolesFor returns the ordered roles required for an amount
func (p Policy) RolesFor(amount float64) []entity.ApprovalRole {
	n := len(p.Roles)
	for i, ceiling := range p.Ceilings {
		if amount <= ceiling {
			n = i + 1
			break
		}
	}
	return append([]entity.ApprovalRole(nil), p.Roles[:n]...)
}

// BuildSteps derives the approval chain for an amount. The first step starts
// in progress; the rest wait.
func BuildSteps(amount float64, p Policy, now time.Time) []entity.ApprovalStep {
	roles := p.RolesFor(amount)
	steps := make([]entity.ApprovalStep, len(roles))
	for i, role := range roles {
		steps[i] = entity.ApprovalStep{Role: role, Status: entity.StepPending}
	}
	if len(steps) > 0 {
		started := now
		steps[0].Status = entity.StepInProgress
		steps[0].StartedAt = &started
	}
	return steps
}

// ValidateChain checks the ordering invariant: approved steps form a prefix,
// followed by at most one in-progress or rejected step, followed by pending steps.
func ValidateChain(steps []entity.ApprovalStep) error {
	i := 0
	for i < len(steps) && steps[i].Status == entity.StepApproved {
		i++
	}
	if i < len(steps) && (steps[i].Status == entity.StepInProgress || steps[i].Status == entity.StepRejected) {
		i++
	}
	for ; i < len(steps); i++ {
		if steps[i].Status != entity.StepPending {
			return fmt.Errorf("%w: step %d (%s) is %s", ErrBrokenChain, i, steps[i].Role, steps[i].Status)
		}
	}
	return nil
}
