package approval

import (
	"fmt"
	"slices"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// Directory lists the identities allowed to act in each role.
// A role with no entries is open to any identity.
type Directory map[entity.ApprovalRole][]string

// Check returns ErrUnlistedApprover when the directory names holders for the
// actor's role and the actor is not one of them
func (d Directory) Check(a entity.Actor) error {
	ids := d[a.Role]
	if a.Role == "" || len(ids) == 0 || slices.Contains(ids, a.ID) {
		return nil
	}
	return fmt.Errorf("%w: %s may not act as %s", ErrUnlistedApprover, a.ID, a.Role)
}
