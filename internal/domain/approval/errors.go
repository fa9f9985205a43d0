package approval

import "errors"

var (
	// ErrEmptyPakke is returned when a package would contain no drafts
	ErrEmptyPakke = errors.New("package requires at least one draft")

	// ErrDuplicateTrack is returned when two drafts target the same track
	ErrDuplicateTrack = errors.New("package contains two drafts for one track")

	// ErrPakkeNotPending is returned when acting on a package that is already decided
	ErrPakkeNotPending = errors.New("package is not pending")

	// ErrPakkeNotRejected is returned when restoring or discarding a package that was not rejected
	ErrPakkeNotRejected = errors.New("package is not rejected")

	// ErrNotNextApprover is returned when the actor does not hold the next-in-line role
	ErrNotNextApprover = errors.New("actor is not the next approver")

	// ErrSelfApproval is returned when the submitter tries to decide its own package
	ErrSelfApproval = errors.New("submitter cannot approve own package")

	// ErrUnlistedApprover is returned when the approver directory does not list the actor for its role
	ErrUnlistedApprover = errors.New("actor is not listed for role")

	// ErrBrokenChain is returned when a chain violates step ordering
	ErrBrokenChain = errors.New("approval chain out of order")

	// ErrInvalidPolicy is returned for malformed threshold configuration
	ErrInvalidPolicy = errors.New("invalid approval policy")
)
