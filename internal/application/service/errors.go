package service

import (
	"errors"
	"fmt"

	"github.com/garyjia/koe-workflow/internal/application/workflow"
	"github.com/garyjia/koe-workflow/internal/domain/validation"
)

var (
	// ErrCaseNotFound is returned when a case does not exist
	ErrCaseNotFound = workflow.ErrCaseNotFound

	// ErrCaseExists is returned when creating a case under a taken id
	ErrCaseExists = errors.New("case already exists")

	// ErrPakkeNotFound is returned when a response package does not exist
	ErrPakkeNotFound = errors.New("response package not found")

	// ErrValidationFailed is wrapped by ValidationError
	ErrValidationFailed = errors.New("validation failed")

	// ErrWrongMode is returned when a submission does not match the case's current phase
	ErrWrongMode = errors.New("submission not allowed in current mode")

	// ErrRejectedEntry is returned when an entry would break a track's revision rules
	ErrRejectedEntry = errors.New("entry rejected by track rules")

	// ErrNothingToAccept is returned when no track carries an owner result to accept
	ErrNothingToAccept = errors.New("no track has an owner result to accept")

	// ErrNoDrafts is returned when a package is submitted for a case without drafts
	ErrNoDrafts = errors.New("case has no drafts")
)

// ValidationError carries field-level validation problems
type ValidationError struct {
	Result validation.Result
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d field(s), first %s", ErrValidationFailed, len(e.Result.Errors), e.Result.FirstInvalidFieldID)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

func validationError(r validation.Result) error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Result: r}
}
