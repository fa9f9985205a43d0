package workflow

import "errors"

// ErrCaseNotFound is returned when a transition targets an unknown case
var ErrCaseNotFound = errors.New("case not found")
