package port

import (
	"context"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// VerifyResult is the outcome of one-time token verification
type VerifyResult struct {
	Success bool   `json:"success"`
	CaseID  string `json:"case_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TokenVerifier verifies magic-link tokens. An unsuccessful result is an auth
// failure; a non-nil error is a transport failure.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (VerifyResult, error)
}

// CaseData is the server's view of a case
type CaseData struct {
	Case      entity.Case      `json:"case"`
	FormData  entity.CaseState `json:"form_data"`
	TopicGUID string           `json:"topic_guid,omitempty"`
}

// CaseFetcher loads case data
type CaseFetcher interface {
	GetCase(ctx context.Context, caseID string, mode entity.CaseMode) (CaseData, error)
}

// SignerResult is the outcome of signer identity validation
type SignerResult struct {
	Success bool   `json:"success"`
	Name    string `json:"name,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SignerValidator checks that an email belongs to a person allowed to sign for a case
type SignerValidator interface {
	Validate(ctx context.Context, caseID, email string) (SignerResult, error)
}

// SubmitResult is the outcome of committing a single track action
type SubmitResult struct {
	Entry entity.RevisionEntry `json:"entry"`
}

// EventSubmitter commits one track action to the revision ledger
type EventSubmitter interface {
	Submit(ctx context.Context, entry entity.RevisionEntry) (SubmitResult, error)
}

// ApproverNotifier tells the holder of a step that a package awaits them
type ApproverNotifier interface {
	NotifyNextApprover(ctx context.Context, pakke *entity.BhResponsPakke, step entity.ApprovalStep) error
}

// DocumentGenerator renders a summary document for an approved package and returns its path
type DocumentGenerator interface {
	Generate(ctx context.Context, pakke *entity.BhResponsPakke) (string, error)
}

// EventPublisher forwards committed domain events to an external broker
type EventPublisher interface {
	Publish(ctx context.Context, key string, value any) error
	Close() error
}
