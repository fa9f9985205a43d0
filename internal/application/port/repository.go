package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

var (
	// ErrVersionConflict is returned when an optimistic update lost a race
	ErrVersionConflict = errors.New("version conflict")

	// ErrTokenAlreadyConsumed is returned when a one-time token was used before
	ErrTokenAlreadyConsumed = errors.New("token already consumed")
)

// CaseRepository defines persistence operations for the case registry
type CaseRepository interface {
	Create(ctx context.Context, c *entity.Case) error
	GetByID(ctx context.Context, id string) (*entity.Case, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Case, error)
	UpdateStatus(ctx context.Context, id string, status entity.CaseStatus, mode entity.CaseMode) error
}

// CaseHistoryRepository defines persistence operations for case status history
type CaseHistoryRepository interface {
	Create(ctx context.Context, h *entity.CaseHistory) error
	ListByCase(ctx context.Context, caseID string) ([]*entity.CaseHistory, error)
}

// RevisionRepository is the append-only store of revision entries.
// There is deliberately no update or delete.
type RevisionRepository interface {
	Append(ctx context.Context, e *entity.RevisionEntry) error
	ListByCase(ctx context.Context, caseID string) ([]entity.RevisionEntry, error)
	ListByTrack(ctx context.Context, caseID string, track entity.TrackType) ([]entity.RevisionEntry, error)
}

// PakkeRepository defines persistence operations for response packages and their steps
type PakkeRepository interface {
	Create(ctx context.Context, p *entity.BhResponsPakke) error
	GetByID(ctx context.Context, id string) (*entity.BhResponsPakke, error)
	ListByCase(ctx context.Context, caseID string) ([]*entity.BhResponsPakke, error)
	// ListPending returns pending packages whose open step started before the cutoff
	ListPending(ctx context.Context, startedBefore time.Time) ([]*entity.BhResponsPakke, error)
	// Update writes p if the stored version equals expectedVersion and bumps p.Version
	Update(ctx context.Context, p *entity.BhResponsPakke, expectedVersion int) error
	Delete(ctx context.Context, id string) error
}

// MagicLinkToken is the stored record of an issued one-time token
type MagicLinkToken struct {
	JTI        string
	CaseID     string
	Email      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// MagicLinkRepository records issued tokens and their consumption
type MagicLinkRepository interface {
	Create(ctx context.Context, t *MagicLinkToken) error
	Get(ctx context.Context, jti string) (*MagicLinkToken, error)
	// Consume marks the token used; ErrTokenAlreadyConsumed when it already was
	Consume(ctx context.Context, jti string, at time.Time) error
}

// ContactRepository defines persistence operations for case contacts
type ContactRepository interface {
	Upsert(ctx context.Context, c *entity.Contact) error
	FindByEmail(ctx context.Context, caseID, email string) (*entity.Contact, error)
	ListByCase(ctx context.Context, caseID string) ([]*entity.Contact, error)
}

// KeyValueStore is a durable string key-value store
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Keys lists keys with the given prefix
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// SessionStore hands out key-value stores scoped to one browser session
type SessionStore interface {
	Scope(sessionID string) KeyValueStore
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
