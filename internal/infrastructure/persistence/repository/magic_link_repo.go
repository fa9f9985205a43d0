package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/port"
)

// MagicLinkRepository implements port.MagicLinkRepository
type MagicLinkRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMagicLinkRepository creates a new magic link repository
func NewMagicLinkRepository(db *sql.DB, logger *zap.Logger) port.MagicLinkRepository {
	return &MagicLinkRepository{
		db:     db,
		logger: logger,
	}
}

// Create records an issued token
func (r *MagicLinkRepository) Create(ctx context.Context, t *port.MagicLinkToken) error {
	query := `
		INSERT INTO magic_link_tokens (jti, case_id, email, issued_at, expires_at, consumed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		t.JTI,
		t.CaseID,
		t.Email,
		t.IssuedAt.UTC(),
		t.ExpiresAt.UTC(),
		t.ConsumedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record magic link", zap.String("case_id", t.CaseID), zap.Error(err))
		return fmt.Errorf("failed to record magic link: %w", err)
	}
	return nil
}

// Get returns the token record; nil when unknown
func (r *MagicLinkRepository) Get(ctx context.Context, jti string) (*port.MagicLinkToken, error) {
	query := `SELECT jti, case_id, email, issued_at, expires_at, consumed_at FROM magic_link_tokens WHERE jti = ?`

	var t port.MagicLinkToken
	var consumedAt sql.NullTime
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, jti).Scan(
		&t.JTI,
		&t.CaseID,
		&t.Email,
		&t.IssuedAt,
		&t.ExpiresAt,
		&consumedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get magic link", zap.Error(err))
		return nil, fmt.Errorf("failed to get magic link: %w", err)
	}
	t.ConsumedAt = timePtr(consumedAt)
	return &t, nil
}

// Consume marks the token used exactly once; unknown tokens count as consumed
func (r *MagicLinkRepository) Consume(ctx context.Context, jti string, at time.Time) error {
	query := `UPDATE magic_link_tokens SET consumed_at = ? WHERE jti = ? AND consumed_at IS NULL`

	res, err := r.getExecutor(ctx).ExecContext(ctx, query, at.UTC(), jti)
	if err != nil {
		r.logger.Error("Failed to consume magic link", zap.Error(err))
		return fmt.Errorf("failed to consume magic link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrTokenAlreadyConsumed
	}
	return nil
}

func (r *MagicLinkRepository) getExecutor(ctx context.Context) executor {
	return executorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.MagicLinkRepository = (*MagicLinkRepository)(nil)
