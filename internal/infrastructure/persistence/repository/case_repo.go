package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// CaseRepository implements port.CaseRepository
type CaseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *sql.DB, logger *zap.Logger) port.CaseRepository {
	return &CaseRepository{
		db:     db,
		logger: logger,
	}
}

const caseColumns = `id, title, topic_guid, status, mode, dagmulktsats, created_at, updated_at`

// Create inserts a new case
func (r *CaseRepository) Create(ctx context.Context, c *entity.Case) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	query := `INSERT INTO cases (` + caseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		c.ID,
		c.Title,
		c.TopicGUID,
		string(c.Status),
		string(c.Mode),
		c.Dagmulktsats,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create case", zap.String("case_id", c.ID), zap.Error(err))
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

// GetByID retrieves a case; nil when it does not exist
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*entity.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = ?`

	c, err := scanCase(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get case", zap.String("case_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

// List returns cases, most recently updated first
func (r *CaseRepository) List(ctx context.Context, limit, offset int) ([]*entity.Case, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + caseColumns + ` FROM cases ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list cases", zap.Error(err))
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var cases []*entity.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// UpdateStatus persists a derived status and mode
func (r *CaseRepository) UpdateStatus(ctx context.Context, id string, status entity.CaseStatus, mode entity.CaseMode) error {
	query := `UPDATE cases SET status = ?, mode = ?, updated_at = ? WHERE id = ?`

	res, err := r.getExecutor(ctx).ExecContext(ctx, query, string(status), string(mode), time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update case status",
			zap.String("case_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("failed to update case status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update case status: case %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*entity.Case, error) {
	var c entity.Case
	var status, mode string
	if err := row.Scan(
		&c.ID,
		&c.Title,
		&c.TopicGUID,
		&status,
		&mode,
		&c.Dagmulktsats,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Status = entity.CaseStatus(status)
	c.Mode = entity.CaseMode(mode)
	return &c, nil
}

func (r *CaseRepository) getExecutor(ctx context.Context) executor {
	return executorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.CaseRepository = (*CaseRepository)(nil)
