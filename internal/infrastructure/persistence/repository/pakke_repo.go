package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/approval"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// PakkeRepository implements port.PakkeRepository. Steps live in approval_steps
// keyed by position; drafts and submitter are stored as JSON.
type PakkeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPakkeRepository creates a new package repository
func NewPakkeRepository(db *sql.DB, logger *zap.Logger) port.PakkeRepository {
	return &PakkeRepository{
		db:     db,
		logger: logger,
	}
}

const pakkeColumns = `id, case_id, status, vederlag_belop, frist_dager, dagmulktsats, frist_belop,
	samlet_belop, drafts, submitted_by, submitted_at, completed_at, document_path, version`

// Create inserts a package and its steps
func (r *PakkeRepository) Create(ctx context.Context, p *entity.BhResponsPakke) error {
	drafts, submitter, err := encodePakke(p)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(exec executor) error {
		query := `INSERT INTO approval_pakker (` + pakkeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := exec.ExecContext(ctx, query,
			p.ID,
			p.CaseID,
			string(p.Status),
			p.VederlagBelop,
			p.FristDager,
			p.Dagmulktsats,
			p.FristBelop,
			p.SamletBelop,
			drafts,
			submitter,
			p.SubmittedAt,
			p.CompletedAt,
			p.DocumentPath,
			p.Version,
		)
		if err != nil {
			r.logger.Error("Failed to create package", zap.String("pakke_id", p.ID), zap.Error(err))
			return fmt.Errorf("failed to create package: %w", err)
		}
		return r.insertSteps(ctx, exec, p)
	})
}

// GetByID retrieves a package with its steps; nil when it does not exist
func (r *PakkeRepository) GetByID(ctx context.Context, id string) (*entity.BhResponsPakke, error) {
	exec := r.getExecutor(ctx)
	query := `SELECT ` + pakkeColumns + ` FROM approval_pakker WHERE id = ?`

	p, err := scanPakke(exec.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get package", zap.String("pakke_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get package: %w", err)
	}

	if err := r.loadSteps(ctx, exec, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListByCase returns a case's packages, oldest first
func (r *PakkeRepository) ListByCase(ctx context.Context, caseID string) ([]*entity.BhResponsPakke, error) {
	query := `SELECT ` + pakkeColumns + ` FROM approval_pakker WHERE case_id = ? ORDER BY submitted_at ASC, id ASC`
	return r.list(ctx, query, caseID)
}

// ListPending returns pending packages whose open step started before the cutoff
func (r *PakkeRepository) ListPending(ctx context.Context, startedBefore time.Time) ([]*entity.BhResponsPakke, error) {
	query := `SELECT ` + pakkeColumns + ` FROM approval_pakker WHERE status = ? ORDER BY submitted_at ASC, id ASC`
	pending, err := r.list(ctx, query, string(entity.PakkePending))
	if err != nil {
		return nil, err
	}

	var stale []*entity.BhResponsPakke
	for _, p := range pending {
		idx, ok := approval.NextApprover(p.Steps)
		if !ok {
			continue
		}
		if started := p.Steps[idx].StartedAt; started != nil && started.Before(startedBefore) {
			stale = append(stale, p)
		}
	}
	return stale, nil
}

// Update writes p when the stored version equals expectedVersion, then bumps p.Version
func (r *PakkeRepository) Update(ctx context.Context, p *entity.BhResponsPakke, expectedVersion int) error {
	drafts, submitter, err := encodePakke(p)
	if err != nil {
		return err
	}

	err = r.inTx(ctx, func(exec executor) error {
		query := `
			UPDATE approval_pakker SET
				status = ?, vederlag_belop = ?, frist_dager = ?, dagmulktsats = ?, frist_belop = ?,
				samlet_belop = ?, drafts = ?, submitted_by = ?, completed_at = ?, document_path = ?,
				version = version + 1
			WHERE id = ? AND version = ?
		`
		res, err := exec.ExecContext(ctx, query,
			string(p.Status),
			p.VederlagBelop,
			p.FristDager,
			p.Dagmulktsats,
			p.FristBelop,
			p.SamletBelop,
			drafts,
			submitter,
			p.CompletedAt,
			p.DocumentPath,
			p.ID,
			expectedVersion,
		)
		if err != nil {
			r.logger.Error("Failed to update package", zap.String("pakke_id", p.ID), zap.Error(err))
			return fmt.Errorf("failed to update package: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: package %s is not at version %d", port.ErrVersionConflict, p.ID, expectedVersion)
		}

		if _, err := exec.ExecContext(ctx, `DELETE FROM approval_steps WHERE pakke_id = ?`, p.ID); err != nil {
			return fmt.Errorf("failed to replace steps: %w", err)
		}
		return r.insertSteps(ctx, exec, p)
	})
	if err != nil {
		return err
	}

	p.Version = expectedVersion + 1
	return nil
}

// Delete removes a package and its steps
func (r *PakkeRepository) Delete(ctx context.Context, id string) error {
	return r.inTx(ctx, func(exec executor) error {
		if _, err := exec.ExecContext(ctx, `DELETE FROM approval_steps WHERE pakke_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete steps: %w", err)
		}
		if _, err := exec.ExecContext(ctx, `DELETE FROM approval_pakker WHERE id = ?`, id); err != nil {
			r.logger.Error("Failed to delete package", zap.String("pakke_id", id), zap.Error(err))
			return fmt.Errorf("failed to delete package: %w", err)
		}
		return nil
	})
}

func (r *PakkeRepository) list(ctx context.Context, query string, args ...any) ([]*entity.BhResponsPakke, error) {
	exec := r.getExecutor(ctx)
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list packages", zap.Error(err))
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}

	var pakker []*entity.BhResponsPakke
	for rows.Next() {
		p, err := scanPakke(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		pakker = append(pakker, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Steps are read after the package cursor is closed so a single connection suffices
	for _, p := range pakker {
		if err := r.loadSteps(ctx, exec, p); err != nil {
			return nil, err
		}
	}
	return pakker, nil
}

func (r *PakkeRepository) insertSteps(ctx context.Context, exec executor, p *entity.BhResponsPakke) error {
	query := `
		INSERT INTO approval_steps (pakke_id, position, role, status, approved_by, approved_at, comment, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, s := range p.Steps {
		_, err := exec.ExecContext(ctx, query,
			p.ID,
			i,
			string(s.Role),
			string(s.Status),
			s.ApprovedBy,
			s.ApprovedAt,
			s.Comment,
			s.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %d: %w", i, err)
		}
	}
	return nil
}

func (r *PakkeRepository) loadSteps(ctx context.Context, exec executor, p *entity.BhResponsPakke) error {
	query := `
		SELECT role, status, approved_by, approved_at, comment, started_at
		FROM approval_steps WHERE pakke_id = ? ORDER BY position ASC
	`
	rows, err := exec.QueryContext(ctx, query, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	p.Steps = nil
	for rows.Next() {
		var s entity.ApprovalStep
		var role, status string
		var approvedAt, startedAt sql.NullTime
		if err := rows.Scan(&role, &status, &s.ApprovedBy, &approvedAt, &s.Comment, &startedAt); err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}
		s.Role = entity.ApprovalRole(role)
		s.Status = entity.StepStatus(status)
		s.ApprovedAt = timePtr(approvedAt)
		s.StartedAt = timePtr(startedAt)
		p.Steps = append(p.Steps, s)
	}
	return rows.Err()
}

// inTx runs fn on the caller's transaction, or on a new one outside a transaction
func (r *PakkeRepository) inTx(ctx context.Context, fn func(exec executor) error) error {
	if exec, ok := r.getExecutor(ctx).(*sql.Tx); ok {
		return fn(exec)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *PakkeRepository) getExecutor(ctx context.Context) executor {
	return executorFor(ctx, r.db)
}

func encodePakke(p *entity.BhResponsPakke) (string, string, error) {
	drafts, err := json.Marshal(p.Drafts)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode drafts: %w", err)
	}
	submitter, err := json.Marshal(p.SubmittedBy)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode submitter: %w", err)
	}
	return string(drafts), string(submitter), nil
}

func scanPakke(row rowScanner) (*entity.BhResponsPakke, error) {
	var p entity.BhResponsPakke
	var status, drafts, submitter string
	var completedAt sql.NullTime
	if err := row.Scan(
		&p.ID,
		&p.CaseID,
		&status,
		&p.VederlagBelop,
		&p.FristDager,
		&p.Dagmulktsats,
		&p.FristBelop,
		&p.SamletBelop,
		&drafts,
		&submitter,
		&p.SubmittedAt,
		&completedAt,
		&p.DocumentPath,
		&p.Version,
	); err != nil {
		return nil, err
	}
	p.Status = entity.PakkeStatus(status)
	p.CompletedAt = timePtr(completedAt)
	if err := json.Unmarshal([]byte(drafts), &p.Drafts); err != nil {
		return nil, fmt.Errorf("decode drafts: %w", err)
	}
	if err := json.Unmarshal([]byte(submitter), &p.SubmittedBy); err != nil {
		return nil, fmt.Errorf("decode submitter: %w", err)
	}
	return &p, nil
}

// Verify interface compliance
var _ port.PakkeRepository = (*PakkeRepository)(nil)
