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

// HistoryRepository implements port.CaseHistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.CaseHistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.CaseHistory) error {
	if history.Timestamp.IsZero() {
		history.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO case_history (
			case_id, actor_id, previous_status, new_status,
			previous_mode, new_mode, trigger_name, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		history.CaseID,
		history.ActorID,
		string(history.PreviousStatus),
		string(history.NewStatus),
		string(history.PreviousMode),
		string(history.NewMode),
		history.Trigger,
		history.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("case_id", history.CaseID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// ListByCase retrieves all history records for a case in insertion order
func (r *HistoryRepository) ListByCase(ctx context.Context, caseID string) ([]*entity.CaseHistory, error) {
	query := `
		SELECT id, case_id, actor_id, previous_status, new_status,
			previous_mode, new_mode, trigger_name, timestamp
		FROM case_history
		WHERE case_id = ?
		ORDER BY id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, caseID)
	if err != nil {
		r.logger.Error("Failed to get history by case", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.CaseHistory
	for rows.Next() {
		var record entity.CaseHistory
		var prevStatus, newStatus, prevMode, newMode string
		err := rows.Scan(
			&record.ID,
			&record.CaseID,
			&record.ActorID,
			&prevStatus,
			&newStatus,
			&prevMode,
			&newMode,
			&record.Trigger,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		record.PreviousStatus = entity.CaseStatus(prevStatus)
		record.NewStatus = entity.CaseStatus(newStatus)
		record.PreviousMode = entity.CaseMode(prevMode)
		record.NewMode = entity.CaseMode(newMode)
		records = append(records, &record)
	}

	return records, rows.Err()
}

func (r *HistoryRepository) getExecutor(ctx context.Context) executor {
	return executorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.CaseHistoryRepository = (*HistoryRepository)(nil)
