package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// RevisionRepository implements port.RevisionRepository over the revision_entries table.
// Entries are stored whole as JSON; the indexed columns serve ordering and the seq constraint.
type RevisionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRevisionRepository creates a new revision repository
func NewRevisionRepository(db *sql.DB, logger *zap.Logger) port.RevisionRepository {
	return &RevisionRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts an entry. A duplicate (case, track, seq) fails with port.ErrVersionConflict.
func (r *RevisionRepository) Append(ctx context.Context, e *entity.RevisionEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode revision entry: %w", err)
	}

	query := `
		INSERT INTO revision_entries (case_id, track, seq, kind, party, recorded_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		e.CaseID,
		string(e.Track),
		e.Seq,
		string(e.Kind),
		string(e.Party),
		e.RecordedAt,
		string(body),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s seq %d already recorded", port.ErrVersionConflict, e.CaseID, e.Track, e.Seq)
		}
		r.logger.Error("Failed to append revision entry",
			zap.String("case_id", e.CaseID),
			zap.String("track", string(e.Track)),
			zap.Int64("seq", e.Seq),
			zap.Error(err))
		return fmt.Errorf("failed to append revision entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	return nil
}

// ListByCase returns a case's entries in append order
func (r *RevisionRepository) ListByCase(ctx context.Context, caseID string) ([]entity.RevisionEntry, error) {
	return r.list(ctx, `SELECT id, body FROM revision_entries WHERE case_id = ? ORDER BY id ASC`, caseID)
}

// ListByTrack returns one track's entries in seq order
func (r *RevisionRepository) ListByTrack(ctx context.Context, caseID string, track entity.TrackType) ([]entity.RevisionEntry, error) {
	return r.list(ctx, `SELECT id, body FROM revision_entries WHERE case_id = ? AND track = ? ORDER BY seq ASC`, caseID, string(track))
}

func (r *RevisionRepository) list(ctx context.Context, query string, args ...any) ([]entity.RevisionEntry, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list revision entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list revision entries: %w", err)
	}
	defer rows.Close()

	var entries []entity.RevisionEntry
	for rows.Next() {
		var id int64
		var body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan revision entry: %w", err)
		}
		var e entity.RevisionEntry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("failed to decode revision entry %d: %w", id, err)
		}
		e.ID = id
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *RevisionRepository) getExecutor(ctx context.Context) executor {
	return executorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.RevisionRepository = (*RevisionRepository)(nil)
