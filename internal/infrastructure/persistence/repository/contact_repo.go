package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// ContactRepository implements port.ContactRepository. Emails are stored lowercased.
type ContactRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *sql.DB, logger *zap.Logger) port.ContactRepository {
	return &ContactRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts a contact or replaces its name and party
func (r *ContactRepository) Upsert(ctx context.Context, c *entity.Contact) error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))

	query := `
		INSERT INTO case_contacts (case_id, email, name, party) VALUES (?, ?, ?, ?)
		ON CONFLICT (case_id, email) DO UPDATE SET name = excluded.name, party = excluded.party
	`
	_, err := r.getExecutor(ctx).ExecContext(ctx, query, c.CaseID, c.Email, c.Name, string(c.Party))
	if err != nil {
		r.logger.Error("Failed to upsert contact", zap.String("case_id", c.CaseID), zap.Error(err))
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

// FindByEmail returns the contact for an email on a case; nil when unknown
func (r *ContactRepository) FindByEmail(ctx context.Context, caseID, email string) (*entity.Contact, error) {
	query := `SELECT case_id, email, name, party FROM case_contacts WHERE case_id = ? AND email = ?`

	var c entity.Contact
	var party string
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, caseID, strings.ToLower(strings.TrimSpace(email))).
		Scan(&c.CaseID, &c.Email, &c.Name, &party)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find contact", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	c.Party = entity.Party(party)
	return &c, nil
}

// ListByCase returns a case's contacts ordered by email
func (r *ContactRepository) ListByCase(ctx context.Context, caseID string) ([]*entity.Contact, error) {
	query := `SELECT case_id, email, name, party FROM case_contacts WHERE case_id = ? ORDER BY email`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, caseID)
	if err != nil {
		r.logger.Error("Failed to list contacts", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*entity.Contact
	for rows.Next() {
		var c entity.Contact
		var party string
		if err := rows.Scan(&c.CaseID, &c.Email, &c.Name, &party); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		c.Party = entity.Party(party)
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) getExecutor(ctx context.Context) executor {
	return executorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.ContactRepository = (*ContactRepository)(nil)
