package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

type contactSignerValidator struct {
	contactRepo port.ContactRepository
}

// NewSignerValidator validates signers against the contractor contacts registered on a case
func NewSignerValidator(contactRepo port.ContactRepository) port.SignerValidator {
	return &contactSignerValidator{contactRepo: contactRepo}
}

// Validate implements port.SignerValidator
func (v *contactSignerValidator) Validate(ctx context.Context, caseID, email string) (port.SignerResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return port.SignerResult{Error: "email is required"}, nil
	}

	contact, err := v.contactRepo.FindByEmail(ctx, caseID, email)
	if err != nil {
		return port.SignerResult{}, fmt.Errorf("find contact: %w", err)
	}
	if contact == nil {
		return port.SignerResult{Error: "email is not registered on this case"}, nil
	}
	if contact.Party != entity.PartyTE {
		return port.SignerResult{Error: "only contractor representatives can sign a claim"}, nil
	}

	return port.SignerResult{Success: true, Name: contact.Name}, nil
}
