// Package token issues and verifies one-time magic-link tokens.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/port"
)

// Config holds magic-link signing settings
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

type magicLinkClaims struct {
	jwt.RegisteredClaims
	CaseID string `json:"case_id"`
	Email  string `json:"email"`
}

// MagicLinkService signs HS256 tokens and records each jti so a token verifies once
type MagicLinkService struct {
	cfg    Config
	repo   port.MagicLinkRepository
	logger *zap.Logger
}

// NewMagicLinkService creates a new MagicLinkService
func NewMagicLinkService(cfg Config, repo port.MagicLinkRepository, logger *zap.Logger) (*MagicLinkService, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("magic link secret must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "koe-workflow"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 72 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MagicLinkService{cfg: cfg, repo: repo, logger: logger}, nil
}

// Issue signs a token granting access to one case
func (s *MagicLinkService) Issue(ctx context.Context, caseID, email string) (string, *port.MagicLinkToken, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return "", nil, fmt.Errorf("case id is required")
	}

	now := s.cfg.Now().UTC().Truncate(time.Second)
	record := &port.MagicLinkToken{
		JTI:       uuid.NewString(),
		CaseID:    caseID,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	claims := magicLinkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   record.Email,
			ID:        record.JTI,
			IssuedAt:  jwt.NewNumericDate(record.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
		},
		CaseID: record.CaseID,
		Email:  record.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign magic link: %w", err)
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return "", nil, err
	}

	s.logger.Info("Magic link issued",
		zap.String("case_id", caseID),
		zap.String("jti", record.JTI),
		zap.Time("expires_at", record.ExpiresAt))
	return signed, record, nil
}

// Verify checks the signature and expiry and consumes the token. Invalid,
// expired and reused tokens yield an unsuccessful result; storage failures
// yield an error.
func (s *MagicLinkService) Verify(ctx context.Context, raw string) (port.VerifyResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return port.VerifyResult{Error: "link is missing its token"}, nil
	}

	var claims magicLinkClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.cfg.Now),
	)
	if err != nil {
		msg := describe(err)
		s.logger.Warn("Magic link rejected", zap.String("reason", msg), zap.Error(err))
		return port.VerifyResult{Error: msg}, nil
	}
	if claims.ID == "" || claims.CaseID == "" {
		return port.VerifyResult{Error: "link is malformed"}, nil
	}

	record, err := s.repo.Get(ctx, claims.ID)
	if err != nil {
		return port.VerifyResult{}, err
	}
	if record == nil || record.CaseID != claims.CaseID {
		return port.VerifyResult{Error: "link is not recognised"}, nil
	}

	if err := s.repo.Consume(ctx, claims.ID, s.cfg.Now().UTC()); err != nil {
		if errors.Is(err, port.ErrTokenAlreadyConsumed) {
			s.logger.Warn("Magic link reused", zap.String("jti", claims.ID), zap.String("case_id", claims.CaseID))
			return port.VerifyResult{Error: "link has already been used"}, nil
		}
		return port.VerifyResult{}, err
	}

	return port.VerifyResult{Success: true, CaseID: claims.CaseID, Email: claims.Email}, nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "link has expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "link signature is invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "link is malformed"
	default:
		return "link is invalid"
	}
}

// Verify interface compliance
var _ port.TokenVerifier = (*MagicLinkService)(nil)
