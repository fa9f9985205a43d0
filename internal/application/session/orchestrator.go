// Package session resolves who is entering a case and which case data they see.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

var (
	// ErrLoadAbandoned is returned when the caller went away before the load finished
	ErrLoadAbandoned = errors.New("case load abandoned")

	// ErrMissingSession is returned when a load carries no session id
	ErrMissingSession = errors.New("session id is required")
)

// Logger is the logging interface used by the orchestrator
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// LoadObserver follows the loading flag of one load attempt
type LoadObserver interface {
	SetLoading(loading bool)
}

// PhaseStatus is the outcome of one pipeline phase
type PhaseStatus string

const (
	PhaseSuccess PhaseStatus = "success"
	PhaseFailure PhaseStatus = "failure"
	PhaseSkip    PhaseStatus = "skip"
)

// LoadRequest describes one page entry
type LoadRequest struct {
	SessionID string          `json:"-"`
	Token     string          `json:"token,omitempty"`
	CaseID    string          `json:"case_id,omitempty"`
	Mode      entity.CaseMode `json:"mode,omitempty"`
}

// Identity is the result of the identity phase
type Identity struct {
	Status        PhaseStatus `json:"status"`
	CaseID        string      `json:"case_id,omitempty"`
	Email         string      `json:"email,omitempty"`
	FromMagicLink bool        `json:"from_magic_link"`
	Marker        Marker      `json:"marker"`
	AuthError     string      `json:"auth_error,omitempty"`
}

// CaseData is the result of the case data phase
type CaseData struct {
	Status    PhaseStatus       `json:"status"`
	Data      *port.CaseData    `json:"data,omitempty"`
	Cached    *entity.CaseState `json:"cached,omitempty"`
	FromCache bool              `json:"from_cache"`
	APIError  string            `json:"api_error,omitempty"`
}

// LoadResult is what the page renders
type LoadResult struct {
	Identity  Identity          `json:"identity"`
	CaseData  CaseData          `json:"case_data"`
	FormData  *entity.CaseState `json:"form_data,omitempty"`
	Case      *entity.Case      `json:"case,omitempty"`
	TopicGUID string            `json:"topic_guid,omitempty"`
	APIError  string            `json:"api_error,omitempty"`
	AuthError string            `json:"auth_error,omitempty"`
}

// Orchestrator runs the identity phase and then the case data phase
type Orchestrator struct {
	verifier port.TokenVerifier
	fetcher  port.CaseFetcher
	sessions port.SessionStore
	logger   Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(verifier port.TokenVerifier, fetcher port.CaseFetcher, sessions port.SessionStore, logger Logger) *Orchestrator {
	return &Orchestrator{
		verifier: verifier,
		fetcher:  fetcher,
		sessions: sessions,
		logger:   logger,
	}
}

// Load resolves the caller's identity and then the case data. The observer sees
// loading=true once and loading=false exactly once, whatever the outcome.
func (o *Orchestrator) Load(ctx context.Context, req LoadRequest, obs LoadObserver) (*LoadResult, error) {
	if obs != nil {
		obs.SetLoading(true)
		defer obs.SetLoading(false)
	}

	if strings.TrimSpace(req.SessionID) == "" {
		return nil, ErrMissingSession
	}
	st := state{kv: o.sessions.Scope(req.SessionID)}

	identity, err := o.resolveIdentity(ctx, st, req)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ErrLoadAbandoned
	}

	data, err := o.resolveCaseData(ctx, st, identity, req.Mode)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ErrLoadAbandoned
	}

	result := &LoadResult{
		Identity:  identity,
		CaseData:  data,
		APIError:  data.APIError,
		AuthError: identity.AuthError,
	}
	switch {
	case data.Data != nil:
		c := data.Data.Case
		form := data.Data.FormData
		result.Case = &c
		result.FormData = &form
		result.TopicGUID = data.Data.TopicGUID
	case data.FromCache:
		result.FormData = data.Cached
	}

	o.logger.Info("Case load finished",
		"case_id", identity.CaseID,
		"identity", identity.Status,
		"case_data", data.Status,
		"from_magic_link", identity.FromMagicLink,
		"from_cache", data.FromCache,
	)
	return result, nil
}

// resolveIdentity decides the case id. A token is verified at most once per
// session; a failed verification is terminal for that session.
func (o *Orchestrator) resolveIdentity(ctx context.Context, st state, req LoadRequest) (Identity, error) {
	marker, err := st.marker(ctx)
	if err != nil {
		return Identity{}, err
	}
	fromMagicLink, storedCaseID, err := st.origin(ctx)
	if err != nil {
		return Identity{}, err
	}

	if req.Token == "" {
		return o.directEntry(ctx, st, req, marker, fromMagicLink, storedCaseID)
	}

	if !marker.AllowsVerify() {
		if marker == MarkerConsumed && fromMagicLink && storedCaseID != "" {
			return Identity{Status: PhaseSuccess, CaseID: storedCaseID, FromMagicLink: true, Marker: marker}, nil
		}
		o.logger.Warn("Magic link reused in session", "marker", marker)
		return Identity{
			Status:        PhaseFailure,
			FromMagicLink: true,
			Marker:        marker,
			AuthError:     "this link has already been used",
		}, nil
	}

	if err := st.setMarker(ctx, MarkerUsed); err != nil {
		return Identity{}, err
	}

	res, err := o.verifier.Verify(ctx, req.Token)
	if ctx.Err() != nil {
		return Identity{}, ErrLoadAbandoned
	}
	if err != nil {
		o.logger.Error("Token verification failed", "error", err)
		return Identity{
			Status:        PhaseFailure,
			FromMagicLink: true,
			Marker:        MarkerUsed,
			AuthError:     fmt.Sprintf("could not verify link: %v", err),
		}, nil
	}
	if !res.Success || res.CaseID == "" {
		msg := res.Error
		if msg == "" {
			msg = "invalid or expired link"
		}
		o.logger.Warn("Magic link rejected", "reason", msg)
		return Identity{Status: PhaseFailure, FromMagicLink: true, Marker: MarkerUsed, AuthError: msg}, nil
	}

	if err := st.setOrigin(ctx, true, res.CaseID); err != nil {
		return Identity{}, err
	}
	if err := st.setMarker(ctx, MarkerConsumed); err != nil {
		return Identity{}, err
	}

	return Identity{
		Status:        PhaseSuccess,
		CaseID:        res.CaseID,
		Email:         res.Email,
		FromMagicLink: true,
		Marker:        MarkerConsumed,
	}, nil
}

// directEntry handles an entry without a token. A session that began with a
// magic link keeps that origin until it ends.
func (o *Orchestrator) directEntry(ctx context.Context, st state, req LoadRequest, marker Marker, fromMagicLink bool, storedCaseID string) (Identity, error) {
	caseID := strings.TrimSpace(req.CaseID)
	if caseID == "" {
		caseID = storedCaseID
	}
	if caseID == "" {
		return Identity{Status: PhaseSkip, Marker: marker}, nil
	}

	if caseID != storedCaseID {
		if err := st.setOrigin(ctx, fromMagicLink, caseID); err != nil {
			return Identity{}, err
		}
	}
	return Identity{Status: PhaseSuccess, CaseID: caseID, FromMagicLink: fromMagicLink, Marker: marker}, nil
}

// resolveCaseData loads the case from the server. Only direct entries fall back
// to the session's cached form, and the API error is kept when they do.
func (o *Orchestrator) resolveCaseData(ctx context.Context, st state, identity Identity, mode entity.CaseMode) (CaseData, error) {
	if identity.Status != PhaseSuccess {
		return CaseData{Status: PhaseSkip}, nil
	}

	data, err := o.fetcher.GetCase(ctx, identity.CaseID, mode)
	if ctx.Err() != nil {
		return CaseData{}, ErrLoadAbandoned
	}
	if err == nil {
		return CaseData{Status: PhaseSuccess, Data: &data}, nil
	}

	result := CaseData{Status: PhaseFailure, APIError: err.Error()}
	if identity.FromMagicLink {
		o.logger.Warn("Case load failed for magic link entry", "case_id", identity.CaseID, "error", err)
		return result, nil
	}

	cached, ok, cerr := cachedForm(ctx, st, identity.CaseID)
	if cerr != nil {
		o.logger.Warn("Failed to read cached form", "case_id", identity.CaseID, "error", cerr)
		return result, nil
	}
	if ok {
		result.Cached = &cached
		result.FromCache = true
		o.logger.Warn("Case load failed, using cached form", "case_id", identity.CaseID, "error", err)
	}
	return result, nil
}

// CacheForm stores the page's working form for a case in the session
func (o *Orchestrator) CacheForm(ctx context.Context, sessionID, caseID string, form entity.CaseState) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	b, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("encode cached form: %w", err)
	}
	return o.sessions.Scope(sessionID).Set(ctx, keyCachedForm+caseID, string(b))
}

// Marker returns the session's magic-link marker
func (o *Orchestrator) Marker(ctx context.Context, sessionID string) (Marker, error) {
	return state{kv: o.sessions.Scope(sessionID)}.marker(ctx)
}

func cachedForm(ctx context.Context, st state, caseID string) (entity.CaseState, bool, error) {
	v, ok, err := st.kv.Get(ctx, keyCachedForm+caseID)
	if err != nil || !ok {
		return entity.CaseState{}, false, err
	}
	var form entity.CaseState
	if err := json.Unmarshal([]byte(v), &form); err != nil {
		return entity.CaseState{}, false, fmt.Errorf("decode cached form: %w", err)
	}
	return form, true, nil
}
