package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/koe-workflow/internal/application/dispatcher"
	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/application/workflow"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
	"github.com/garyjia/koe-workflow/internal/domain/event"
	"github.com/garyjia/koe-workflow/internal/domain/ledger"
	"github.com/garyjia/koe-workflow/internal/domain/projection"
	"github.com/garyjia/koe-workflow/internal/domain/transition"
	"github.com/garyjia/koe-workflow/internal/domain/validation"
)

// CreateCaseInput describes a new case
type CreateCaseInput struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	TopicGUID    string          `json:"topic_guid"`
	Dagmulktsats float64         `json:"dagmulktsats"`
	StartMode    entity.CaseMode `json:"start_mode"`
}

// SubmissionResult is the outcome of a phase submission
type SubmissionResult struct {
	Entries    []entity.RevisionEntry `json:"entries"`
	Transition transition.Result      `json:"transition"`
	State      entity.CaseState       `json:"state"`
}

// CaseService owns the case registry and every write to the revision ledger
type CaseService interface {
	port.CaseFetcher
	port.EventSubmitter

	CreateCase(ctx context.Context, in CreateCaseInput) (*entity.Case, error)
	ListCases(ctx context.Context, limit, offset int) ([]*entity.Case, error)
	History(ctx context.Context, caseID string) ([]*entity.CaseHistory, error)
	Project(ctx context.Context, caseID string) (*entity.Case, projection.CaseProjection, error)
	RegisterContact(ctx context.Context, contact entity.Contact) error

	SubmitVarsel(ctx context.Context, caseID string, actor entity.Actor, g entity.GrunnlagData) (*SubmissionResult, error)
	SubmitKoe(ctx context.Context, caseID string, actor entity.Actor, rev entity.KoeRevision) (*SubmissionResult, error)
	SubmitSvar(ctx context.Context, caseID string, actor entity.Actor, svar entity.BhSvar) (*SubmissionResult, error)
	Accept(ctx context.Context, caseID string, actor entity.Actor) (*SubmissionResult, error)

	ValidateStep(ctx context.Context, caseID string, step int, form *entity.CaseState) (validation.Result, error)
	PreviewTransition(ctx context.Context, caseID string, mode entity.CaseMode) (transition.Result, error)
}

// CaseServiceConfig holds case defaults
type CaseServiceConfig struct {
	DefaultDagmulktsats float64
}

type caseServiceImpl struct {
	caseRepo     port.CaseRepository
	historyRepo  port.CaseHistoryRepository
	revisionRepo port.RevisionRepository
	contactRepo  port.ContactRepository
	signers      port.SignerValidator
	engine       workflow.CaseEngine
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	cfg          CaseServiceConfig
	logger       Logger

	locks *keyedLocker
	now   func() time.Time
}

// NewCaseService creates a new CaseService
func NewCaseService(
	caseRepo port.CaseRepository,
	historyRepo port.CaseHistoryRepository,
	revisionRepo port.RevisionRepository,
	contactRepo port.ContactRepository,
	signers port.SignerValidator,
	engine workflow.CaseEngine,
	txManager port.TransactionManager,
	disp dispatcher.Dispatcher,
	cfg CaseServiceConfig,
	logger Logger,
) CaseService {
	return &caseServiceImpl{
		caseRepo:     caseRepo,
		historyRepo:  historyRepo,
		revisionRepo: revisionRepo,
		contactRepo:  contactRepo,
		signers:      signers,
		engine:       engine,
		txManager:    txManager,
		dispatcher:   disp,
		cfg:          cfg,
		logger:       logger,
		locks:        newKeyedLocker(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateCase registers a new case
func (s *caseServiceImpl) CreateCase(ctx context.Context, in CreateCaseInput) (*entity.Case, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = "SAK-" + strings.ToUpper(uuid.NewString()[:8])
	}

	mode := in.StartMode
	if mode == entity.ModeUnset {
		mode = entity.ModeVarsel
	}
	if mode != entity.ModeVarsel && mode != entity.ModeKoe {
		return nil, fmt.Errorf("%w: a case starts in varsel or koe, not %q", ErrWrongMode, mode)
	}

	rate := in.Dagmulktsats
	if rate <= 0 {
		rate = s.cfg.DefaultDagmulktsats
	}

	now := s.now()
	c := &entity.Case{
		ID:           id,
		Title:        in.Title,
		TopicGUID:    in.TopicGUID,
		Status:       entity.CaseStatusUtkast,
		Mode:         mode,
		Dagmulktsats: rate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.caseRepo.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("get case: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ErrCaseExists, id)
		}

		if err := s.caseRepo.Create(txCtx, c); err != nil {
			return fmt.Errorf("create case: %w", err)
		}

		history := &entity.CaseHistory{
			CaseID:    id,
			ActorID:   "system",
			NewStatus: c.Status,
			NewMode:   c.Mode,
			Trigger:   "CREATE",
			Timestamp: now,
		}
		if err := s.historyRepo.Create(txCtx, history); err != nil {
			return fmt.Errorf("create history: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create case", "error", err, "case_id", id)
		return nil, err
	}

	s.dispatch(ctx, event.NewEvent(event.TypeCaseCreated, id, map[string]any{
		"title": c.Title,
		"mode":  c.Mode.String(),
	}))

	s.logger.Info("Case created", "case_id", id, "mode", c.Mode)
	return c, nil
}

// ListCases retrieves a paginated list of cases
func (s *caseServiceImpl) ListCases(ctx context.Context, limit, offset int) ([]*entity.Case, error) {
	cases, err := s.caseRepo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list cases", "error", err, "limit", limit, "offset", offset)
		return nil, err
	}
	return cases, nil
}

// History returns the case's status changes
func (s *caseServiceImpl) History(ctx context.Context, caseID string) ([]*entity.CaseHistory, error) {
	if _, err := s.getCase(ctx, caseID); err != nil {
		return nil, err
	}
	return s.historyRepo.ListByCase(ctx, caseID)
}

// RegisterContact adds or updates a person on the case
func (s *caseServiceImpl) RegisterContact(ctx context.Context, contact entity.Contact) error {
	if _, err := s.getCase(ctx, contact.CaseID); err != nil {
		return err
	}
	contact.Email = strings.ToLower(strings.TrimSpace(contact.Email))
	if contact.Email == "" {
		return fmt.Errorf("contact email is required")
	}
	if contact.Party != entity.PartyTE && contact.Party != entity.PartyBH {
		return fmt.Errorf("unknown party %q", contact.Party)
	}
	return s.contactRepo.Upsert(ctx, &contact)
}

// GetCase implements port.CaseFetcher. mode is the phase the caller intends to
// work in; the stored phase is returned either way.
func (s *caseServiceImpl) GetCase(ctx context.Context, caseID string, mode entity.CaseMode) (port.CaseData, error) {
	if !mode.IsValid() {
		return port.CaseData{}, fmt.Errorf("%w: unknown mode %q", ErrWrongMode, mode)
	}

	c, proj, err := s.Project(ctx, caseID)
	if err != nil {
		return port.CaseData{}, err
	}

	return port.CaseData{
		Case:      *c,
		FormData:  proj.State,
		TopicGUID: c.TopicGUID,
	}, nil
}

// Project replays the case's ledger
func (s *caseServiceImpl) Project(ctx context.Context, caseID string) (*entity.Case, projection.CaseProjection, error) {
	c, l, err := s.load(ctx, caseID)
	if err != nil {
		return nil, projection.CaseProjection{}, err
	}
	proj := s.project(c, l.Entries())
	for _, a := range proj.Anomalies {
		s.logger.Warn("Skipped revision entry during projection", "case_id", caseID, "anomaly", a.String())
	}
	return c, proj, nil
}

// Submit implements port.EventSubmitter: it commits one track action that does not
// by itself close a phase, such as opening a claim for review or withdrawing it.
// Accepting the last open track closes a case in revision.
func (s *caseServiceImpl) Submit(ctx context.Context, entry entity.RevisionEntry) (port.SubmitResult, error) {
	if entry.Kind.CreatesRevision() || entry.Kind == entity.EntryResponse {
		return port.SubmitResult{}, fmt.Errorf("%w: %s entries are submitted with their phase", ErrWrongMode, entry.Kind)
	}

	unlock := s.locks.Lock(entry.CaseID)
	defer unlock()

	c, l, err := s.load(ctx, entry.CaseID)
	if err != nil {
		return port.SubmitResult{}, err
	}

	staged, err := s.stage(c, l, []entity.RevisionEntry{entry})
	if err != nil {
		return port.SubmitResult{}, err
	}
	state := s.project(c, l.Entries()).State

	if entry.Kind == entity.EntryAccept && c.Mode == entity.ModeRevidering && allAccepted(state) {
		if _, err := s.engine.Accept(ctx, c.ID, entry.Actor, s.persistStep(staged)); err != nil {
			return port.SubmitResult{}, err
		}
	} else {
		if err := s.txManager.WithTransaction(ctx, s.persistStep(staged)); err != nil {
			s.logger.Error("Failed to append entry", "error", err, "case_id", c.ID, "track", entry.Track)
			return port.SubmitResult{}, err
		}
	}

	s.announce(ctx, staged)
	return port.SubmitResult{Entry: staged[0]}, nil
}

// SubmitVarsel records the liability-basis notice
func (s *caseServiceImpl) SubmitVarsel(ctx context.Context, caseID string, actor entity.Actor, g entity.GrunnlagData) (*SubmissionResult, error) {
	if err := validationError(validation.ValidateGrunnlag(g)); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(caseID)
	defer unlock()

	c, l, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Mode != entity.ModeVarsel {
		return nil, fmt.Errorf("%w: case is in %s", ErrWrongMode, c.Mode)
	}

	grunnlag := g
	entry := entity.RevisionEntry{
		Track:    entity.TrackGrunnlag,
		Kind:     s.claimKind(s.project(c, l.Entries()).State.Track(entity.TrackGrunnlag)),
		Actor:    actor,
		Grunnlag: &grunnlag,
	}

	return s.commit(ctx, c, l, entity.ModeVarsel, actor, []entity.RevisionEntry{entry})
}

// SubmitKoe sends a new claim revision covering the payment and time-extension tracks
func (s *caseServiceImpl) SubmitKoe(ctx context.Context, caseID string, actor entity.Actor, rev entity.KoeRevision) (*SubmissionResult, error) {
	unlock := s.locks.Lock(caseID)
	defer unlock()

	c, l, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}

	mode := entity.ModeKoe
	switch c.Mode {
	case entity.ModeRevidering:
		mode = entity.ModeRevidering
	case entity.ModeVarsel, entity.ModeKoe, entity.ModeUnset:
	default:
		return nil, fmt.Errorf("%w: case is in %s", ErrWrongMode, c.Mode)
	}

	state := s.project(c, l.Entries()).State
	rev.Number = len(state.Revisions)
	rev.VederlagResult, rev.FristResult = entity.ResultNone, entity.ResultNone

	result := validation.ValidateKoe(append(append([]entity.KoeRevision(nil), state.Revisions...), rev))
	if rev.Signer != nil && rev.Signer.Email != "" {
		signer, err := s.signers.Validate(ctx, caseID, rev.Signer.Email)
		if err != nil {
			return nil, fmt.Errorf("validate signer: %w", err)
		}
		if !signer.Success {
			result = result.WithError(validation.FieldSignatur, signer.Error)
		} else {
			rev.Signer = &entity.Signer{Email: strings.ToLower(strings.TrimSpace(rev.Signer.Email)), Name: signer.Name}
		}
	}
	if err := validationError(result); err != nil {
		return nil, err
	}

	payload := map[string]any{projection.KoeRevisionKey: rev.Number}
	var entries []entity.RevisionEntry

	vederlag := state.Track(entity.TrackVederlag)
	if rev.Vederlag.Claimed {
		entries = append(entries, entity.RevisionEntry{
			Track:         entity.TrackVederlag,
			Kind:          s.claimKind(vederlag),
			Actor:         actor,
			Amount:        rev.Vederlag.Amount,
			Method:        rev.Vederlag.Method,
			Justification: rev.Vederlag.Justification,
			Signer:        rev.Signer,
			Payload:       payload,
		})
	} else if withdrawable(vederlag) {
		entries = append(entries, entity.RevisionEntry{Track: entity.TrackVederlag, Kind: entity.EntryWithdraw, Actor: actor})
	}

	frist := state.Track(entity.TrackFrist)
	if rev.Frist.Claimed {
		entries = append(entries, entity.RevisionEntry{
			Track:         entity.TrackFrist,
			Kind:          s.claimKind(frist),
			Actor:         actor,
			Days:          rev.Frist.Days,
			ExtensionType: rev.Frist.Type,
			Justification: rev.Frist.Justification,
			Signer:        rev.Signer,
			Payload:       payload,
		})
	} else if withdrawable(frist) {
		entries = append(entries, entity.RevisionEntry{Track: entity.TrackFrist, Kind: entity.EntryWithdraw, Actor: actor})
	}

	return s.commit(ctx, c, l, mode, actor, entries)
}

// SubmitSvar records the owner's response to the latest claim revision
func (s *caseServiceImpl) SubmitSvar(ctx context.Context, caseID string, actor entity.Actor, svar entity.BhSvar) (*SubmissionResult, error) {
	unlock := s.locks.Lock(caseID)
	defer unlock()

	c, l, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Mode != entity.ModeSvar {
		return nil, fmt.Errorf("%w: case is in %s", ErrWrongMode, c.Mode)
	}

	state := s.project(c, l.Entries()).State
	if err := validationError(validation.ValidateSvar(state.Revisions, svar)); err != nil {
		return nil, err
	}

	var entries []entity.RevisionEntry
	for _, resp := range svar.Responses {
		t := state.Track(resp.Track)
		if !t.Initiated || t.Status == entity.TrackStatusWithdrawn || t.Status == entity.TrackStatusLocked {
			s.logger.Info("Ignoring response to inactive track", "case_id", caseID, "track", resp.Track, "status", t.Status)
			continue
		}
		entries = append(entries, entity.RevisionEntry{
			Track:              resp.Track,
			Kind:               entity.EntryResponse,
			Actor:              actor,
			Result:             resp.Result,
			RespondedToVersion: t.RevisionCount,
			ApprovedValue:      approvedValue(resp, t),
			SubsidiaryValue:    resp.SubsidiaryValue,
			Justification:      resp.Justification,
		})
	}

	return s.commit(ctx, c, l, entity.ModeSvar, actor, entries)
}

// Accept locks every track carrying an owner result and closes the case
func (s *caseServiceImpl) Accept(ctx context.Context, caseID string, actor entity.Actor) (*SubmissionResult, error) {
	unlock := s.locks.Lock(caseID)
	defer unlock()

	c, l, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Mode != entity.ModeRevidering {
		return nil, fmt.Errorf("%w: case is in %s", ErrWrongMode, c.Mode)
	}

	state := s.project(c, l.Entries()).State
	var entries []entity.RevisionEntry
	for _, track := range entity.AllTracks {
		if state.Track(track).CanBeAccepted() {
			entries = append(entries, entity.RevisionEntry{Track: track, Kind: entity.EntryAccept, Actor: actor})
		}
	}
	if len(entries) == 0 {
		return nil, ErrNothingToAccept
	}

	staged, err := s.stage(c, l, entries)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Accept(ctx, c.ID, actor, s.persistStep(staged))
	if err != nil {
		s.logger.Error("Failed to accept case", "error", err, "case_id", c.ID)
		return nil, err
	}

	s.announce(ctx, staged)
	return s.submission(c, l, staged, result), nil
}

// ValidateStep validates a workflow step against form, or the stored case when form is nil
func (s *caseServiceImpl) ValidateStep(ctx context.Context, caseID string, step int, form *entity.CaseState) (validation.Result, error) {
	if form != nil {
		return validation.ValidateForStep(*form, step), nil
	}
	_, proj, err := s.Project(ctx, caseID)
	if err != nil {
		return validation.Result{}, err
	}
	return validation.ValidateForStep(proj.State, step), nil
}

// PreviewTransition reports where a submission in mode would take the case
func (s *caseServiceImpl) PreviewTransition(ctx context.Context, caseID string, mode entity.CaseMode) (transition.Result, error) {
	_, proj, err := s.Project(ctx, caseID)
	if err != nil {
		return transition.Result{}, err
	}
	return s.engine.Preview(ctx, caseID, mode, proj.State)
}

// commit stages entries, applies the phase transition and persists both atomically
func (s *caseServiceImpl) commit(ctx context.Context, c *entity.Case, l *ledger.Ledger, mode entity.CaseMode, actor entity.Actor, entries []entity.RevisionEntry) (*SubmissionResult, error) {
	staged, err := s.stage(c, l, entries)
	if err != nil {
		return nil, err
	}

	state := s.project(c, l.Entries()).State
	result, err := s.engine.Apply(ctx, c.ID, mode, actor, state, s.persistStep(staged))
	if err != nil {
		s.logger.Error("Failed to apply transition", "error", err, "case_id", c.ID, "mode", mode)
		return nil, err
	}

	s.announce(ctx, staged)
	s.logger.Info("Submission committed",
		"case_id", c.ID,
		"mode", mode,
		"entries", len(staged),
		"next_status", result.NextStatus,
		"next_mode", result.NextMode,
	)
	return s.submission(c, l, staged, result), nil
}

func (s *caseServiceImpl) submission(c *entity.Case, l *ledger.Ledger, staged []entity.RevisionEntry, result transition.Result) *SubmissionResult {
	state := s.project(c, l.Entries()).State
	state.Status, state.Mode = result.NextStatus, result.NextMode
	return &SubmissionResult{Entries: staged, Transition: result, State: state}
}

// stage appends entries to the in-memory ledger and refuses any the track rules would skip
func (s *caseServiceImpl) stage(c *entity.Case, l *ledger.Ledger, entries []entity.RevisionEntry) ([]entity.RevisionEntry, error) {
	now := s.now()
	staged := make([]entity.RevisionEntry, 0, len(entries))
	for _, e := range entries {
		if e.CaseID == "" {
			e.CaseID = c.ID
		}
		e.RecordedAt = now
		stored, err := l.Append(e)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRejectedEntry, err)
		}
		staged = append(staged, stored)
	}

	proj := s.project(c, l.Entries())
	for _, a := range proj.Anomalies {
		for _, e := range staged {
			if a.Track == e.Track && a.Seq == e.Seq {
				return nil, fmt.Errorf("%w: %s", ErrRejectedEntry, a.Reason)
			}
		}
	}
	return staged, nil
}

func (s *caseServiceImpl) persistStep(entries []entity.RevisionEntry) workflow.TxStep {
	return func(txCtx context.Context) error {
		for i := range entries {
			if err := s.revisionRepo.Append(txCtx, &entries[i]); err != nil {
				return fmt.Errorf("append revision entry: %w", err)
			}
		}
		return nil
	}
}

// announce dispatches committed entries
func (s *caseServiceImpl) announce(ctx context.Context, entries []entity.RevisionEntry) {
	for _, e := range entries {
		payload := map[string]any{
			"track": e.Track.String(),
			"seq":   e.Seq,
			"kind":  string(e.Kind),
			"party": string(e.Party),
		}
		s.dispatch(ctx, event.NewEvent(event.TypeRevisionAppended, e.CaseID, payload))

		if e.Kind == entity.EntryResponse {
			s.dispatch(ctx, event.NewEvent(event.TypeResponseReleased, e.CaseID, map[string]any{
				"track":                e.Track.String(),
				"result":               e.Result.String(),
				"responded_to_version": e.RespondedToVersion,
			}))
		}
	}
}

func (s *caseServiceImpl) dispatch(ctx context.Context, evt *event.Event) {
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, evt)
	}
}

func (s *caseServiceImpl) load(ctx context.Context, caseID string) (*entity.Case, *ledger.Ledger, error) {
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}

	stored, err := s.revisionRepo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, nil, fmt.Errorf("list revision entries: %w", err)
	}

	l, err := ledger.Load(caseID, stored)
	if err != nil {
		return nil, nil, fmt.Errorf("load ledger: %w", err)
	}
	return c, l, nil
}

func (s *caseServiceImpl) getCase(ctx context.Context, caseID string) (*entity.Case, error) {
	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	return c, nil
}

func (s *caseServiceImpl) project(c *entity.Case, entries []entity.RevisionEntry) projection.CaseProjection {
	proj := projection.ProjectCase(c.ID, entries, nil)
	proj.State.Status = c.Status
	proj.State.Mode = c.Mode
	return proj
}

// claimKind is send for a track's first claim and revise afterwards
func (s *caseServiceImpl) claimKind(t entity.Track) entity.EntryKind {
	if !t.Initiated {
		return entity.EntrySend
	}
	return entity.EntryRevise
}

func withdrawable(t entity.Track) bool {
	return t.Initiated && t.Status != entity.TrackStatusWithdrawn && t.Status != entity.TrackStatusLocked
}

// allAccepted reports whether every live claim track is locked
func allAccepted(state entity.CaseState) bool {
	for _, track := range []entity.TrackType{entity.TrackVederlag, entity.TrackFrist} {
		t := state.Track(track)
		if t.Initiated && t.Status != entity.TrackStatusWithdrawn && t.Status != entity.TrackStatusLocked {
			return false
		}
	}
	return true
}

// approvedValue is the value the owner approved for a track, in NOK or days
func approvedValue(resp entity.TrackResponse, t entity.Track) *float64 {
	switch resp.Track {
	case entity.TrackVederlag:
		if resp.ApprovedAmount != nil {
			v := *resp.ApprovedAmount
			return &v
		}
		if resp.Result == entity.ResultApproved && t.ClaimedAmount != nil {
			v := *t.ClaimedAmount
			return &v
		}
	case entity.TrackFrist:
		if resp.ApprovedDays != nil {
			v := float64(*resp.ApprovedDays)
			return &v
		}
		if resp.Result == entity.ResultApproved && t.ClaimedDays != nil {
			v := float64(*t.ClaimedDays)
			return &v
		}
	}
	return nil
}
