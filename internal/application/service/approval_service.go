package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/koe-workflow/internal/application/dispatcher"
	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/approval"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
	"github.com/garyjia/koe-workflow/internal/domain/event"
	"github.com/garyjia/koe-workflow/internal/domain/validation"
)

// ErrPendingPakkeExists is returned when a case already has a package awaiting approval
var ErrPendingPakkeExists = errors.New("case already has a pending response package")

// ApprovalConfig controls the owner's internal sign-off
type ApprovalConfig struct {
	// Enabled routes responses through the approval chain; otherwise they are released directly
	Enabled   bool
	Policy    approval.Policy
	SelfCheck approval.SelfCheck
}

// ApprovalService manages owner response drafts and their approval packages
type ApprovalService interface {
	SaveDraft(ctx context.Context, caseID string, author entity.Actor, draft entity.DraftResponseData) (entity.DraftResponseData, error)
	GetDraft(ctx context.Context, caseID string, track entity.TrackType) (entity.DraftResponseData, bool)
	ListDrafts(ctx context.Context, caseID string) []entity.DraftResponseData
	DeleteDraft(ctx context.Context, caseID string, track entity.TrackType)

	SubmitPakke(ctx context.Context, caseID string, submitter entity.Actor) (*entity.BhResponsPakke, error)
	ApproveStep(ctx context.Context, pakkeID string, approver entity.Actor, comment string) (*entity.BhResponsPakke, error)
	RejectStep(ctx context.Context, pakkeID string, approver entity.Actor, comment string) (*entity.BhResponsPakke, error)
	RestoreDraftsFromPakke(ctx context.Context, pakkeID string) (bool, error)
	DiscardPakke(ctx context.Context, pakkeID string) error

	GetPakke(ctx context.Context, pakkeID string) (*entity.BhResponsPakke, error)
	ListByCase(ctx context.Context, caseID string) ([]*entity.BhResponsPakke, error)
	NextApprover(ctx context.Context, pakkeID string) (entity.ApprovalStep, bool, error)

	// RemindStale re-notifies approvers whose step has been open longer than age
	RemindStale(ctx context.Context, age time.Duration) (int, error)
}

type approvalServiceImpl struct {
	pakkeRepo  port.PakkeRepository
	drafts     *DraftStore
	cases      CaseService
	notifier   port.ApproverNotifier
	documents  port.DocumentGenerator
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	cfg        ApprovalConfig
	logger     Logger

	locks *keyedLocker
	now   func() time.Time
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	pakkeRepo port.PakkeRepository,
	drafts *DraftStore,
	cases CaseService,
	notifier port.ApproverNotifier,
	documents port.DocumentGenerator,
	txManager port.TransactionManager,
	disp dispatcher.Dispatcher,
	cfg ApprovalConfig,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		pakkeRepo:  pakkeRepo,
		drafts:     drafts,
		cases:      cases,
		notifier:   notifier,
		documents:  documents,
		txManager:  txManager,
		dispatcher: disp,
		cfg:        cfg,
		logger:     logger,
		locks:      newKeyedLocker(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SaveDraft stores a BH response draft against the track's current revision
func (s *approvalServiceImpl) SaveDraft(ctx context.Context, caseID string, author entity.Actor, draft entity.DraftResponseData) (entity.DraftResponseData, error) {
	if author.Party != "" && author.Party != entity.PartyBH {
		return entity.DraftResponseData{}, fmt.Errorf("%w: only the owner drafts responses", ErrWrongMode)
	}

	data, err := s.cases.GetCase(ctx, caseID, entity.ModeSvar)
	if err != nil {
		return entity.DraftResponseData{}, err
	}
	if data.Case.Mode != entity.ModeSvar {
		return entity.DraftResponseData{}, fmt.Errorf("%w: case is in %s", ErrWrongMode, data.Case.Mode)
	}

	t := data.FormData.Track(draft.Track)
	if !t.Initiated {
		return entity.DraftResponseData{}, fmt.Errorf("%w: track %s has no claim", ErrRejectedEntry, draft.Track)
	}

	draft.Author = author
	draft.RespondedToVersion = t.RevisionCount
	if draft.Result == entity.ResultApproved {
		if draft.Track == entity.TrackVederlag && draft.Belop == nil {
			draft.Belop = t.ClaimedAmount
		}
		if draft.Track == entity.TrackFrist && draft.Dager == nil {
			draft.Dager = t.ClaimedDays
		}
	}
	return s.drafts.Save(ctx, caseID, draft)
}

// GetDraft returns the draft for a track
func (s *approvalServiceImpl) GetDraft(ctx context.Context, caseID string, track entity.TrackType) (entity.DraftResponseData, bool) {
	return s.drafts.Get(ctx, caseID, track)
}

// ListDrafts returns the case's drafts in track order
func (s *approvalServiceImpl) ListDrafts(ctx context.Context, caseID string) []entity.DraftResponseData {
	return s.drafts.ListByCase(ctx, caseID)
}

// DeleteDraft removes the draft for a track
func (s *approvalServiceImpl) DeleteDraft(ctx context.Context, caseID string, track entity.TrackType) {
	s.drafts.Delete(ctx, caseID, track)
}

// SubmitPakke bundles the case's drafts into a package with a frozen approval chain.
// With approval disabled the responses are released at once.
func (s *approvalServiceImpl) SubmitPakke(ctx context.Context, caseID string, submitter entity.Actor) (*entity.BhResponsPakke, error) {
	unlock := s.locks.Lock("case:" + caseID)
	defer unlock()

	drafts := s.drafts.ListByCase(ctx, caseID)
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoDrafts, approval.ErrEmptyPakke)
	}

	data, err := s.cases.GetCase(ctx, caseID, entity.ModeSvar)
	if err != nil {
		return nil, err
	}
	if data.Case.Mode != entity.ModeSvar {
		return nil, fmt.Errorf("%w: case is in %s", ErrWrongMode, data.Case.Mode)
	}

	for _, d := range drafts {
		if current := data.FormData.Track(d.Track).RevisionCount; d.RespondedToVersion != current {
			return nil, fmt.Errorf("%w: draft for %s answers revision %d, current is %d", ErrRejectedEntry, d.Track, d.RespondedToVersion, current)
		}
	}

	svar := svarFromDrafts(drafts)
	if err := validationError(validation.ValidateSvar(data.FormData.Revisions, svar)); err != nil {
		return nil, err
	}

	existing, err := s.pakkeRepo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	for _, p := range existing {
		if p.Status == entity.PakkePending {
			return nil, fmt.Errorf("%w: %s", ErrPendingPakkeExists, p.ID)
		}
	}

	now := s.now()
	p, err := approval.NewPakke(caseID, drafts, data.Case.Dagmulktsats, submitter, s.cfg.Policy, now)
	if err != nil {
		return nil, err
	}

	if !s.cfg.Enabled {
		return s.releaseDirectly(ctx, p, svar, now)
	}

	if err := s.pakkeRepo.Create(ctx, p); err != nil {
		s.logger.Error("Failed to create package", "error", err, "case_id", caseID)
		return nil, fmt.Errorf("create package: %w", err)
	}
	s.clearDrafts(ctx, p)

	s.dispatch(ctx, event.NewEvent(event.TypePakkeSubmitted, caseID, map[string]any{
		"pakke_id":     p.ID,
		"samlet_belop": p.SamletBelop,
		"steps":        len(p.Steps),
	}))
	s.notifyNext(ctx, p)

	s.logger.Info("Package submitted",
		"pakke_id", p.ID,
		"case_id", caseID,
		"samlet_belop", p.SamletBelop,
		"steps", len(p.Steps),
	)
	return p, nil
}

func (s *approvalServiceImpl) releaseDirectly(ctx context.Context, p *entity.BhResponsPakke, svar entity.BhSvar, now time.Time) (*entity.BhResponsPakke, error) {
	p.Steps = nil
	p.Status = entity.PakkeApproved
	p.CompletedAt = &now

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.pakkeRepo.Create(txCtx, p); err != nil {
			return fmt.Errorf("create package: %w", err)
		}
		if _, err := s.cases.SubmitSvar(txCtx, p.CaseID, p.SubmittedBy, svar); err != nil {
			return fmt.Errorf("release responses: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to release responses", "error", err, "case_id", p.CaseID)
		return nil, err
	}
	s.clearDrafts(ctx, p)

	s.dispatch(ctx, event.NewEvent(event.TypePakkeApproved, p.CaseID, map[string]any{
		"pakke_id": p.ID,
		"direct":   true,
	}))
	s.logger.Info("Responses released without approval", "pakke_id", p.ID, "case_id", p.CaseID)
	return p, nil
}

// ApproveStep approves the next-in-line step. The last approval releases one
// response per track and attaches the summary document.
func (s *approvalServiceImpl) ApproveStep(ctx context.Context, pakkeID string, approver entity.Actor, comment string) (*entity.BhResponsPakke, error) {
	unlock := s.locks.Lock(pakkeID)
	defer unlock()

	p, err := s.GetPakke(ctx, pakkeID)
	if err != nil {
		return nil, err
	}
	expected := p.Version

	if err := approval.ApproveStep(ctx, p, approver, comment, s.cfg.SelfCheck, s.now()); err != nil {
		s.logger.Warn("Approval refused", "pakke_id", pakkeID, "actor_id", approver.ID, "role", approver.Role, "reason", err)
		return nil, err
	}

	if p.Status != entity.PakkeApproved {
		if err := s.pakkeRepo.Update(ctx, p, expected); err != nil {
			return nil, fmt.Errorf("update package: %w", err)
		}
		s.dispatch(ctx, event.NewEvent(event.TypePakkeStepApproved, p.CaseID, map[string]any{
			"pakke_id": p.ID,
			"role":     approver.Role.String(),
		}))
		s.notifyNext(ctx, p)
		s.logger.Info("Approval step completed", "pakke_id", p.ID, "role", approver.Role)
		return p, nil
	}

	s.attachDocument(ctx, p)

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.pakkeRepo.Update(txCtx, p, expected); err != nil {
			return fmt.Errorf("update package: %w", err)
		}
		if _, err := s.cases.SubmitSvar(txCtx, p.CaseID, p.SubmittedBy, svarFromDrafts(p.Drafts)); err != nil {
			return fmt.Errorf("release responses: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to complete package", "error", err, "pakke_id", p.ID)
		return nil, err
	}

	s.dispatch(ctx, event.NewEventWithCorrelation(event.TypePakkeApproved, p.CaseID, map[string]any{
		"pakke_id":      p.ID,
		"samlet_belop":  p.SamletBelop,
		"document_path": p.DocumentPath,
	}, p.ID))

	s.logger.Info("Package approved", "pakke_id", p.ID, "case_id", p.CaseID)
	return p, nil
}

// RejectStep rejects the next-in-line step and with it the package
func (s *approvalServiceImpl) RejectStep(ctx context.Context, pakkeID string, approver entity.Actor, comment string) (*entity.BhResponsPakke, error) {
	unlock := s.locks.Lock(pakkeID)
	defer unlock()

	p, err := s.GetPakke(ctx, pakkeID)
	if err != nil {
		return nil, err
	}
	expected := p.Version

	if err := approval.RejectStep(ctx, p, approver, comment, s.cfg.SelfCheck, s.now()); err != nil {
		s.logger.Warn("Rejection refused", "pakke_id", pakkeID, "actor_id", approver.ID, "role", approver.Role, "reason", err)
		return nil, err
	}

	if err := s.pakkeRepo.Update(ctx, p, expected); err != nil {
		return nil, fmt.Errorf("update package: %w", err)
	}

	s.dispatch(ctx, event.NewEvent(event.TypePakkeRejected, p.CaseID, map[string]any{
		"pakke_id": p.ID,
		"role":     approver.Role.String(),
		"comment":  comment,
	}))
	s.logger.Info("Package rejected", "pakke_id", p.ID, "role", approver.Role)
	return p, nil
}

// RestoreDraftsFromPakke turns a rejected package back into editable drafts
func (s *approvalServiceImpl) RestoreDraftsFromPakke(ctx context.Context, pakkeID string) (bool, error) {
	p, err := s.GetPakke(ctx, pakkeID)
	if err != nil {
		return false, err
	}

	drafts, ok := approval.RestoreDrafts(p, s.now())
	if !ok {
		s.logger.Info("Package not restorable", "pakke_id", pakkeID, "status", p.Status)
		return false, nil
	}

	for _, d := range drafts {
		if _, err := s.drafts.Save(ctx, p.CaseID, d); err != nil {
			return false, fmt.Errorf("restore draft %s: %w", d.Track, err)
		}
	}
	s.logger.Info("Drafts restored from package", "pakke_id", pakkeID, "drafts", len(drafts))
	return true, nil
}

// DiscardPakke deletes a rejected package
func (s *approvalServiceImpl) DiscardPakke(ctx context.Context, pakkeID string) error {
	unlock := s.locks.Lock(pakkeID)
	defer unlock()

	p, err := s.GetPakke(ctx, pakkeID)
	if err != nil {
		return err
	}
	if p.Status != entity.PakkeRejected {
		return fmt.Errorf("%w: %s", approval.ErrPakkeNotRejected, p.Status)
	}

	if err := s.pakkeRepo.Delete(ctx, pakkeID); err != nil {
		return fmt.Errorf("delete package: %w", err)
	}

	s.dispatch(ctx, event.NewEvent(event.TypePakkeDiscarded, p.CaseID, map[string]any{"pakke_id": p.ID}))
	return nil
}

// GetPakke retrieves a package by ID
func (s *approvalServiceImpl) GetPakke(ctx context.Context, pakkeID string) (*entity.BhResponsPakke, error) {
	p, err := s.pakkeRepo.GetByID(ctx, pakkeID)
	if err != nil {
		s.logger.Error("Failed to get package", "error", err, "pakke_id", pakkeID)
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPakkeNotFound, pakkeID)
	}
	return p, nil
}

// ListByCase returns a case's packages
func (s *approvalServiceImpl) ListByCase(ctx context.Context, caseID string) ([]*entity.BhResponsPakke, error) {
	return s.pakkeRepo.ListByCase(ctx, caseID)
}

// NextApprover returns the step awaiting a decision
func (s *approvalServiceImpl) NextApprover(ctx context.Context, pakkeID string) (entity.ApprovalStep, bool, error) {
	p, err := s.GetPakke(ctx, pakkeID)
	if err != nil {
		return entity.ApprovalStep{}, false, err
	}
	if p.Status != entity.PakkePending {
		return entity.ApprovalStep{}, false, nil
	}
	idx, ok := approval.NextApprover(p.Steps)
	if !ok {
		return entity.ApprovalStep{}, false, nil
	}
	return p.Steps[idx], true, nil
}

// RemindStale re-notifies approvers whose step has been open longer than age
func (s *approvalServiceImpl) RemindStale(ctx context.Context, age time.Duration) (int, error) {
	pending, err := s.pakkeRepo.ListPending(ctx, s.now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("list pending packages: %w", err)
	}

	sent := 0
	for _, p := range pending {
		if s.notifyNext(ctx, p) {
			sent++
		}
	}
	return sent, nil
}

func (s *approvalServiceImpl) attachDocument(ctx context.Context, p *entity.BhResponsPakke) {
	if s.documents == nil {
		return
	}
	path, err := s.documents.Generate(ctx, p)
	if err != nil {
		s.logger.Warn("Failed to generate package document", "pakke_id", p.ID, "error", err)
		return
	}
	p.DocumentPath = path
}

// notifyNext tells the holder of the open step; failures only warn
func (s *approvalServiceImpl) notifyNext(ctx context.Context, p *entity.BhResponsPakke) bool {
	if s.notifier == nil {
		return false
	}
	idx, ok := approval.NextApprover(p.Steps)
	if !ok {
		return false
	}
	if err := s.notifier.NotifyNextApprover(ctx, p, p.Steps[idx]); err != nil {
		s.logger.Warn("Failed to notify approver", "pakke_id", p.ID, "role", p.Steps[idx].Role, "error", err)
		return false
	}
	return true
}

func (s *approvalServiceImpl) clearDrafts(ctx context.Context, p *entity.BhResponsPakke) {
	for _, d := range p.Drafts {
		s.drafts.Delete(ctx, p.CaseID, d.Track)
	}
}

func (s *approvalServiceImpl) dispatch(ctx context.Context, evt *event.Event) {
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, evt)
	}
}

// svarFromDrafts assembles the owner response carried by a set of drafts
func svarFromDrafts(drafts []entity.DraftResponseData) entity.BhSvar {
	svar := entity.BhSvar{Responses: make([]entity.TrackResponse, 0, len(drafts))}
	for _, d := range drafts {
		svar.Responses = append(svar.Responses, entity.TrackResponse{
			Track:           d.Track,
			Result:          d.Result,
			ApprovedAmount:  d.Belop,
			ApprovedDays:    d.Dager,
			SubsidiaryValue: d.SubsidiaryValue,
			Justification:   d.Begrunnelse,
		})
	}
	return svar
}
