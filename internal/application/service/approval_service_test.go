package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/approval"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

var pl2 = entity.Actor{ID: "bh-pl2", Role: entity.RolePL, Party: entity.PartyBH}

func enabledConfig() ApprovalConfig {
	return ApprovalConfig{Enabled: true, Policy: approval.DefaultPolicy()}
}

// draftApprovals saves drafts approving both claimed tracks as claimed
func draftApprovals(t *testing.T, w *testWorld, caseID string) {
	t.Helper()
	ctx := context.Background()
	for _, track := range []entity.TrackType{entity.TrackVederlag, entity.TrackFrist} {
		_, err := w.approvalSvc.SaveDraft(ctx, caseID, pl, entity.DraftResponseData{Track: track, Result: entity.ResultApproved})
		require.NoError(t, err)
	}
}

func TestApprovalService_SaveDraft(t *testing.T) {
	w := newTestWorld(enabledConfig())
	ctx := context.Background()
	caseID := caseInSvar(t, w, 100_000, 10)

	d, err := w.approvalSvc.SaveDraft(ctx, caseID, pl, entity.DraftResponseData{Track: entity.TrackVederlag, Result: entity.ResultApproved})
	require.NoError(t, err)
	assert.Equal(t, pl, d.Author)
	assert.Equal(t, 0, d.RespondedToVersion)
	require.NotNil(t, d.Belop)
	assert.Equal(t, 100_000.0, *d.Belop)

	_, err = w.approvalSvc.SaveDraft(ctx, caseID, teActor, entity.DraftResponseData{Track: entity.TrackFrist})
	assert.ErrorIs(t, err, ErrWrongMode)

	_, err = w.approvalSvc.SaveDraft(ctx, caseID, pl, entity.DraftResponseData{Track: entity.TrackGrunnlag})
	assert.ErrorIs(t, err, ErrRejectedEntry)

	_, ok := w.approvalSvc.GetDraft(ctx, caseID, entity.TrackVederlag)
	assert.True(t, ok)
	w.approvalSvc.DeleteDraft(ctx, caseID, entity.TrackVederlag)
	assert.Empty(t, w.approvalSvc.ListDrafts(ctx, caseID))
}

func TestApprovalService_SubmitPakke_NoDrafts(t *testing.T) {
	w := newTestWorld(enabledConfig())
	caseID := caseInSvar(t, w, 100_000, 10)

	_, err := w.approvalSvc.SubmitPakke(context.Background(), caseID, pl)
	assert.ErrorIs(t, err, ErrNoDrafts)
	assert.ErrorIs(t, err, approval.ErrEmptyPakke)
}

func TestApprovalService_ThreeStepChain(t *testing.T) {
	w := newTestWorld(enabledConfig())
	ctx := context.Background()
	caseID := caseInSvar(t, w, 100_000, 10)
	draftApprovals(t, w, caseID)

	p, err := w.approvalSvc.SubmitPakke(ctx, caseID, pl)
	require.NoError(t, err)
	assert.Equal(t, 100_000.0, p.VederlagBelop)
	assert.Equal(t, 500_000.0, p.FristBelop)
	assert.Equal(t, 600_000.0, p.SamletBelop)
	require.Len(t, p.Steps, 3)
	assert.Equal(t, []entity.ApprovalRole{entity.RolePL}, w.notifier.calls)
	assert.Empty(t, w.approvalSvc.ListDrafts(ctx, caseID), "drafts move into the package")

	_, err = w.approvalSvc.ApproveStep(ctx, p.ID, pl, "ok")
	assert.ErrorIs(t, err, approval.ErrSelfApproval)

	_, err = w.approvalSvc.ApproveStep(ctx, p.ID, sl, "ok")
	assert.ErrorIs(t, err, approval.ErrNotNextApprover)

	stored, err := w.approvalSvc.GetPakke(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StepInProgress, stored.Steps[0].Status, "refusals leave the package untouched")
	assert.Equal(t, 1, stored.Version)

	p, err = w.approvalSvc.ApproveStep(ctx, p.ID, pl2, "kontrollert")
	require.NoError(t, err)
	assert.Equal(t, entity.PakkePending, p.Status)

	next, ok, err := w.approvalSvc.NextApprover(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entity.RoleSL, next.Role)

	_, err = w.approvalSvc.ApproveStep(ctx, p.ID, sl, "")
	require.NoError(t, err)
	p, err = w.approvalSvc.ApproveStep(ctx, p.ID, al, "godkjent")
	require.NoError(t, err)

	assert.Equal(t, entity.PakkeApproved, p.Status)
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, "pakker/"+p.ID+".xlsx", p.DocumentPath)
	assert.Equal(t, 4, p.Version)
	assert.Equal(t, []entity.ApprovalRole{entity.RolePL, entity.RoleSL, entity.RoleAL}, w.notifier.calls)

	data, err := w.caseSvc.GetCase(ctx, caseID, entity.ModeUnset)
	require.NoError(t, err)
	assert.Equal(t, entity.CaseStatusOmforent, data.Case.Status)
	assert.Equal(t, entity.ResultApproved, data.FormData.Track(entity.TrackVederlag).OwnerResult)
	assert.Equal(t, entity.ResultApproved, data.FormData.Track(entity.TrackFrist).OwnerResult)

	_, err = w.approvalSvc.ApproveStep(ctx, p.ID, al, "")
	assert.ErrorIs(t, err, approval.ErrPakkeNotPending)

	_, ok, err = w.approvalSvc.NextApprover(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApprovalService_DocumentFailureOnlyWarns(t *testing.T) {
	w := newTestWorld(enabledConfig())
	w.documents.generateFunc = func(ctx context.Context, p *entity.BhResponsPakke) (string, error) {
		return "", errors.New("disk full")
	}
	ctx := context.Background()
	caseID := caseInSvar(t, w, 50_000, 1)
	draftApprovals(t, w, caseID)

	p, err := w.approvalSvc.SubmitPakke(ctx, caseID, pl)
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)

	p, err = w.approvalSvc.ApproveStep(ctx, p.ID, pl2, "")
	require.NoError(t, err)
	assert.Equal(t, entity.PakkeApproved, p.Status)
	assert.Empty(t, p.DocumentPath)
}

func TestApprovalService_RejectRestoreDiscard(t *testing.T) {
	w := newTestWorld(enabledConfig())
	ctx := context.Background()
	caseID := caseInSvar(t, w, 100_000, 10)

	_, err := w.approvalSvc.SaveDraft(ctx, caseID, pl, entity.DraftResponseData{
		Track:       entity.TrackVederlag,
		Result:      entity.ResultPartiallyApproved,
		Belop:       fp(60_000),
		Begrunnelse: "påslag ikke dokumentert",
		FormData:    map[string]any{"vedlegg": "faktura.pdf"},
	})
	require.NoError(t, err)
	_, err = w.approvalSvc.SaveDraft(ctx, caseID, pl, entity.DraftResponseData{Track: entity.TrackFrist, Result: entity.ResultApproved})
	require.NoError(t, err)

	p, err := w.approvalSvc.SubmitPakke(ctx, caseID, pl)
	require.NoError(t, err)
	require.Len(t, p.Steps, 3)

	restored, err := w.approvalSvc.RestoreDraftsFromPakke(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, restored, "pending packages cannot be restored")
	assert.ErrorIs(t, w.approvalSvc.DiscardPakke(ctx, p.ID), approval.ErrPakkeNotRejected)

	_, err = w.approvalSvc.ApproveStep(ctx, p.ID, pl2, "")
	require.NoError(t, err)
	p, err = w.approvalSvc.RejectStep(ctx, p.ID, sl, "for dyrt")
	require.NoError(t, err)
	assert.Equal(t, entity.PakkeRejected, p.Status)
	assert.Equal(t, entity.StepApproved, p.Steps[0].Status)
	assert.Equal(t, entity.StepRejected, p.Steps[1].Status)
	assert.Equal(t, entity.StepPending, p.Steps[2].Status)

	data, err := w.caseSvc.GetCase(ctx, caseID, entity.ModeSvar)
	require.NoError(t, err)
	assert.Equal(t, entity.ModeSvar, data.Case.Mode, "a rejected package releases nothing")

	restored, err = w.approvalSvc.RestoreDraftsFromPakke(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, restored)
	d, ok := w.approvalSvc.GetDraft(ctx, caseID, entity.TrackVederlag)
	require.True(t, ok)
	assert.Equal(t, 60_000.0, *d.Belop)
	assert.Equal(t, "faktura.pdf", d.FormData["vedlegg"])

	require.NoError(t, w.approvalSvc.DiscardPakke(ctx, p.ID))
	_, err = w.approvalSvc.GetPakke(ctx, p.ID)
	assert.ErrorIs(t, err, ErrPakkeNotFound)
}

func TestApprovalService_OnePendingPakkePerCase(t *testing.T) {
	w := newTestWorld(enabledConfig())
	ctx := context.Background()
	caseID := caseInSvar(t, w, 100_000, 10)
	draftApprovals(t, w, caseID)

	_, err := w.approvalSvc.SubmitPakke(ctx, caseID, pl)
	require.NoError(t, err)

	draftApprovals(t, w, caseID)
	_, err = w.approvalSvc.SubmitPakke(ctx, caseID, pl)
	assert.ErrorIs(t, err, ErrPendingPakkeExists)
}

func TestApprovalService_RoleOnlySelfCheck(t *testing.T) {
	cfg := enabledConfig()
	cfg.SelfCheck = approval.SelfCheckRole
	w := newTestWorld(cfg)
	ctx := context.Background()
	caseID := caseInSvar(t, w, 50_000, 1)
	draftApprovals(t, w, caseID)

	p, err := w.approvalSvc.SubmitPakke(ctx, caseID, pl)
	require.NoError(t, err)

	_, err = w.approvalSvc.ApproveStep(ctx, p.ID, pl2, "")
	assert.ErrorIs(t, err, approval.ErrSelfApproval)
}

func TestApprovalService_DisabledReleasesDirectly(t *testing.T) {
	w := newTestWorld(ApprovalConfig{Enabled: false, Policy: approval.DefaultPolicy()})
	ctx := context.Background()
	caseID := caseInSvar(t, w, 100_000, 10)
	draftApprovals(t, w, caseID)

	p, err := w.approvalSvc.SubmitPakke(ctx, caseID, pl)
	require.NoError(t, err)
	assert.Equal(t, entity.PakkeApproved, p.Status)
	assert.Empty(t, p.Steps)
	assert.NotNil(t, p.CompletedAt)
	assert.Empty(t, w.notifier.calls)
	assert.Empty(t, w.approvalSvc.ListDrafts(ctx, caseID))

	data, err := w.caseSvc.GetCase(ctx, caseID, entity.ModeUnset)
	require.NoError(t, err)
	assert.Equal(t, entity.ModeFerdig, data.Case.Mode)
}

func TestApprovalService_RemindStale(t *testing.T) {
	w := newTestWorld(enabledConfig())
	ctx := context.Background()
	caseID := caseInSvar(t, w, 100_000, 10)
	draftApprovals(t, w, caseID)

	_, err := w.approvalSvc.SubmitPakke(ctx, caseID, pl)
	require.NoError(t, err)

	n, err := w.approvalSvc.RemindStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = w.approvalSvc.RemindStale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []entity.ApprovalRole{entity.RolePL, entity.RolePL}, w.notifier.calls)
}

func TestApprovalService_ConcurrentApprovalsOfOneStep(t *testing.T) {
	w := newTestWorld(enabledConfig())
	ctx := context.Background()
	caseID := caseInSvar(t, w, 100_000, 10)
	draftApprovals(t, w, caseID)

	p, err := w.approvalSvc.SubmitPakke(ctx, caseID, pl)
	require.NoError(t, err)

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		refusals  []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.approvalSvc.ApproveStep(ctx, p.ID, pl2, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			refusals = append(refusals, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, refusals, callers-1)
	for _, err := range refusals {
		assert.ErrorIs(t, err, approval.ErrNotNextApprover)
	}

	stored, err := w.approvalSvc.GetPakke(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []entity.StepStatus{entity.StepApproved, entity.StepInProgress, entity.StepPending},
		[]entity.StepStatus{stored.Steps[0].Status, stored.Steps[1].Status, stored.Steps[2].Status})
	assert.Equal(t, 2, stored.Version)
}

func TestApprovalService_StaleVersionIsRefused(t *testing.T) {
	w := newTestWorld(enabledConfig())
	ctx := context.Background()
	caseID := caseInSvar(t, w, 100_000, 10)
	draftApprovals(t, w, caseID)

	p, err := w.approvalSvc.SubmitPakke(ctx, caseID, pl)
	require.NoError(t, err)

	bumpOnce := func(stored *entity.BhResponsPakke) {
		stored.Version++
		w.pakker.beforeUpdate = nil
	}

	w.pakker.beforeUpdate = bumpOnce
	_, err = w.approvalSvc.ApproveStep(ctx, p.ID, pl2, "")
	assert.ErrorIs(t, err, port.ErrVersionConflict)

	stored, err := w.approvalSvc.GetPakke(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StepInProgress, stored.Steps[0].Status)
	assert.Equal(t, entity.PakkePending, stored.Status)

	w.pakker.beforeUpdate = bumpOnce
	_, err = w.approvalSvc.RejectStep(ctx, p.ID, pl2, "feil beløp")
	assert.ErrorIs(t, err, port.ErrVersionConflict)

	stored, err = w.approvalSvc.GetPakke(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PakkePending, stored.Status)

	// A fresh read succeeds
	p, err = w.approvalSvc.ApproveStep(ctx, p.ID, pl2, "")
	require.NoError(t, err)
	assert.Equal(t, entity.StepApproved, p.Steps[0].Status)
}
