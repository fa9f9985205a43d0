package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/koe-workflow/internal/application/service"
	"github.com/garyjia/koe-workflow/internal/application/session"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
	"github.com/garyjia/koe-workflow/pkg/utils"
)

type handlers struct {
	deps    Deps
	baseURL string
	logger  Logger
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Detail    any    `json:"detail,omitempty"`
}

// EventRequest is one phase submission. Type selects which payload is read.
type EventRequest struct {
	Type     string                `json:"type" binding:"required,oneof=varsel koe svar accept entry"`
	Grunnlag *entity.GrunnlagData  `json:"grunnlag,omitempty"`
	Koe      *entity.KoeRevision   `json:"koe,omitempty"`
	Svar     *entity.BhSvar        `json:"svar,omitempty"`
	Entry    *entity.RevisionEntry `json:"entry,omitempty"`
}

// MagicLinkRequest asks for a one-time link to a case
type MagicLinkRequest struct {
	CaseID string `json:"case_id" binding:"required"`
	Email  string `json:"email" binding:"required"`
}

// MagicLinkResponse carries the issued link
type MagicLinkResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DecisionRequest carries an approver's comment
type DecisionRequest struct {
	Comment string `json:"comment"`
}

// SignerRequest names the person signing a claim
type SignerRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *handlers) health(c *gin.Context) {
	resp := HealthResponse{Status: "healthy", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	if h.deps.Health != nil {
		healthy, detail := h.deps.Health(c.Request.Context())
		resp.Detail = detail
		if !healthy {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// session

func (h *handlers) loadSession(c *gin.Context) {
	var req session.LoadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	req.SessionID = c.GetHeader(headerSessionID)

	res, err := h.deps.Orchestrator.Load(c.Request.Context(), req, nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *handlers) cacheForm(c *gin.Context) {
	var form entity.CaseState
	if err := c.ShouldBindJSON(&form); err != nil {
		abort(c, http.StatusBadRequest, "invalid form")
		return
	}
	if err := h.deps.Orchestrator.CacheForm(c.Request.Context(), c.GetHeader(headerSessionID), c.Param("id"), form); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) issueMagicLink(c *gin.Context) {
	var req MagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "case_id and email are required")
		return
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.deps.Cases.GetCase(c.Request.Context(), req.CaseID, entity.ModeUnset); err != nil {
		h.fail(c, err)
		return
	}

	raw, tok, err := h.deps.Links.Issue(c.Request.Context(), req.CaseID, req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := MagicLinkResponse{Token: raw, ExpiresAt: tok.ExpiresAt}
	if h.baseURL != "" {
		resp.URL = fmt.Sprintf("%s/?magicToken=%s", strings.TrimRight(h.baseURL, "/"), raw)
	}
	ok(c, http.StatusCreated, resp)
}

// cases

func (h *handlers) listCases(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	cases, err := h.deps.Cases.ListCases(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, cases)
}

func (h *handlers) createCase(c *gin.Context) {
	var in service.CreateCaseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.ID != "" {
		if err := utils.ValidateCaseID(in.ID); err != nil {
			abort(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := utils.ValidateAmount(in.Dagmulktsats); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	in.Title = utils.SanitizeString(in.Title)

	created, err := h.deps.Cases.CreateCase(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, created)
}

func (h *handlers) getCase(c *gin.Context) {
	data, err := h.deps.Cases.GetCase(c.Request.Context(), c.Param("id"), entity.CaseMode(c.Query("mode")))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, data)
}

func (h *handlers) caseHistory(c *gin.Context) {
	history, err := h.deps.Cases.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, history)
}

func (h *handlers) previewTransition(c *gin.Context) {
	res, err := h.deps.Cases.PreviewTransition(c.Request.Context(), c.Param("id"), entity.CaseMode(c.Query("mode")))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *handlers) validateStep(c *gin.Context) {
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		abort(c, http.StatusBadRequest, "step must be a number")
		return
	}

	var form *entity.CaseState
	if c.Request.ContentLength != 0 {
		form = &entity.CaseState{}
		if err := c.ShouldBindJSON(form); err != nil {
			abort(c, http.StatusBadRequest, "invalid form")
			return
		}
	}

	res, err := h.deps.Cases.ValidateStep(c.Request.Context(), c.Param("id"), step, form)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *handlers) validateSigner(c *gin.Context) {
	var req SignerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "email is required")
		return
	}
	res, err := h.deps.Signers.Validate(c.Request.Context(), c.Param("id"), req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *handlers) registerContact(c *gin.Context) {
	var contact entity.Contact
	if err := c.ShouldBindJSON(&contact); err != nil {
		abort(c, http.StatusBadRequest, "invalid contact")
		return
	}
	if err := utils.ValidateEmail(contact.Email); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	contact.CaseID = c.Param("id")
	if err := h.deps.Cases.RegisterContact(c.Request.Context(), contact); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) submitEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid event: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	caseID := c.Param("id")
	actor := actorFrom(c)

	var (
		res *service.SubmissionResult
		err error
	)
	switch req.Type {
	case "varsel":
		if req.Grunnlag == nil {
			abort(c, http.StatusBadRequest, "grunnlag is required")
			return
		}
		res, err = h.deps.Cases.SubmitVarsel(ctx, caseID, actor, *req.Grunnlag)
	case "koe":
		if req.Koe == nil {
			abort(c, http.StatusBadRequest, "koe is required")
			return
		}
		res, err = h.deps.Cases.SubmitKoe(ctx, caseID, actor, *req.Koe)
	case "svar":
		if req.Svar == nil {
			abort(c, http.StatusBadRequest, "svar is required")
			return
		}
		res, err = h.deps.Cases.SubmitSvar(ctx, caseID, actor, *req.Svar)
	case "accept":
		res, err = h.deps.Cases.Accept(ctx, caseID, actor)
	case "entry":
		if req.Entry == nil {
			abort(c, http.StatusBadRequest, "entry is required")
			return
		}
		entry := *req.Entry
		entry.CaseID = caseID
		entry.Actor = actor
		sub, serr := h.deps.Cases.Submit(ctx, entry)
		if serr != nil {
			h.fail(c, serr)
			return
		}
		ok(c, http.StatusCreated, sub)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// drafts and packages

func trackParam(c *gin.Context) (entity.TrackType, bool) {
	t := entity.TrackType(c.Param("track"))
	if !t.IsValid() {
		abort(c, http.StatusBadRequest, "unknown track "+string(t))
		return "", false
	}
	return t, true
}

func (h *handlers) listDrafts(c *gin.Context) {
	ok(c, http.StatusOK, h.deps.Approvals.ListDrafts(c.Request.Context(), c.Param("id")))
}

func (h *handlers) getDraft(c *gin.Context) {
	track, valid := trackParam(c)
	if !valid {
		return
	}
	d, found := h.deps.Approvals.GetDraft(c.Request.Context(), c.Param("id"), track)
	if !found {
		abort(c, http.StatusNotFound, "no draft for "+string(track))
		return
	}
	ok(c, http.StatusOK, d)
}

func (h *handlers) saveDraft(c *gin.Context) {
	track, valid := trackParam(c)
	if !valid {
		return
	}
	var d entity.DraftResponseData
	if err := c.ShouldBindJSON(&d); err != nil {
		abort(c, http.StatusBadRequest, "invalid draft")
		return
	}
	d.Track = track
	d.CaseID = c.Param("id")

	saved, err := h.deps.Approvals.SaveDraft(c.Request.Context(), d.CaseID, actorFrom(c), d)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, saved)
}

func (h *handlers) deleteDraft(c *gin.Context) {
	track, valid := trackParam(c)
	if !valid {
		return
	}
	h.deps.Approvals.DeleteDraft(c.Request.Context(), c.Param("id"), track)
	c.Status(http.StatusNoContent)
}

func (h *handlers) submitPakke(c *gin.Context) {
	p, err := h.deps.Approvals.SubmitPakke(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

func (h *handlers) listPakker(c *gin.Context) {
	pakker, err := h.deps.Approvals.ListByCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, pakker)
}

func (h *handlers) getPakke(c *gin.Context) {
	p, err := h.deps.Approvals.GetPakke(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (h *handlers) approvePakke(c *gin.Context) {
	var req DecisionRequest
	_ = c.ShouldBindJSON(&req)

	p, err := h.deps.Approvals.ApproveStep(c.Request.Context(), c.Param("id"), actorFrom(c), req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (h *handlers) rejectPakke(c *gin.Context) {
	var req DecisionRequest
	_ = c.ShouldBindJSON(&req)

	p, err := h.deps.Approvals.RejectStep(c.Request.Context(), c.Param("id"), actorFrom(c), req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (h *handlers) restorePakke(c *gin.Context) {
	restored, err := h.deps.Approvals.RestoreDraftsFromPakke(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"restored": restored})
}

func (h *handlers) discardPakke(c *gin.Context) {
	if err := h.deps.Approvals.DiscardPakke(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
