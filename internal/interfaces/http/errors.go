package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/application/service"
	"github.com/garyjia/koe-workflow/internal/application/session"
	"github.com/garyjia/koe-workflow/internal/domain/approval"
	"github.com/garyjia/koe-workflow/internal/domain/ledger"
	"github.com/garyjia/koe-workflow/internal/domain/workflow"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

var (
	notFound = []error{service.ErrCaseNotFound, service.ErrPakkeNotFound}

	conflict = []error{
		service.ErrCaseExists,
		service.ErrWrongMode,
		port.ErrVersionConflict,
		approval.ErrPakkeNotPending,
		approval.ErrPakkeNotRejected,
		approval.ErrNotNextApprover,
		approval.ErrSelfApproval,
		workflow.ErrInvalidTransition,
		workflow.ErrTerminalState,
		workflow.ErrGuardFailed,
	}

	unprocessable = []error{
		service.ErrRejectedEntry,
		service.ErrNothingToAccept,
		service.ErrNoDrafts,
		approval.ErrEmptyPakke,
		approval.ErrDuplicateTrack,
		ledger.ErrUnknownTrack,
		ledger.ErrUnknownKind,
		ledger.ErrPartyMismatch,
		ledger.ErrCaseMismatch,
	}
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrMissingSession):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrLoadAbandoned):
		return http.StatusRequestTimeout
	case errors.Is(err, approval.ErrUnlistedApprover):
		return http.StatusForbidden
	case isAny(err, notFound):
		return http.StatusNotFound
	case isAny(err, conflict):
		return http.StatusConflict
	case isAny(err, unprocessable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	resp := Response{Success: false, Error: err.Error()}
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		resp.Data = verr.Result
	}
	c.JSON(status, resp)
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}
