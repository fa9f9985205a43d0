package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/koe-workflow/internal/domain/approval"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

const (
	headerRequestID  = "X-Request-ID"
	headerSessionID  = "X-Session-ID"
	headerActorID    = "X-Actor-ID"
	headerActorName  = "X-Actor-Name"
	headerActorRole  = "X-Actor-Role"
	headerActorParty = "X-Actor-Party"
	headerActorEmail = "X-Actor-Email"

	ctxActor = "actor"
)

// requestID propagates or assigns a request id
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func loggingMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start).String(),
			"request_id", c.GetString(headerRequestID),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("HTTP request", kv...)
			return
		}
		logger.Info("HTTP request", kv...)
	}
}

// actorMiddleware builds the acting user from headers. When the directory
// lists ids for a role, only those ids may act in it.
func actorMiddleware(directory approval.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		a := entity.Actor{
			ID:    strings.TrimSpace(c.GetHeader(headerActorID)),
			Name:  c.GetHeader(headerActorName),
			Email: strings.ToLower(strings.TrimSpace(c.GetHeader(headerActorEmail))),
			Role:  entity.ApprovalRole(strings.ToUpper(strings.TrimSpace(c.GetHeader(headerActorRole)))),
			Party: entity.Party(strings.ToUpper(strings.TrimSpace(c.GetHeader(headerActorParty)))),
		}

		if a.ID == "" {
			abort(c, http.StatusUnauthorized, headerActorID+" header is required")
			return
		}
		if a.Role != "" && !a.Role.IsValid() {
			abort(c, http.StatusBadRequest, "unknown role "+string(a.Role))
			return
		}
		if a.Party != "" && a.Party != entity.PartyTE && a.Party != entity.PartyBH {
			abort(c, http.StatusBadRequest, "unknown party "+string(a.Party))
			return
		}
		if a.Role != "" && a.Party == "" {
			a.Party = entity.PartyBH
		}
		if err := directory.Check(a); err != nil {
			abort(c, http.StatusForbidden, err.Error())
			return
		}

		c.Set(ctxActor, a)
		c.Next()
	}
}

func actorFrom(c *gin.Context) entity.Actor {
	v, _ := c.Get(ctxActor)
	a, _ := v.(entity.Actor)
	return a
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: msg})
}

func corsMiddleware() gin.HandlerFunc {
	allowed := strings.Join([]string{
		"Content-Type", headerSessionID, headerRequestID,
		headerActorID, headerActorName, headerActorRole, headerActorParty, headerActorEmail,
	}, ", ")
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", allowed)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
