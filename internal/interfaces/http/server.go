// Package http exposes the case workflow over a gin JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/application/service"
	"github.com/garyjia/koe-workflow/internal/application/session"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// LinkIssuer issues one-time magic links for a case
type LinkIssuer interface {
	Issue(ctx context.Context, caseID, email string) (string, *port.MagicLinkToken, error)
}

// HealthFunc reports component health
type HealthFunc func(ctx context.Context) (healthy bool, detail any)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BaseURL      string
}

// Deps are the services the API fronts
type Deps struct {
	Cases        service.CaseService
	Approvals    service.ApprovalService
	Orchestrator *session.Orchestrator
	Links        LinkIssuer
	Signers      port.SignerValidator
	Directory    map[entity.ApprovalRole][]string
	Health       HealthFunc
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Deps
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Deps, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}

	s.router.Use(gin.Recovery(), requestID(), loggingMiddleware(logger), corsMiddleware())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	h := &handlers{deps: s.deps, baseURL: s.config.BaseURL, logger: s.logger}
	actor := actorMiddleware(s.deps.Directory)

	s.router.GET("/health", h.health)

	api := s.router.Group("/api")
	{
		api.POST("/session/load", h.loadSession)
		api.PUT("/session/form/:id", h.cacheForm)
		api.POST("/magic-links", h.issueMagicLink)

		api.GET("/cases", h.listCases)
		api.POST("/cases", h.createCase)
		api.GET("/cases/:id", h.getCase)
		api.GET("/cases/:id/history", h.caseHistory)
		api.GET("/cases/:id/transition", h.previewTransition)
		api.POST("/cases/:id/validate/:step", h.validateStep)
		api.POST("/cases/:id/signer", h.validateSigner)
		api.POST("/cases/:id/contacts", h.registerContact)
		api.POST("/cases/:id/events", actor, h.submitEvent)

		api.GET("/cases/:id/drafts", h.listDrafts)
		api.GET("/cases/:id/drafts/:track", h.getDraft)
		api.PUT("/cases/:id/drafts/:track", actor, h.saveDraft)
		api.DELETE("/cases/:id/drafts/:track", actor, h.deleteDraft)

		api.POST("/cases/:id/pakker", actor, h.submitPakke)
		api.GET("/cases/:id/pakker", h.listPakker)
		api.GET("/pakker/:id", h.getPakke)
		api.POST("/pakker/:id/approve", actor, h.approvePakke)
		api.POST("/pakker/:id/reject", actor, h.rejectPakke)
		api.POST("/pakker/:id/restore", actor, h.restorePakke)
		api.DELETE("/pakker/:id", actor, h.discardPakke)
	}
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the listen address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
