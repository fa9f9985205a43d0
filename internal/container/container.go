package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/dispatcher"
	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/config"
	"github.com/garyjia/koe-workflow/internal/infrastructure/messaging/kafka"
	"github.com/garyjia/koe-workflow/internal/infrastructure/worker"
)

// Container owns every component. Start initializes in dependency order and
// Close tears down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	db           *DatabaseBundle
	repositories *RepositoryBundle
	dispatcher   dispatcher.Dispatcher
	publisher    *kafka.Publisher
	notifier     port.ApproverNotifier
	documents    port.DocumentGenerator
	services     *ServiceBundle
	workers      *worker.Manager

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a container. Call Start to initialize components.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{config: cfg, logger: logger}, nil
}

// Start initializes components in order:
// database, repositories, dispatcher, side channels, services, workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	db, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db
	c.repositories = ProvideRepositories(db, c.logger)
	c.logger.Info("Database initialized", zap.String("path", c.config.Database.Path))

	c.dispatcher, c.publisher = ProvideDispatcher(&c.config.Kafka, c.logger)
	c.notifier = ProvideNotifier(c.config, c.logger)
	c.documents = ProvideDocuments(&c.config.Documents, c.logger)

	services, err := ProvideServices(&ServiceDeps{
		Config:     c.config,
		Repos:      c.repositories,
		TxManager:  c.db.TransactionMgr,
		Dispatcher: c.dispatcher,
		Notifier:   c.notifier,
		Documents:  c.documents,
		Logger:     c.logger,
	})
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services
	c.logger.Info("Application services initialized",
		zap.Bool("approval_enabled", c.config.Approval.Enabled))

	c.workers = ProvideWorkers(c.config, c.services, c.repositories, c.logger)
	if err := c.workers.StartAll(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to start workers: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started")
	return nil
}

// Close shuts components down in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Swap(true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)

	if err := c.teardown(); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}
	if c.services != nil && c.services.Drafts != nil {
		// pending draft writes must land before the database closes
		c.services.Drafts.Flush()
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
		}
	}
	if c.db != nil {
		if err := c.db.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports database, dispatcher and worker status
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth)}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		set("database", false, "not initialized")
	default:
		if err := c.db.DB.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	set("dispatcher", c.dispatcher != nil, "")

	if c.workers == nil {
		set("workers", false, "not initialized")
	} else {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.Count()))
	}

	return status
}

// Services returns the application services
func (c *Container) Services() *ServiceBundle { return c.services }

// Repositories returns all repositories
func (c *Container) Repositories() *RepositoryBundle { return c.repositories }

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher { return c.dispatcher }

// Config returns the container's configuration
func (c *Container) Config() *config.Config { return c.config }

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger { return c.logger }
