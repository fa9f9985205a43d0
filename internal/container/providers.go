// Package container wires the case workflow components and owns their lifecycle.
package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/dispatcher"
	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/application/service"
	"github.com/garyjia/koe-workflow/internal/application/session"
	"github.com/garyjia/koe-workflow/internal/application/workflow"
	"github.com/garyjia/koe-workflow/internal/config"
	"github.com/garyjia/koe-workflow/internal/infrastructure/document"
	infraLark "github.com/garyjia/koe-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/koe-workflow/internal/infrastructure/messaging/kafka"
	"github.com/garyjia/koe-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/koe-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/koe-workflow/internal/infrastructure/storage"
	"github.com/garyjia/koe-workflow/internal/infrastructure/token"
	"github.com/garyjia/koe-workflow/internal/infrastructure/worker"
	"github.com/garyjia/koe-workflow/pkg/database"
	"github.com/garyjia/koe-workflow/pkg/utils"
)

// DatabaseBundle holds the connection and the transaction manager over it
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories
type RepositoryBundle struct {
	Case      port.CaseRepository
	History   port.CaseHistoryRepository
	Revision  port.RevisionRepository
	Contact   port.ContactRepository
	Pakke     port.PakkeRepository
	MagicLink port.MagicLinkRepository
	KV        *repository.KVStore
	Sessions  *repository.SessionStore
}

// ServiceBundle groups the application services
type ServiceBundle struct {
	Case         service.CaseService
	Approval     service.ApprovalService
	Drafts       *service.DraftStore
	Orchestrator *session.Orchestrator
	MagicLinks   *token.MagicLinkService
	Signers      port.SignerValidator
}

// ServiceDeps are the inputs to ProvideServices
type ServiceDeps struct {
	Config     *config.Config
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Notifier   port.ApproverNotifier
	Documents  port.DocumentGenerator
	Logger     *zap.Logger
}

// ProvideDatabase opens SQLite and applies the embedded migrations
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates every repository over db
func ProvideRepositories(db *DatabaseBundle, logger *zap.Logger) *RepositoryBundle {
	sqlDB := db.DB.DB
	return &RepositoryBundle{
		Case:      repository.NewCaseRepository(sqlDB, logger),
		History:   repository.NewHistoryRepository(sqlDB, logger),
		Revision:  repository.NewRevisionRepository(sqlDB, logger),
		Contact:   repository.NewContactRepository(sqlDB, logger),
		Pakke:     repository.NewPakkeRepository(sqlDB, logger),
		MagicLink: repository.NewMagicLinkRepository(sqlDB, logger),
		KV:        repository.NewKVStore(sqlDB, logger),
		Sessions:  repository.NewSessionStore(sqlDB, logger),
	}
}

// ProvideDispatcher creates the event dispatcher. With brokers configured
// every event is also forwarded to Kafka; the returned publisher is nil otherwise.
func ProvideDispatcher(cfg *config.KafkaConfig, logger *zap.Logger) (dispatcher.Dispatcher, *kafka.Publisher) {
	disp := dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger, "dispatcher")))
	if len(cfg.Brokers) == 0 {
		logger.Info("Kafka not configured, events stay in process")
		return disp, nil
	}

	pub := kafka.NewPublisher(kafka.Config{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
	disp.SubscribeNamed(dispatcher.AllEvents, "kafka-forwarder", kafka.Forwarder(pub, logger))
	logger.Info("Kafka forwarding enabled",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))
	return disp, pub
}

// ProvideNotifier returns the Lark notifier, or a logging no-op without credentials
func ProvideNotifier(cfg *config.Config, logger *zap.Logger) port.ApproverNotifier {
	larkCfg := infraLark.Config{AppID: cfg.Lark.AppID, AppSecret: cfg.Lark.AppSecret}
	if !larkCfg.Enabled() {
		return infraLark.NewNoopNotifier(logger)
	}
	client := infraLark.NewSDKClient(larkCfg, logger)
	return infraLark.NewApproverNotifier(client, cfg.Lark.OpenIDsByRole(), cfg.Server.BaseURL, logger)
}

// ProvideDocuments returns the xlsx generator writing under the output dir
func ProvideDocuments(cfg *config.DocumentsConfig, logger *zap.Logger) port.DocumentGenerator {
	return document.NewXLSXGenerator(storage.NewLocalFileStorage(cfg.OutputDir, logger), logger)
}

// ProvideServices wires the case, approval and session services
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	cfg := deps.Config
	repos := deps.Repos

	policy, err := cfg.Approval.Policy()
	if err != nil {
		return nil, fmt.Errorf("approval policy: %w", err)
	}

	magicLinks, err := token.NewMagicLinkService(token.Config{
		Secret: cfg.MagicLink.Secret,
		Issuer: cfg.MagicLink.Issuer,
		TTL:    cfg.MagicLink.TTL,
	}, repos.MagicLink, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("magic links: %w", err)
	}

	engine := workflow.NewEngine(repos.Case, repos.History, deps.TxManager,
		workflow.WithDispatcher(deps.Dispatcher))

	signers := service.NewSignerValidator(repos.Contact)
	caseSvc := service.NewCaseService(
		repos.Case, repos.History, repos.Revision, repos.Contact,
		signers,
		engine, deps.TxManager, deps.Dispatcher,
		service.CaseServiceConfig{DefaultDagmulktsats: cfg.Approval.DefaultDagmulktsats},
		utils.NewKVLogger(deps.Logger, "case"),
	)

	drafts := service.NewDraftStore(repos.KV, utils.NewKVLogger(deps.Logger, "drafts"))

	approvalSvc := service.NewApprovalService(
		repos.Pakke, drafts, caseSvc, deps.Notifier, deps.Documents,
		deps.TxManager, deps.Dispatcher,
		service.ApprovalConfig{
			Enabled:   cfg.Approval.Enabled,
			Policy:    policy,
			SelfCheck: cfg.Approval.SelfCheck(),
		},
		utils.NewKVLogger(deps.Logger, "approval"),
	)

	orchestrator := session.NewOrchestrator(magicLinks, caseSvc, repos.Sessions,
		utils.NewKVLogger(deps.Logger, "session"))

	return &ServiceBundle{
		Case:         caseSvc,
		Approval:     approvalSvc,
		Drafts:       drafts,
		Orchestrator: orchestrator,
		MagicLinks:   magicLinks,
		Signers:      signers,
	}, nil
}

// ProvideWorkers registers the reminder and session purge jobs
func ProvideWorkers(cfg *config.Config, services *ServiceBundle, repos *RepositoryBundle, logger *zap.Logger) *worker.Manager {
	m := worker.NewManager(logger)
	if cfg.Approval.Enabled && cfg.Approval.ReminderInterval > 0 {
		m.Register(worker.NewApprovalReminder(services.Approval, cfg.Approval.ReminderInterval, logger))
	}
	if cfg.Session.PurgeInterval > 0 && cfg.Session.MaxAge > 0 {
		m.Register(worker.NewSessionPurge(repos.Sessions, cfg.Session.PurgeInterval, cfg.Session.MaxAge, logger))
	}
	return m
}
