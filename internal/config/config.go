package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/koe-workflow/internal/domain/approval"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	MagicLink MagicLinkConfig `mapstructure:"magic_link"`
	Lark      LarkConfig      `mapstructure:"lark"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Session   SessionConfig   `mapstructure:"session"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BaseURL      string        `mapstructure:"base_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// ApprovalConfig holds the owner's internal sign-off settings
type ApprovalConfig struct {
	Enabled             bool                `mapstructure:"enabled"`
	Thresholds          []float64           `mapstructure:"thresholds"`
	Roles               []string            `mapstructure:"roles"`
	DefaultDagmulktsats float64             `mapstructure:"default_dagmulktsats"`
	Approvers           map[string][]string `mapstructure:"approvers"`
	AllowRoleOnlyCheck  bool                `mapstructure:"allow_role_only_check"`
	ReminderInterval    time.Duration       `mapstructure:"reminder_interval"`
}

// MagicLinkConfig holds magic link token settings
type MagicLinkConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID           string              `mapstructure:"app_id"`
	AppSecret       string              `mapstructure:"app_secret"`
	ApproverOpenIDs map[string][]string `mapstructure:"approver_open_ids"`
}

// KafkaConfig holds event fan-out settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DocumentsConfig holds generated document settings
type DocumentsConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// SessionConfig holds session state retention
type SessionConfig struct {
	MaxAge        time.Duration `mapstructure:"max_age"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

// Load reads .env (if present), the YAML file at configPath (if present) and
// environment variables, in increasing priority
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("KOE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "data/koe.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	policy := approval.DefaultPolicy()
	roles := make([]string, len(policy.Roles))
	for i, r := range policy.Roles {
		roles[i] = r.String()
	}
	v.SetDefault("approval.enabled", true)
	v.SetDefault("approval.thresholds", policy.Ceilings)
	v.SetDefault("approval.roles", roles)
	v.SetDefault("approval.default_dagmulktsats", 50_000)
	v.SetDefault("approval.allow_role_only_check", false)
	v.SetDefault("approval.reminder_interval", 24*time.Hour)

	v.SetDefault("magic_link.issuer", "koe-workflow")
	v.SetDefault("magic_link.ttl", 72*time.Hour)

	v.SetDefault("kafka.topic", "koe.events")
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("documents.output_dir", "data/documents")

	v.SetDefault("session.max_age", 7*24*time.Hour)
	v.SetDefault("session.purge_interval", time.Hour)
}

// bindEnvVars binds credentials to their conventional variable names
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("magic_link.secret", "KOE_MAGIC_LINK_SECRET", "MAGIC_LINK_SECRET")
	_ = v.BindEnv("lark.app_id", "KOE_LARK_APP_ID", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "KOE_LARK_APP_SECRET", "LARK_APP_SECRET")
	_ = v.BindEnv("kafka.brokers", "KOE_KAFKA_BROKERS", "KAFKA_BROKERS")
}

// Validate checks required values and cross-field consistency
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if len(c.MagicLink.Secret) < 32 {
		return fmt.Errorf("magic_link.secret must be at least 32 bytes")
	}
	if c.MagicLink.TTL <= 0 {
		return fmt.Errorf("magic_link.ttl must be positive")
	}
	if c.Approval.DefaultDagmulktsats < 0 {
		return fmt.Errorf("approval.default_dagmulktsats must not be negative")
	}
	if c.Approval.ReminderInterval < 0 {
		return fmt.Errorf("approval.reminder_interval must not be negative")
	}
	if _, err := c.Approval.Policy(); err != nil {
		return fmt.Errorf("approval: %w", err)
	}
	for role := range c.Approval.Approvers {
		if !entity.ApprovalRole(strings.ToUpper(role)).IsValid() {
			return fmt.Errorf("approval.approvers: unknown role %q", role)
		}
	}
	for role := range c.Lark.ApproverOpenIDs {
		if !entity.ApprovalRole(strings.ToUpper(role)).IsValid() {
			return fmt.Errorf("lark.approver_open_ids: unknown role %q", role)
		}
	}
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	if c.Documents.OutputDir == "" {
		return fmt.Errorf("documents.output_dir is required")
	}
	return nil
}

// Policy converts thresholds and roles into an approval policy
func (a ApprovalConfig) Policy() (approval.Policy, error) {
	p := approval.Policy{Ceilings: append([]float64(nil), a.Thresholds...)}
	for _, r := range a.Roles {
		p.Roles = append(p.Roles, entity.ApprovalRole(strings.ToUpper(r)))
	}
	if err := p.Validate(); err != nil {
		return approval.Policy{}, err
	}
	return p, nil
}

// SelfCheck returns the configured self-approval check
func (a ApprovalConfig) SelfCheck() approval.SelfCheck {
	if a.AllowRoleOnlyCheck {
		return approval.SelfCheckRole
	}
	return approval.SelfCheckIdentity
}

// ApproverDirectory returns the configured approver ids per role. Role keys
// are upper-cased since viper folds map keys to lower case.
func (a ApprovalConfig) ApproverDirectory() map[entity.ApprovalRole][]string {
	return byRole(a.Approvers)
}

// OpenIDsByRole converts the Lark recipient map to typed roles
func (l LarkConfig) OpenIDsByRole() map[entity.ApprovalRole][]string {
	return byRole(l.ApproverOpenIDs)
}

func byRole(m map[string][]string) map[entity.ApprovalRole][]string {
	out := make(map[entity.ApprovalRole][]string, len(m))
	for role, ids := range m {
		out[entity.ApprovalRole(strings.ToUpper(role))] = ids
	}
	return out
}
