package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Threads   ThreadsConfig   `yaml:"threads" mapstructure:"threads"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Engage    EngageConfig    `yaml:"engage" mapstructure:"engage"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ThreadsConfig holds platform API settings.
type ThreadsConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerS float64 `yaml:"requests_per_s" mapstructure:"requests_per_s"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds the content-generation API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// CrawlConfig configures article discovery.
type CrawlConfig struct {
	DefaultTimeoutMS int    `yaml:"default_timeout_ms" mapstructure:"default_timeout_ms"`
	DefaultUserAgent string `yaml:"default_user_agent" mapstructure:"default_user_agent"`
}

// PipelineConfig configures the publishing pipeline.
type PipelineConfig struct {
	AccountDelaySecs int `yaml:"account_delay_secs" mapstructure:"account_delay_secs"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffSecs      int `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	DedupeTTLHours   int `yaml:"dedupe_ttl_hours" mapstructure:"dedupe_ttl_hours"`
}

// AccountDelay returns the pause between per-account publishes.
func (c PipelineConfig) AccountDelay() time.Duration {
	return time.Duration(c.AccountDelaySecs) * time.Second
}

// Backoff returns the fixed retry backoff.
func (c PipelineConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSecs) * time.Second
}

// DedupeTTL returns the duplicate-suppression window.
func (c PipelineConfig) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLHours) * time.Hour
}

// EngageConfig configures engagement discovery and the approval workflow.
// DailyActionQuota and the batch-approval delay placement vary across
// deployments, so both are tunables rather than constants.
type EngageConfig struct {
	RecentPostLimit       int  `yaml:"recent_post_limit" mapstructure:"recent_post_limit"`
	MaxRepliesPerPost     int  `yaml:"max_replies_per_post" mapstructure:"max_replies_per_post"`
	ReplyMaxChars         int  `yaml:"reply_max_chars" mapstructure:"reply_max_chars"`
	DailyActionQuota      int  `yaml:"daily_action_quota" mapstructure:"daily_action_quota"`
	BatchApproveDelaySecs int  `yaml:"batch_approve_delay_secs" mapstructure:"batch_approve_delay_secs"`
	DelayBeforeApproval   bool `yaml:"delay_before_approval" mapstructure:"delay_before_approval"`
	TargetDelaySecs       int  `yaml:"target_delay_secs" mapstructure:"target_delay_secs"`
}

// BatchApproveDelay returns the mandatory pause between batch approvals.
func (c EngageConfig) BatchApproveDelay() time.Duration {
	return time.Duration(c.BatchApproveDelaySecs) * time.Second
}

// TargetDelay returns the pause between per-target discovery calls.
func (c EngageConfig) TargetDelay() time.Duration {
	return time.Duration(c.TargetDelaySecs) * time.Second
}

// NotifyConfig configures the outbound webhook notifier.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ScheduleConfig maps cron expressions to pipeline and engagement runs.
// Empty expressions disable the corresponding job.
type ScheduleConfig struct {
	PipelineCron string `yaml:"pipeline_cron" mapstructure:"pipeline_cron"`
	PipelineMode string `yaml:"pipeline_mode" mapstructure:"pipeline_mode"`
	ReplyCron    string `yaml:"reply_cron" mapstructure:"reply_cron"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "quill.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("threads.base_url", "https://graph.threads.net/v1.0")
	v.SetDefault("threads.requests_per_s", 2.0)
	v.SetDefault("threads.timeout_secs", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("crawl.default_timeout_ms", 10000)
	v.SetDefault("crawl.default_user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("pipeline.account_delay_secs", 5)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.backoff_secs", 2)
	v.SetDefault("pipeline.dedupe_ttl_hours", 24)
	v.SetDefault("engage.recent_post_limit", 5)
	v.SetDefault("engage.max_replies_per_post", 20)
	v.SetDefault("engage.reply_max_chars", 15)
	v.SetDefault("engage.daily_action_quota", 100)
	v.SetDefault("engage.batch_approve_delay_secs", 30)
	v.SetDefault("engage.delay_before_approval", true)
	v.SetDefault("engage.target_delay_secs", 3)
	v.SetDefault("schedule.pipeline_mode", "all-topics")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
