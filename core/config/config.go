package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	// Token is the bot secret token. It is mandatory and doubles as the
	// webhook path secret for inbound update delivery.
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies the externally reachable callback endpoint and the
// local HTTP listener serving it.
type WebhookConfig struct {
	// BaseURL is the externally reachable base URL; the update route is
	// registered as BaseURL + "/webhook/" + token.
	BaseURL string `yaml:"base_url" envconfig:"WEBHOOK_BASE_URL"`
	Listen  string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port    int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// ConversationConfig controls the per-user conversation state machine.
type ConversationConfig struct {
	// TimeoutMinutes is the idle window after which an active conversation
	// is abandoned; 0 -> default.
	TimeoutMinutes int `yaml:"timeout_minutes" envconfig:"CONVERSATION_TIMEOUT_MINUTES"`
}

// Timeout returns the configured idle window as a duration.
func (c ConversationConfig) Timeout() time.Duration {
	if c.TimeoutMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// StorageConfig describes the external document store used for receipts and
// the per-category upload destinations. Folder identifiers are configured
// out-of-band per deployment and may be partially unset.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint" envconfig:"STORAGE_ENDPOINT"`
	AuthToken string `yaml:"auth_token" envconfig:"STORAGE_AUTH_TOKEN"`

	InvoiceDocFolder    string `yaml:"invoice_doc_folder" envconfig:"STORAGE_INVOICE_DOC_FOLDER"`
	SupplierOtherFolder string `yaml:"supplier_other_folder" envconfig:"STORAGE_SUPPLIER_OTHER_FOLDER"`
	PurchasingFolder    string `yaml:"purchasing_folder" envconfig:"STORAGE_PURCHASING_FOLDER"`
	OtherFolder         string `yaml:"other_folder" envconfig:"STORAGE_OTHER_FOLDER"`
	DefaultFolder       string `yaml:"default_folder" envconfig:"STORAGE_DEFAULT_FOLDER"`

	// CategoryFolders maps canonical category names (electricity, wifi, ...)
	// to folder identifiers.
	CategoryFolders map[string]string `yaml:"category_folders"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the full bot configuration.
type Config struct {
	Telegram     TelegramConfig     `yaml:"telegram"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Conversation ConversationConfig `yaml:"conversation"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeWebhook
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.BaseURL) == "" {
			return fmt.Errorf("webhook.base_url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			cfg.Webhook.Listen = "0.0.0.0"
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	cfg.Webhook.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Webhook.BaseURL), "/")

	if cfg.Conversation.TimeoutMinutes < 0 {
		return fmt.Errorf("conversation.timeout_minutes must be >= 0")
	}

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

// WebhookURL returns the externally visible update endpoint for the bot.
func (c *Config) WebhookURL() string {
	if strings.TrimSpace(c.Webhook.BaseURL) == "" {
		return ""
	}
	return c.Webhook.BaseURL + "/webhook/" + c.Telegram.Token
}
