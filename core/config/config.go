package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// TransportTelegram selects the Telegram Bot API as messaging gateway.
	TransportTelegram = "telegram"
	// TransportWhatsApp selects the Green API WhatsApp gateway.
	TransportWhatsApp = "whatsapp"
)

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// CatalogSourceFile loads the paper catalog from a YAML, JSON or TOML file.
	CatalogSourceFile = "file"
	// CatalogSourcePostgres loads the paper catalog from Postgres tables.
	CatalogSourcePostgres = "postgres"
)

const (
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdatePhoto identifies photo uploads for rate limit exclusions.
	UpdatePhoto = "photo"
	// UpdateDocument identifies document uploads for rate limit exclusions.
	UpdateDocument = "document"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies the inbound webhook listener. Telegram uses it in
// webhook run mode, the WhatsApp transport always.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"HOOK_PORT"`
	// Secret is the bearer token expected on WhatsApp webhook calls.
	Secret string `yaml:"secret" envconfig:"SECRET_TOKEN"`
}

// WhatsAppConfig holds Green API credentials. RunMode "webhook" serves
// POST /hook; "longpoll" pulls receiveNotification instead.
type WhatsAppConfig struct {
	APIURL     string `yaml:"api_url" envconfig:"API_URL"`
	InstanceID string `yaml:"instance_id" envconfig:"ID_INSTANCE"`
	Token      string `yaml:"token" envconfig:"API_TOKEN_INSTANCE"`
	RunMode    string `yaml:"run_mode" envconfig:"WHATSAPP_RUN_MODE"`
	// ReceiveTimeoutSeconds is the receiveNotification wait; 0 -> 5.
	ReceiveTimeoutSeconds int `yaml:"receive_timeout_seconds" envconfig:"WHATSAPP_RECEIVE_TIMEOUT_SECONDS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig holds settings for inbound rate limiting.
// ExcludeUpdates accepts update kinds that bypass limiting:
// - "message": text messages
// - "photo": photo uploads
// - "document": uncompressed image uploads
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// IntakeConfig tunes the conversation flow and the idle sweep.
type IntakeConfig struct {
	SweepInterval  time.Duration `yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL"`
	NoFilesTimeout time.Duration `yaml:"no_files_timeout" envconfig:"NO_FILES_TIMEOUT"`
	RepeatInterval time.Duration `yaml:"repeat_interval" envconfig:"REPEAT_TIMEOUT"`
	MaxRepeats     int           `yaml:"max_repeats" envconfig:"REPEAT_COUNT"`
	QueueSize      int           `yaml:"queue_size" envconfig:"INTAKE_QUEUE_SIZE"`

	CancelKeywords    []string `yaml:"cancel_keywords"`
	FilesDoneKeywords []string `yaml:"files_done_keywords"`
	ReadyKeywords     []string `yaml:"ready_keywords"`
}

// CatalogConfig selects where the paper catalog comes from.
type CatalogConfig struct {
	Source string `yaml:"source" envconfig:"CATALOG_SOURCE"`
	Path   string `yaml:"path" envconfig:"CATALOG_PATH"`
	// Watch reloads file catalogs when the file changes.
	Watch bool `yaml:"watch" envconfig:"CATALOG_WATCH"`
}

// DatabaseConfig holds Postgres connection settings for the catalog source.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// OrdersConfig points to the downstream order-processing endpoint.
type OrdersConfig struct {
	URL     string        `yaml:"url" envconfig:"WORKER_URL"`
	Token   string        `yaml:"token" envconfig:"WORKER_TOKEN"`
	Timeout time.Duration `yaml:"timeout" envconfig:"WORKER_TIMEOUT"`
}

// ShopConfig is shown to customers once an order is accepted.
type ShopConfig struct {
	Address string `yaml:"address" envconfig:"SHOP_ADDRESS"`
	Phone   string `yaml:"phone" envconfig:"SHOP_PHONE"`
}

// SenderConfig controls the asynchronous outbound queue.
type SenderConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	Workers      int           `yaml:"workers"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MaxDuration  time.Duration `yaml:"max_duration"`
}

// Config aggregates the whole process configuration. It is built once at
// startup and passed by pointer to the components that need it.
type Config struct {
	Transport   string `yaml:"transport" envconfig:"TRANSPORT"`
	AdminChatID string `yaml:"admin_chat_id" envconfig:"ADMIN_CHAT_ID"`

	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Intake    IntakeConfig    `yaml:"intake"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Database  DatabaseConfig  `yaml:"database"`
	Orders    OrdersConfig    `yaml:"orders"`
	Shop      ShopConfig      `yaml:"shop"`
	Sender    SenderConfig    `yaml:"sender"`
}

var (
	defaultCancelKeywords    = []string{"отмен"}
	defaultFilesDoneKeywords = []string{"все", "всё"}
	defaultReadyKeywords     = []string{"готов"}
)

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

// Normalize performs validation of required configuration fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	tr := strings.ToLower(strings.TrimSpace(cfg.Transport))
	if tr == "" {
		tr = TransportTelegram
	}
	switch tr {
	case TransportTelegram:
		if err := normalizeTelegram(cfg); err != nil {
			return err
		}
	case TransportWhatsApp:
		if err := normalizeWhatsApp(cfg); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid transport %q; allowed: telegram, whatsapp", cfg.Transport)
	}
	cfg.Transport = tr

	if err := normalizeRateLimit(&cfg.RateLimit); err != nil {
		return err
	}
	if err := normalizeIntake(&cfg.Intake); err != nil {
		return err
	}
	if err := normalizeCatalog(cfg); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Orders.URL) == "" {
		return fmt.Errorf("orders.url is required")
	}
	if cfg.Orders.Timeout <= 0 {
		cfg.Orders.Timeout = 15 * time.Second
	}
	cfg.AdminChatID = strings.TrimSpace(cfg.AdminChatID)
	return nil
}

func normalizeTelegram(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if err := requireListener(cfg.Webhook, "telegram.run_mode is 'webhook'"); err != nil {
			return err
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeWhatsApp(cfg *Config) error {
	wa := &cfg.WhatsApp
	wa.APIURL = strings.TrimRight(strings.TrimSpace(wa.APIURL), "/")
	if wa.APIURL == "" {
		return fmt.Errorf("whatsapp.api_url is required when transport is 'whatsapp'")
	}
	if strings.TrimSpace(wa.InstanceID) == "" {
		return fmt.Errorf("whatsapp.instance_id is required when transport is 'whatsapp'")
	}
	if strings.TrimSpace(wa.Token) == "" {
		return fmt.Errorf("whatsapp.token is required when transport is 'whatsapp'")
	}
	if wa.ReceiveTimeoutSeconds < 0 {
		return fmt.Errorf("whatsapp.receive_timeout_seconds must be >= 0")
	}
	if wa.ReceiveTimeoutSeconds == 0 {
		wa.ReceiveTimeoutSeconds = 5
	}

	rm := strings.ToLower(strings.TrimSpace(wa.RunMode))
	switch rm {
	case "", RunModeWebhook:
		wa.RunMode = RunModeWebhook
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			cfg.Webhook.Listen = "0.0.0.0"
		}
		return requireListener(cfg.Webhook, "whatsapp.run_mode is 'webhook'")
	case RunModeLongpoll, "polling":
		wa.RunMode = RunModeLongpoll
		return nil
	default:
		return fmt.Errorf("invalid whatsapp.run_mode %q; allowed: webhook, longpoll", wa.RunMode)
	}
}

func requireListener(wh WebhookConfig, when string) error {
	if strings.TrimSpace(wh.Listen) == "" {
		return fmt.Errorf("webhook.listen is required when %s", when)
	}
	if wh.Port <= 0 {
		return fmt.Errorf("webhook.port must be > 0 when %s", when)
	}
	return nil
}

func normalizeRateLimit(rl *RateLimitConfig) error {
	allowed := map[string]struct{}{
		UpdateMessage:  {},
		UpdatePhoto:    {},
		UpdateDocument: {},
	}
	for i, v := range rl.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: message, photo, document", v)
		}
		rl.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeIntake(in *IntakeConfig) error {
	if in.SweepInterval <= 0 {
		in.SweepInterval = 10 * time.Second
	}
	if in.NoFilesTimeout <= 0 {
		in.NoFilesTimeout = 60 * time.Second
	}
	if in.RepeatInterval <= 0 {
		in.RepeatInterval = 30 * time.Second
	}
	if in.MaxRepeats < 0 {
		return fmt.Errorf("intake.max_repeats must be >= 0")
	}
	if in.MaxRepeats == 0 {
		in.MaxRepeats = 3
	}
	if in.QueueSize <= 0 {
		in.QueueSize = 100
	}
	in.CancelKeywords = normalizeKeywords(in.CancelKeywords, defaultCancelKeywords)
	in.FilesDoneKeywords = normalizeKeywords(in.FilesDoneKeywords, defaultFilesDoneKeywords)
	in.ReadyKeywords = normalizeKeywords(in.ReadyKeywords, defaultReadyKeywords)
	return nil
}

func normalizeKeywords(list, fallback []string) []string {
	out := make([]string, 0, len(list))
	for _, k := range list {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func normalizeCatalog(cfg *Config) error {
	src := strings.ToLower(strings.TrimSpace(cfg.Catalog.Source))
	if src == "" {
		src = CatalogSourceFile
	}
	switch src {
	case CatalogSourceFile:
		if strings.TrimSpace(cfg.Catalog.Path) == "" {
			cfg.Catalog.Path = "paper.json"
		}
	case CatalogSourcePostgres:
		db := &cfg.Database
		if db.Host == "" || db.Name == "" {
			return fmt.Errorf("database.host and database.name are required when catalog.source is 'postgres'")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
		if db.MaxConnections <= 0 {
			db.MaxConnections = 4
		}
		if db.MigrationsDir == "" {
			db.MigrationsDir = "migrations"
		}
		cfg.Catalog.Watch = false
	default:
		return fmt.Errorf("invalid catalog.source %q; allowed: file, postgres", cfg.Catalog.Source)
	}
	cfg.Catalog.Source = src
	return nil
}
