package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/john/leakwatch/internal/link"
	"github.com/john/leakwatch/internal/signature"
)

// Config holds the application configuration
type Config struct {
	Telegram       TelegramConfig   `yaml:"telegram"`
	Signatures     []string         `yaml:"signatures"`
	SignaturesFile string           `yaml:"signatures_file"`
	LinkHosts      []string         `yaml:"link_hosts"`
	Files          FilesConfig      `yaml:"files"`
	Crawler        CrawlerConfig    `yaml:"crawler"`
	Dispatcher     DispatcherConfig `yaml:"dispatcher"`
	Twitch         TwitchConfig     `yaml:"twitch"`
	Kick           KickConfig       `yaml:"kick"`
	Notifier       NotifierConfig   `yaml:"notifier"`
	S3             S3Config         `yaml:"s3"`
	Archive        ArchiveConfig    `yaml:"archive"`
	Health         HealthConfig     `yaml:"health"`
	LogLevel       string           `yaml:"log_level"`
}

// TelegramConfig holds the monitoring account's session settings
type TelegramConfig struct {
	APIID       int    `yaml:"api_id"`
	APIHash     string `yaml:"api_hash"`
	Phone       string `yaml:"phone"`
	Password    string `yaml:"password"` // 2FA password, if the account has one
	SessionFile string `yaml:"session_file"`
	MuteJoined  *bool  `yaml:"mute_joined"`
}

// FilesConfig holds the paths of the persisted journals
type FilesConfig struct {
	AlertLog           string `yaml:"alert_log"`
	LinksFile          string `yaml:"links_file"`
	ErrorLog           string `yaml:"error_log"`
	ErrorLogMaxSizeMB  int    `yaml:"error_log_max_size_mb"`
	ErrorLogMaxBackups int    `yaml:"error_log_max_backups"`
}

// CrawlerConfig holds auto-join settings
type CrawlerConfig struct {
	Enabled        *bool   `yaml:"enabled"`
	JoinsPerMinute float64 `yaml:"joins_per_minute"`
	Burst          int     `yaml:"burst"`
}

// DispatcherConfig holds event loop settings
type DispatcherConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// TwitchConfig holds Twitch-specific configuration
type TwitchConfig struct {
	Username string   `yaml:"username"`
	OAuth    string   `yaml:"oauth"`
	Channels []string `yaml:"channels"`
}

// KickConfig holds Kick-specific configuration
type KickConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Channels []KickChannel `yaml:"channels"`
}

// KickChannel is a Kick channel with an optional pre-resolved chatroom ID
type KickChannel struct {
	Slug       string `yaml:"slug"`
	ChatroomID int    `yaml:"chatroom_id"`
}

// NotifierConfig holds alert forwarding targets
type NotifierConfig struct {
	TelegramToken   string   `yaml:"telegram_token"`
	TelegramChatIDs []int64  `yaml:"telegram_chat_ids"`
	KafkaBrokers    []string `yaml:"kafka_brokers"`
	KafkaTopic      string   `yaml:"kafka_topic"`
}

// S3Config holds archive upload configuration
type S3Config struct {
	Bucket               string `yaml:"bucket"`
	Region               string `yaml:"region"`
	Prefix               string `yaml:"prefix"`
	RoleARN              string `yaml:"role_arn"`                // Assumed with a web identity token
	WebIdentityTokenFile string `yaml:"web_identity_token_file"` // OIDC token for RoleARN
	AccessKeyID          string `yaml:"access_key_id"`           // Static credentials
	SecretAccessKey      string `yaml:"secret_access_key"`
	Endpoint             string `yaml:"endpoint"` // For S3-compatible services
}

// ArchiveConfig holds archive scheduling
type ArchiveConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	MaxRetries      int `yaml:"max_retries"`
}

// HealthConfig holds the health/metrics listener
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// MuteJoinedGroups reports whether groups joined by the crawler get muted.
func (c *Config) MuteJoinedGroups() bool {
	return c.Telegram.MuteJoined == nil || *c.Telegram.MuteJoined
}

// CrawlerEnabled reports whether discovered links are auto-joined.
func (c *Config) CrawlerEnabled() bool {
	return c.Crawler.Enabled == nil || *c.Crawler.Enabled
}

// S3Enabled reports whether journals are archived.
func (c *Config) S3Enabled() bool {
	return c.S3.Bucket != ""
}

// Load loads configuration from a file. A missing file is not an error:
// the monitor can run purely from environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// environment only
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if id := os.Getenv("TG_API_ID"); id != "" {
		n, err := strconv.Atoi(id)
		if err != nil {
			return fmt.Errorf("TG_API_ID must be numeric: %w", err)
		}
		cfg.Telegram.APIID = n
	}
	if hash := os.Getenv("TG_API_HASH"); hash != "" {
		cfg.Telegram.APIHash = hash
	}
	if phone := os.Getenv("TG_PHONE"); phone != "" {
		cfg.Telegram.Phone = phone
	}
	if password := os.Getenv("TG_PASSWORD"); password != "" {
		cfg.Telegram.Password = password
	}
	if oauth := os.Getenv("TWITCH_OAUTH"); oauth != "" {
		cfg.Twitch.OAuth = oauth
	}
	if token := os.Getenv("NOTIFIER_TELEGRAM_TOKEN"); token != "" {
		cfg.Notifier.TelegramToken = token
	}
	if roleARN := os.Getenv("AWS_ROLE_ARN"); roleARN != "" {
		cfg.S3.RoleARN = roleARN
	}
	if tokenFile := os.Getenv("AWS_WEB_IDENTITY_TOKEN_FILE"); tokenFile != "" {
		cfg.S3.WebIdentityTokenFile = tokenFile
	}
	if keyID := os.Getenv("S3_ACCESS_KEY_ID"); keyID != "" {
		cfg.S3.AccessKeyID = keyID
	}
	if secretKey := os.Getenv("S3_SECRET_ACCESS_KEY"); secretKey != "" {
		cfg.S3.SecretAccessKey = secretKey
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Telegram.SessionFile == "" {
		cfg.Telegram.SessionFile = "session_monitor.json"
	}
	if len(cfg.Signatures) == 0 && cfg.SignaturesFile == "" {
		cfg.Signatures = append([]string(nil), signature.Defaults...)
	}
	if len(cfg.LinkHosts) == 0 {
		cfg.LinkHosts = append([]string(nil), link.DefaultHosts...)
	}
	if cfg.Files.AlertLog == "" {
		cfg.Files.AlertLog = "threat_alerts.log"
	}
	if cfg.Files.LinksFile == "" {
		cfg.Files.LinksFile = "discovered_groups.txt"
	}
	if cfg.Files.ErrorLog == "" {
		cfg.Files.ErrorLog = "system_error.log"
	}
	if cfg.Files.ErrorLogMaxSizeMB == 0 {
		cfg.Files.ErrorLogMaxSizeMB = 10
	}
	if cfg.Files.ErrorLogMaxBackups == 0 {
		cfg.Files.ErrorLogMaxBackups = 3
	}
	if cfg.Crawler.JoinsPerMinute == 0 {
		cfg.Crawler.JoinsPerMinute = 2
	}
	if cfg.Crawler.Burst == 0 {
		cfg.Crawler.Burst = 1
	}
	if cfg.Dispatcher.BufferSize == 0 {
		cfg.Dispatcher.BufferSize = 100
	}
	if cfg.Notifier.KafkaTopic == "" {
		cfg.Notifier.KafkaTopic = "leakwatch.alerts"
	}
	if cfg.Archive.IntervalMinutes == 0 {
		cfg.Archive.IntervalMinutes = 60
	}
	if cfg.Archive.MaxRetries == 0 {
		cfg.Archive.MaxRetries = 3
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 {
		return fmt.Errorf("telegram.api_id is required (or set TG_API_ID env var)")
	}
	if c.Telegram.APIHash == "" {
		return fmt.Errorf("telegram.api_hash is required (or set TG_API_HASH env var)")
	}
	if c.Crawler.JoinsPerMinute < 0 {
		return fmt.Errorf("crawler.joins_per_minute must not be negative")
	}
	if c.Dispatcher.BufferSize < 1 {
		return fmt.Errorf("dispatcher.buffer_size must be positive")
	}
	if len(c.Twitch.Channels) > 0 {
		if c.Twitch.Username == "" {
			return fmt.Errorf("twitch.username is required when twitch channels are set")
		}
		if c.Twitch.OAuth == "" {
			return fmt.Errorf("twitch.oauth is required (or set TWITCH_OAUTH env var)")
		}
	}
	if c.Notifier.TelegramToken != "" && len(c.Notifier.TelegramChatIDs) == 0 {
		return fmt.Errorf("notifier.telegram_chat_ids is required when telegram_token is set")
	}
	if c.S3Enabled() {
		if c.S3.Region == "" {
			return fmt.Errorf("s3.region is required")
		}
		// If using static credentials, both key and secret are required
		if c.S3.AccessKeyID != "" && c.S3.SecretAccessKey == "" {
			return fmt.Errorf("s3.secret_access_key is required when using access_key_id")
		}
		if c.S3.RoleARN != "" && c.S3.WebIdentityTokenFile == "" {
			return fmt.Errorf("s3.web_identity_token_file is required when using role_arn")
		}
	}
	return nil
}

// SignatureSet builds the signature set from the inline list followed by
// the signatures file, if any.
func (c *Config) SignatureSet() (signature.Set, error) {
	terms := append([]string(nil), c.Signatures...)

	if c.SignaturesFile != "" {
		f, err := os.Open(c.SignaturesFile)
		if err != nil {
			return signature.Set{}, fmt.Errorf("open signatures file: %w", err)
		}
		defer f.Close()

		more, err := signature.Read(f)
		if err != nil {
			return signature.Set{}, err
		}
		terms = append(terms, more...)
	}

	set := signature.New(terms...)
	if set.Len() == 0 {
		return signature.Set{}, fmt.Errorf("signature set is empty")
	}
	return set, nil
}
