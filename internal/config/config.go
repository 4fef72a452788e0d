// Package config holds the process configuration loaded from the
// environment and the operator-editable network settings document.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/chinda73971177/soc/internal/model"
)

// Config holds the runtime configuration
type Config struct {
	HTTPAddr    string `json:"http_addr"`
	DatabaseURL string `json:"database_url"`
	NATSURL     string `json:"nats_url"`
	LogLevel    string `json:"log_level"`

	// Detection inputs
	RulesDir        string `json:"rules_dir"`
	EngineRulesFile string `json:"engine_rules_file"`
	EveFilePath     string `json:"eve_file_path"`
	DemoMode        bool   `json:"demo_mode"`

	// Capture loop
	CaptureEnabled  bool          `json:"capture_enabled"`
	CaptureInterval time.Duration `json:"capture_interval"`
	AlertQueueSize  int           `json:"alert_queue_size"`

	// Feed polling
	FeedPollInterval time.Duration `json:"feed_poll_interval"`
	FeedLimit        int           `json:"feed_limit"`
	FeedMaxAge       time.Duration `json:"feed_max_age"`

	// Notification gating
	NotifiedCap         int            `json:"notified_cap"`
	TelegramMinSeverity model.Severity `json:"telegram_min_severity"`
	WhatsAppMinSeverity model.Severity `json:"whatsapp_min_severity"`

	// Channel credentials
	TelegramBotToken string `json:"-"`
	TelegramChatID   string `json:"telegram_chat_id"`
	TwilioAccountSID string `json:"-"`
	TwilioAuthToken  string `json:"-"`
	WhatsAppFrom     string `json:"whatsapp_from"`
	WhatsAppTo       string `json:"whatsapp_to"`

	// Persisted network settings document
	NetworkConfigPath string `json:"network_config_path"`

	// Upload ingestion
	UploadMaxBytes int64 `json:"upload_max_bytes"`

	// Database startup
	DBConnectMaxWait time.Duration `json:"db_connect_max_wait"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:    getEnv("SOC_HTTP_ADDR", ":8080"),
		DatabaseURL: getEnv("SOC_DATABASE_URL", ""),
		NATSURL:     getEnv("SOC_NATS_URL", ""),
		LogLevel:    getEnv("SOC_LOG_LEVEL", "info"),

		RulesDir:        getEnv("SOC_RULES_DIR", "rules"),
		EngineRulesFile: getEnv("SOC_ENGINE_RULES_FILE", "rules/local.rules"),
		EveFilePath:     getEnv("SOC_EVE_FILE", "/var/log/suricata/eve.json"),
		DemoMode:        getBoolEnv("SOC_DEMO_MODE", true),

		CaptureEnabled:  getBoolEnv("SOC_CAPTURE_ENABLED", true),
		CaptureInterval: getDurationEnv("SOC_CAPTURE_INTERVAL_MS", time.Second, time.Millisecond),
		AlertQueueSize:  getIntEnv("SOC_ALERT_QUEUE_SIZE", 256),

		FeedPollInterval: getDurationEnv("SOC_FEED_POLL_INTERVAL_SEC", 5*time.Minute, time.Second),
		FeedLimit:        getIntEnv("SOC_FEED_LIMIT", 100),
		FeedMaxAge:       getDurationEnv("SOC_FEED_MAX_AGE_SEC", 24*time.Hour, time.Second),

		NotifiedCap:         getIntEnv("SOC_NOTIFIED_CAP", 10000),
		TelegramMinSeverity: model.Severity(getEnv("SOC_TELEGRAM_MIN_SEVERITY", "high")),
		WhatsAppMinSeverity: model.Severity(getEnv("SOC_WHATSAPP_MIN_SEVERITY", "critical")),

		TelegramBotToken: getEnv("SOC_TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("SOC_TELEGRAM_CHAT_ID", ""),
		TwilioAccountSID: getEnv("SOC_TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("SOC_TWILIO_AUTH_TOKEN", ""),
		WhatsAppFrom:     getEnv("SOC_WHATSAPP_FROM", ""),
		WhatsAppTo:       getEnv("SOC_WHATSAPP_TO", ""),

		NetworkConfigPath: getEnv("SOC_NETWORK_CONFIG_PATH", "network_config.json"),

		UploadMaxBytes: getInt64Env("SOC_UPLOAD_MAX_BYTES", 50*1024*1024),

		DBConnectMaxWait: getDurationEnv("SOC_DB_CONNECT_MAX_WAIT_SEC", time.Minute, time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr cannot be empty")
	}
	if !c.TelegramMinSeverity.Valid() {
		return fmt.Errorf("telegram_min_severity %q is not a severity", c.TelegramMinSeverity)
	}
	if !c.WhatsAppMinSeverity.Valid() {
		return fmt.Errorf("whatsapp_min_severity %q is not a severity", c.WhatsAppMinSeverity)
	}
	if c.FeedPollInterval <= 0 {
		return fmt.Errorf("feed_poll_interval must be positive")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("upload_max_bytes must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable with a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64Env gets an int64 environment variable with a default value
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv gets a bool environment variable with a default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable expressed in the given
// unit, with a default value
func getDurationEnv(key string, defaultValue, unit time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * unit
		}
	}
	return defaultValue
}

// Thresholds returns the per-channel minimum severities.
func (c *Config) Thresholds() map[string]model.Severity {
	return map[string]model.Severity{
		"telegram": c.TelegramMinSeverity,
		"whatsapp": c.WhatsAppMinSeverity,
	}
}
