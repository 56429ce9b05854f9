package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	envConfigPath        = "UPSIDEDOWN_CONFIG"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
	envTelegramAdmins    = "TELEGRAM_ADMINS"
)

const (
	DefaultMaxMessageLength     = 25
	DefaultMaxMessagesPerAuthor = 5
	DefaultPasswordsPath        = "word-list.txt"
	DefaultResponseTimeoutMs    = 2000
	DefaultSendRatePerSec       = 1
	DefaultCharOnMs             = 1300
	DefaultCharGapMs            = 200
	DefaultCooldownMs           = 1500
	DefaultIdleBrightness       = 8
	DefaultFullBrightness       = 255
	DefaultQueueSize            = 256
	DefaultConsoleSenderID      = "console"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Limits    LimitsConfig    `json:"limits"`
	Passwords PasswordsConfig `json:"passwords"`
	Display   DisplayConfig   `json:"display"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Store     StoreConfig     `json:"store"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
	// File redirects log output away from stderr, used when the console UI owns the terminal.
	File string `json:"file,omitempty"`
}

// ChannelsConfig stores source adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Console  ConsoleConfig  `json:"console"`
	// ResponseTimeoutMs bounds how long an adapter waits for the reply to one message.
	ResponseTimeoutMs int `json:"response_timeout_ms"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
	// Admins lists sender ids treated as the wall's own account.
	Admins         []string `json:"admins"`
	SendRatePerSec int      `json:"send_rate_per_sec"`
}

// ConsoleConfig configures the local terminal channel.
type ConsoleConfig struct {
	Enabled    bool   `json:"enabled"`
	SenderID   string `json:"sender_id"`
	Privileged bool   `json:"privileged"`
}

// LimitsConfig seeds the runtime admission limits.
type LimitsConfig struct {
	MaxMessageLength     int  `json:"max_message_length"`
	MaxMessagesPerAuthor int  `json:"max_messages_per_author"`
	Debug                bool `json:"debug"`
}

// PasswordsConfig points at the one-time password word list.
type PasswordsConfig struct {
	Path  string `json:"path"`
	Watch bool   `json:"watch"`
}

// DisplayConfig tunes the letter wall timing and brightness.
type DisplayConfig struct {
	CharOnMs       int `json:"char_on_ms"`
	CharGapMs      int `json:"char_gap_ms"`
	CooldownMs     int `json:"cooldown_ms"`
	IdleBrightness int `json:"idle_brightness"`
	FullBrightness int `json:"full_brightness"`
	QueueSize      int `json:"queue_size"`
}

// ScheduleConfig holds optional cron schedules.
type ScheduleConfig struct {
	Animation string `json:"animation"`
	Timezone  string `json:"timezone"`
}

// StoreConfig enables the sqlite state store when Path is set.
type StoreConfig struct {
	Path          string `json:"path"`
	BusyTimeoutMs int    `json:"busy_timeout_ms"`
}

// GatewayConfig configures HTTP gateway bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CharOn returns how long one letter stays lit.
func (c DisplayConfig) CharOn() time.Duration {
	return time.Duration(c.CharOnMs) * time.Millisecond
}

// CharGap returns the dark pause between two letters.
func (c DisplayConfig) CharGap() time.Duration {
	return time.Duration(c.CharGapMs) * time.Millisecond
}

// Cooldown returns the pause after a finished message.
func (c DisplayConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// ResponseTimeout returns the bounded wait for a same-pass reply.
func (c ChannelsConfig) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutMs) * time.Millisecond
}

// BusyTimeout returns the sqlite busy timeout.
func (c StoreConfig) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

// ApplyDefaults fills zero values with the stock wall pacing and limits.
func (c *Config) ApplyDefaults() {
	if c == nil {
		return
	}

	if c.Limits.MaxMessageLength <= 0 {
		c.Limits.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.Limits.MaxMessagesPerAuthor <= 0 {
		c.Limits.MaxMessagesPerAuthor = DefaultMaxMessagesPerAuthor
	}
	if strings.TrimSpace(c.Passwords.Path) == "" {
		c.Passwords.Path = DefaultPasswordsPath
	}
	if c.Channels.ResponseTimeoutMs <= 0 {
		c.Channels.ResponseTimeoutMs = DefaultResponseTimeoutMs
	}
	if c.Channels.Telegram.SendRatePerSec <= 0 {
		c.Channels.Telegram.SendRatePerSec = DefaultSendRatePerSec
	}
	if strings.TrimSpace(c.Channels.Console.SenderID) == "" {
		c.Channels.Console.SenderID = DefaultConsoleSenderID
	}

	d := &c.Display
	if d.CharOnMs <= 0 {
		d.CharOnMs = DefaultCharOnMs
	}
	if d.CharGapMs < 0 {
		d.CharGapMs = 0
	} else if d.CharGapMs == 0 {
		d.CharGapMs = DefaultCharGapMs
	}
	if d.CooldownMs <= 0 {
		d.CooldownMs = DefaultCooldownMs
	}
	if d.IdleBrightness <= 0 || d.IdleBrightness > 255 {
		d.IdleBrightness = DefaultIdleBrightness
	}
	if d.FullBrightness <= 0 || d.FullBrightness > 255 {
		d.FullBrightness = DefaultFullBrightness
	}
	if d.QueueSize <= 0 {
		d.QueueSize = DefaultQueueSize
	}
}

// LoadConfig resolves config.json, unmarshals it, applies environment overrides and defaults.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFile(configPath)
}

// LoadFile reads one config file.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.ApplyDefaults()

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if rawAdmins := strings.TrimSpace(os.Getenv(envTelegramAdmins)); rawAdmins != "" {
		cfg.Channels.Telegram.Admins = parseCSV(rawAdmins)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is UPSIDEDOWN_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
