// MCPRelay - Telegram to MCP chat relay
// License: MIT
//
// Copyright (c) 2026 MCPRelay contributors

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/zhaopengme/mcprelay/pkg/keychain"
)

const (
	DefaultEndpoint       = "http://localhost:8000/chat"
	DefaultModel          = "mistralai/mistral-7b-instruct:free"
	DefaultRequestTimeout = 60
	DefaultListen         = ":8080"
	DefaultWebhookPath    = "/webhook"
	DefaultLogFile        = "chat_logs.txt"
	DefaultHeartbeatText  = "ping"
)

// Mode selects how updates reach the bot.
type Mode string

const (
	ModePolling Mode = "polling"
	ModeWebhook Mode = "webhook"
	ModeConsole Mode = "console"
)

var (
	ErrMissingToken     = errors.New("TELEGRAM_TOKEN not set")
	ErrMissingPublicURL = errors.New("BOT_URL not set (required for webhook mode)")
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Relay     RelayConfig     `json:"relay"`
	Webhook   WebhookConfig   `json:"webhook"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Log       LogConfig       `json:"log"`
}

type TelegramConfig struct {
	Token         string   `json:"token" env:"TELEGRAM_TOKEN"`
	Proxy         string   `json:"proxy" env:"MCPRELAY_TELEGRAM_PROXY"`
	AllowFrom     []string `json:"allow_from" env:"MCPRELAY_TELEGRAM_ALLOW_FROM" envSeparator:","`
	WebhookSecret string   `json:"webhook_secret" env:"MCPRELAY_TELEGRAM_WEBHOOK_SECRET"`
}

type RelayConfig struct {
	Endpoint              string `json:"endpoint" env:"MCP_SERVER_URL"`
	Model                 string `json:"model" env:"MCP_MODEL"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" env:"MCPRELAY_REQUEST_TIMEOUT_SECONDS"`
}

// RequestTimeout is the per-call bound applied to every inference request.
func (c RelayConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

type WebhookConfig struct {
	Listen    string `json:"listen" env:"MCPRELAY_WEBHOOK_LISTEN"`
	PublicURL string `json:"public_url" env:"BOT_URL"`
	Path      string `json:"path" env:"MCPRELAY_WEBHOOK_PATH"`
}

// URL is the address Telegram pushes updates to.
// RoutePath is the path the webhook server listens on, always rooted.
func (c WebhookConfig) RoutePath() string {
	path := strings.TrimSpace(c.Path)
	if path == "" {
		return DefaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func (c WebhookConfig) URL() string {
	return strings.TrimRight(c.PublicURL, "/") + c.RoutePath()
}

type HeartbeatConfig struct {
	Cron    string `json:"cron" env:"MCPRELAY_HEARTBEAT_CRON"`
	Message string `json:"message" env:"MCPRELAY_HEARTBEAT_MESSAGE"`
}

type LogConfig struct {
	File  string `json:"file" env:"MCPRELAY_LOG_FILE"`
	Level string `json:"level" env:"MCPRELAY_LOG_LEVEL"`
}

func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Endpoint:              DefaultEndpoint,
			Model:                 DefaultModel,
			RequestTimeoutSeconds: DefaultRequestTimeout,
		},
		Webhook: WebhookConfig{
			Listen: DefaultListen,
			Path:   DefaultWebhookPath,
		},
		Heartbeat: HeartbeatConfig{
			Message: DefaultHeartbeatText,
		},
		Log: LogConfig{
			File:  DefaultLogFile,
			Level: "info",
		},
	}
}

// LoadConfig layers, in order: defaults, the JSON file at path (if present),
// a .env file next to the working directory, the process environment, and
// finally the OS keychain for a still-missing bot token.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.Telegram.Token == "" {
		if token, err := keychain.Get(keychain.TelegramAccount); err == nil {
			cfg.Telegram.Token = token
		}
	}

	return cfg, nil
}

// SaveConfig writes cfg as indented JSON, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0600)
}

// Validate reports configuration that would make the given mode unusable.
func (c *Config) Validate(mode Mode) error {
	if mode != ModeConsole && strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingToken
	}

	u, err := url.Parse(c.Relay.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid MCP server URL %q", c.Relay.Endpoint)
	}
	if c.Relay.Model == "" {
		return errors.New("model must not be empty")
	}
	if c.Relay.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive, got %d", c.Relay.RequestTimeoutSeconds)
	}

	if mode == ModeWebhook {
		if strings.TrimSpace(c.Webhook.PublicURL) == "" {
			return ErrMissingPublicURL
		}
		pu, err := url.Parse(c.Webhook.PublicURL)
		if err != nil || pu.Scheme != "https" && pu.Scheme != "http" || pu.Host == "" {
			return fmt.Errorf("invalid public URL %q", c.Webhook.PublicURL)
		}
	}
	return nil
}
