package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/zhaopengme/mcprelay/pkg/keychain"
)

// isolate runs the test from an empty directory with a mocked keychain and
// no relay-related variables in the environment.
func isolate(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, name := range []string{
		"TELEGRAM_TOKEN", "MCP_SERVER_URL", "MCP_MODEL", "BOT_URL",
		"MCPRELAY_TELEGRAM_ALLOW_FROM", "MCPRELAY_REQUEST_TIMEOUT_SECONDS",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig("does-not-exist.json")
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, cfg.Relay.Endpoint)
	assert.Equal(t, DefaultModel, cfg.Relay.Model)
	assert.Equal(t, 60*time.Second, cfg.Relay.RequestTimeout())
	assert.Equal(t, DefaultLogFile, cfg.Log.File)
	assert.Empty(t, cfg.Telegram.Token)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"telegram": {"token": "file-token", "allow_from": ["1"]},
		"relay": {"endpoint": "http://file:9000/chat", "model": "file-model"}
	}`), 0600))

	t.Setenv("MCP_SERVER_URL", "http://env:9000/chat")
	t.Setenv("MCPRELAY_TELEGRAM_ALLOW_FROM", "7,8")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "file-token", cfg.Telegram.Token)
	assert.Equal(t, "http://env:9000/chat", cfg.Relay.Endpoint)
	assert.Equal(t, "file-model", cfg.Relay.Model)
	assert.Equal(t, []string{"7", "8"}, cfg.Telegram.AllowFrom)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("TELEGRAM_TOKEN=dotenv-token\nMCP_MODEL=dotenv-model\n"), 0600))
	t.Cleanup(func() {
		os.Unsetenv("TELEGRAM_TOKEN")
		os.Unsetenv("MCP_MODEL")
	})

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-token", cfg.Telegram.Token)
	assert.Equal(t, "dotenv-model", cfg.Relay.Model)
}

func TestLoadConfigKeychainFallback(t *testing.T) {
	isolate(t)
	require.NoError(t, keychain.Set(keychain.TelegramAccount, "keychain-token"))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "keychain-token", cfg.Telegram.Token)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Relay.Model = "saved-model"

	require.NoError(t, SaveConfig(path, cfg))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-model", loaded.Relay.Model)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Telegram.Token = "123:abc"
		cfg.Webhook.PublicURL = "https://bot.example.com"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		mode    Mode
		wantErr error
		anyErr  bool
	}{
		{name: "polling ok", mode: ModePolling},
		{name: "webhook ok", mode: ModeWebhook},
		{name: "missing token", mode: ModePolling, mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: ErrMissingToken},
		{name: "console ignores token", mode: ModeConsole, mutate: func(c *Config) { c.Telegram.Token = "" }},
		{name: "missing public url", mode: ModeWebhook, mutate: func(c *Config) { c.Webhook.PublicURL = "" }, wantErr: ErrMissingPublicURL},
		{name: "polling ignores public url", mode: ModePolling, mutate: func(c *Config) { c.Webhook.PublicURL = "" }},
		{name: "bad endpoint", mode: ModePolling, mutate: func(c *Config) { c.Relay.Endpoint = "localhost:8000" }, anyErr: true},
		{name: "zero timeout", mode: ModePolling, mutate: func(c *Config) { c.Relay.RequestTimeoutSeconds = 0 }, anyErr: true},
		{name: "empty model", mode: ModePolling, mutate: func(c *Config) { c.Relay.Model = "" }, anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestWebhookURL(t *testing.T) {
	tests := []struct {
		public, path, want string
	}{
		{"https://bot.example.com", "/webhook", "https://bot.example.com/webhook"},
		{"https://bot.example.com/", "/webhook", "https://bot.example.com/webhook"},
		{"https://bot.example.com", "hook", "https://bot.example.com/hook"},
		{"https://bot.example.com", "", "https://bot.example.com/webhook"},
	}
	for _, tt := range tests {
		got := WebhookConfig{PublicURL: tt.public, Path: tt.path}.URL()
		assert.Equal(t, tt.want, got)
	}
}

func TestWebhookRoutePath(t *testing.T) {
	tests := map[string]string{
		"":          DefaultWebhookPath,
		"  ":        DefaultWebhookPath,
		"/webhook":  "/webhook",
		"webhook":   "/webhook",
		"tg/update": "/tg/update",
	}
	for in, want := range tests {
		assert.Equal(t, want, WebhookConfig{Path: in}.RoutePath(), in)
	}
}
