// MCPRelay - Telegram to MCP chat relay
// License: MIT
//
// Copyright (c) 2026 MCPRelay contributors

package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/zhaopengme/mcprelay/pkg/bus"
	"github.com/zhaopengme/mcprelay/pkg/config"
	"github.com/zhaopengme/mcprelay/pkg/logger"
	"github.com/zhaopengme/mcprelay/pkg/utils"
)

const (
	// Telegram rejects messages longer than 4096 characters.
	maxMessageRunes = 4000

	maxUpdateBytes = 1 << 20

	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
)

type TelegramChannel struct {
	*BaseChannel
	bot     *telego.Bot
	config  config.TelegramConfig
	mode    config.Mode
	handler *th.BotHandler
	updates chan telego.Update
	done    chan struct{}
	mu      sync.Mutex
}

func NewTelegramChannel(cfg *config.Config, b bus.Publisher, mode config.Mode) (*TelegramChannel, error) {
	var opts []telego.BotOption
	telegramCfg := cfg.Telegram

	if telegramCfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(telegramCfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", telegramCfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	} else if os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" {
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}))
	}
	opts = append(opts, telego.WithLogger(telegoLogger{}))

	bot, err := telego.NewBot(telegramCfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", b, telegramCfg.AllowFrom),
		bot:         bot,
		config:      telegramCfg,
		mode:        mode,
	}, nil
}

// Start begins receiving updates. In polling mode it opens a long-poll loop;
// in webhook mode updates arrive through ServeHTTP.
func (c *TelegramChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var updates <-chan telego.Update
	switch c.mode {
	case config.ModeWebhook:
		logger.InfoC("telegram", "Starting Telegram bot (webhook mode)...")
		c.updates = make(chan telego.Update, bus.DefaultBufferSize)
		updates = c.updates
	default:
		logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")
		// Long polling is refused while a webhook is registered.
		if err := c.bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{}); err != nil {
			logger.WarnCF("telegram", "Failed to delete webhook before polling", map[string]interface{}{
				"error": err.Error(),
			})
		}
		polled, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
			Timeout: 30,
		})
		if err != nil {
			return fmt.Errorf("failed to start long polling: %w", err)
		}
		updates = polled
	}

	bh, err := c.newRouter(updates)
	if err != nil {
		return err
	}
	c.handler = bh
	c.done = make(chan struct{})

	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": c.bot.Username(),
		"mode":     string(c.mode),
	})

	go bh.Start()

	return nil
}

// newRouter registers the greeting/help commands and the plain-text relay
// handler. Other commands match nothing and are dropped.
func (c *TelegramChannel) newRouter(updates <-chan telego.Update) (*th.BotHandler, error) {
	bh, err := th.NewBotHandler(c.bot, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot handler: %w", err)
	}

	bh.HandleMessage(func(ctx *th.Context, message telego.Message) error {
		return c.handleMessage(ctx, &message, commandContent(message.Text), true)
	}, th.Or(th.CommandEqual("start"), th.CommandEqual("help")))

	bh.HandleMessage(func(ctx *th.Context, message telego.Message) error {
		return c.handleMessage(ctx, &message, message.Text, false)
	}, th.AnyMessageWithText(), th.Not(th.AnyCommand()))

	return bh, nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsRunning() {
		return nil
	}
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.setRunning(false)
	close(c.done)
	if c.handler != nil {
		c.handler.Stop()
	}
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, threadID, err := parseCompositeChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	var lastErr error
	for _, chunk := range splitMessage(msg.Content, maxMessageRunes) {
		params := tu.Message(tu.ID(chatID), chunk)
		if threadID != 0 {
			params.MessageThreadID = threadID
		}
		if _, err := c.bot.SendMessage(ctx, params); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// RegisterWebhook points Telegram at webhookURL. It is the webhook server's
// startup hook.
func (c *TelegramChannel) RegisterWebhook(ctx context.Context, webhookURL string) error {
	params := &telego.SetWebhookParams{
		URL:         webhookURL,
		SecretToken: c.config.WebhookSecret,
	}
	if err := c.bot.SetWebhook(ctx, params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	logger.InfoCF("telegram", "Webhook registered", map[string]interface{}{
		"url": webhookURL,
	})
	return nil
}

// ServeHTTP accepts one Telegram update per POST and feeds it to the router.
func (c *TelegramChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if c.config.WebhookSecret != "" && r.Header.Get(secretTokenHeader) != c.config.WebhookSecret {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var update telego.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		logger.WarnCF("telegram", "Failed to decode webhook update", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	updates, done := c.updates, c.done
	c.mu.Unlock()
	if !c.IsRunning() || updates == nil {
		http.Error(w, "not running", http.StatusServiceUnavailable)
		return
	}

	select {
	case updates <- update:
	case <-done:
		http.Error(w, "not running", http.StatusServiceUnavailable)
		return
	case <-r.Context().Done():
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (c *TelegramChannel) handleMessage(ctx context.Context, message *telego.Message, content string, command bool) error {
	if message == nil {
		return fmt.Errorf("message is nil")
	}

	user := message.From
	if user == nil {
		return fmt.Errorf("message sender (user) is nil")
	}

	senderID := fmt.Sprintf("%d", user.ID)
	if user.Username != "" {
		senderID = fmt.Sprintf("%d|%s", user.ID, user.Username)
	}

	if !c.IsAllowed(senderID) {
		logger.DebugCF("telegram", "Message rejected by allowlist", map[string]interface{}{
			"user_id": senderID,
		})
		return nil
	}

	chatID := message.Chat.ID
	chatIDStr := fmt.Sprintf("%d", chatID)

	// Forum topics reply into the same thread.
	if message.MessageThreadID != 0 {
		chatIDStr = fmt.Sprintf("%d:%d", chatID, message.MessageThreadID)
	}

	logger.DebugCF("telegram", "Received message", map[string]interface{}{
		"sender_id": senderID,
		"chat_id":   chatIDStr,
		"preview":   utils.Truncate(content, 50),
	})

	if !command {
		action := &telego.SendChatActionParams{
			ChatID: tu.ID(chatID),
			Action: telego.ChatActionTyping,
		}
		if message.MessageThreadID != 0 {
			action.MessageThreadID = message.MessageThreadID
		}
		if err := c.bot.SendChatAction(ctx, action); err != nil {
			logger.DebugCF("telegram", "Failed to send chat action", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	metadata := map[string]string{
		"message_id": fmt.Sprintf("%d", message.MessageID),
		"user_id":    fmt.Sprintf("%d", user.ID),
		"username":   user.Username,
		"first_name": user.FirstName,
		"is_group":   fmt.Sprintf("%t", message.Chat.Type != telego.ChatTypePrivate),
	}
	if command {
		metadata[bus.MetadataCommand] = "true"
	}

	return c.HandleMessage(ctx, fmt.Sprintf("%d", user.ID), chatIDStr, content, metadata)
}

// commandContent normalizes "/start@MyBot arg" to "/start arg".
func commandContent(text string) string {
	cmd, _, args := tu.ParseCommand(text)
	if cmd == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace("/" + cmd + " " + strings.Join(args, " "))
}

func parseCompositeChatID(chatIDStr string) (int64, int, error) {
	parts := strings.SplitN(chatIDStr, ":", 2)
	chatID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid chat ID format: %w", err)
	}

	var threadID int
	if len(parts) > 1 {
		threadID, err = strconv.Atoi(parts[1])
		if err != nil {
			return chatID, 0, fmt.Errorf("invalid thread ID format: %w", err)
		}
	}

	return chatID, threadID, nil
}

// splitMessage cuts text into chunks of at most maxRunes runes, preferring
// to break after a newline.
func splitMessage(text string, maxRunes int) []string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return []string{text}
	}

	var chunks []string
	for len(runes) > maxRunes {
		cut := maxRunes
		for i := maxRunes - 1; i > maxRunes/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// telegoLogger routes telego's internal logging through our logger.
type telegoLogger struct{}

func (telegoLogger) Debugf(format string, args ...any) {
	logger.DebugC("telego", fmt.Sprintf(format, args...))
}

func (telegoLogger) Errorf(format string, args ...any) {
	logger.ErrorC("telego", fmt.Sprintf(format, args...))
}
