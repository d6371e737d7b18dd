package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/zhaopengme/mcprelay/pkg/bus"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

type BaseChannel struct {
	name      string
	bus       bus.Publisher
	allowList []string
	running   atomic.Bool
}

func NewBaseChannel(name string, b bus.Publisher, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       b,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}

// IsAllowed checks senderID against the allow list. senderID is either
// "<id>" or "<id>|<username>"; entries may name the id, the username, or
// "@username". An empty list allows everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	id, username, _ := strings.Cut(senderID, "|")
	for _, allowed := range c.allowList {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if allowed == senderID || allowed == id {
			return true
		}
		if username != "" && strings.TrimPrefix(allowed, "@") == username {
			return true
		}
	}
	return false
}

func (c *BaseChannel) HandleMessage(ctx context.Context, senderID, chatID, content string, metadata map[string]string) error {
	return c.bus.PublishInbound(ctx, bus.InboundMessage{
		Channel:  c.name,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Metadata: metadata,
	})
}
