package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/zhaopengme/mcprelay/pkg/bus"
	"github.com/zhaopengme/mcprelay/pkg/logger"
)

// replyTimeout bounds publishing a reply once the gateway is shutting down.
const replyTimeout = 5 * time.Second

const (
	GreetingText = "👋 Hello! I’m your MCP Bot. Ask me anything!"

	HelpText = `/start - Start the bot
/help - Show this help message

Any other text is sent to the MCP server and its reply is posted back here.`
)

// Relayer turns a user's text into a reply. It must not fail.
type Relayer interface {
	Relay(ctx context.Context, userID, text string) string
}

// CommandGateway answers built-in commands locally and relays everything
// else, one goroutine per message.
type CommandGateway struct {
	bus   bus.Broker
	relay Relayer
	wg    sync.WaitGroup
}

func NewCommandGateway(b bus.Broker, relay Relayer) *CommandGateway {
	return &CommandGateway{
		bus:   b,
		relay: relay,
	}
}

// Run consumes inbound messages until ctx is done or the bus closes, then
// waits for in-flight relays. Replies of relays that finish after ctx is
// cancelled are still published.
func (g *CommandGateway) Run(ctx context.Context) error {
	defer g.wg.Wait()

	for {
		msg, ok := g.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}

		if msg.Metadata[bus.MetadataCommand] == "true" {
			if response, handled := g.handleCommand(msg); handled {
				g.reply(ctx, msg, response)
			} else {
				logger.DebugCF("gateway", "Ignoring unknown command", map[string]interface{}{
					"chat_id": msg.ChatID,
					"command": msg.Content,
				})
			}
			continue
		}

		g.wg.Add(1)
		go func(msg bus.InboundMessage) {
			defer g.wg.Done()
			g.reply(ctx, msg, g.relay.Relay(ctx, msg.SenderID, msg.Content))
		}(msg)
	}
}

func (g *CommandGateway) handleCommand(msg bus.InboundMessage) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(msg.Content))
	if len(parts) == 0 {
		return "", false
	}

	cmd, _, _ := strings.Cut(parts[0], "@")
	switch cmd {
	case "/start":
		return GreetingText, true
	case "/help":
		return HelpText, true
	}
	return "", false
}

func (g *CommandGateway) reply(ctx context.Context, msg bus.InboundMessage, content string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()

	err := g.bus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
	})
	if err != nil && !errors.Is(err, bus.ErrClosed) {
		logger.ErrorCF("gateway", "Failed to publish reply", map[string]interface{}{
			"chat_id": msg.ChatID,
			"error":   err.Error(),
		})
	}
}
