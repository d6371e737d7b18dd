package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zhaopengme/mcprelay/pkg/bus"
	"github.com/zhaopengme/mcprelay/pkg/logger"
)

// sendTimeout bounds a single outbound send once dispatch has been cancelled.
const sendTimeout = 30 * time.Second

// Manager owns the enabled channels and routes outbound messages to them.
type Manager struct {
	channels map[string]Channel
	bus      bus.Subscriber
	mu       sync.RWMutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewManager(b bus.Subscriber) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      b,
	}
}

func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.channels) == 0 {
		return fmt.Errorf("no channels registered")
	}

	dispatchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatchOutbound(dispatchCtx)
	}()

	for name, ch := range m.channels {
		logger.InfoCF("channels", "Starting channel", map[string]interface{}{"channel": name})
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", name, err)
		}
	}
	return nil
}

// StopAll stops outbound dispatch once the queued replies are sent, then
// stops every channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var firstErr error
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to stop channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		ch, exists := m.GetChannel(msg.Channel)
		if !exists {
			logger.WarnCF("channels", "No channel for outbound message", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
			})
			continue
		}

		if err := m.send(ctx, ch, msg); err != nil {
			logger.ErrorCF("channels", "Failed to send message", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
		}
	}
}

func (m *Manager) send(ctx context.Context, ch Channel, msg bus.OutboundMessage) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	return ch.Send(ctx, msg)
}
