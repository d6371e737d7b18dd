package main

import (
	"context"
	"fmt"
	"time"

	"github.com/zhaopengme/mcprelay/pkg/bus"
	"github.com/zhaopengme/mcprelay/pkg/channels"
	"github.com/zhaopengme/mcprelay/pkg/config"
	"github.com/zhaopengme/mcprelay/pkg/gateway"
	"github.com/zhaopengme/mcprelay/pkg/heartbeat"
	"github.com/zhaopengme/mcprelay/pkg/logger"
	"github.com/zhaopengme/mcprelay/pkg/relay"
)

// relayRuntime wires one delivery mode to the shared relay.
type relayRuntime struct {
	bus       *bus.MessageBus
	relay     *relay.Client
	telegram  *channels.TelegramChannel
	manager   *channels.Manager
	gateway   *gateway.CommandGateway
	heartbeat *heartbeat.HeartbeatService
	gwDone    chan struct{}
}

func newRelayRuntime(cfg *config.Config, mode config.Mode) (*relayRuntime, error) {
	msgBus := bus.NewMessageBus(bus.DefaultBufferSize)
	client := relay.NewClient(cfg.Relay.Endpoint, cfg.Relay.Model, cfg.Relay.RequestTimeout())

	telegram, err := channels.NewTelegramChannel(cfg, msgBus, mode)
	if err != nil {
		return nil, err
	}

	manager := channels.NewManager(msgBus)
	manager.Register(telegram)

	return &relayRuntime{
		bus:       msgBus,
		relay:     client,
		telegram:  telegram,
		manager:   manager,
		gateway:   gateway.NewCommandGateway(msgBus, client),
		heartbeat: heartbeat.NewHeartbeatService(cfg.Heartbeat, client),
		gwDone:    make(chan struct{}),
	}, nil
}

func (rt *relayRuntime) start(ctx context.Context) error {
	logger.InfoCF("relay", "Relaying to MCP server", map[string]interface{}{
		"endpoint": rt.relay.Endpoint(),
		"model":    rt.relay.Model(),
	})

	go func() {
		defer close(rt.gwDone)
		_ = rt.gateway.Run(ctx)
	}()

	if err := rt.heartbeat.Start(ctx); err != nil {
		return err
	}

	if err := rt.manager.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}
	logger.InfoCF("relay", "Channels enabled", map[string]interface{}{
		"channels": rt.manager.GetEnabledChannels(),
	})
	return nil
}

// stop expects the context given to start to be cancelled already. In-flight
// relays finish first so their replies are still delivered.
func (rt *relayRuntime) stop() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	select {
	case <-rt.gwDone:
	case <-stopCtx.Done():
		logger.WarnC("relay", "Timed out waiting for in-flight relays")
	}

	if err := rt.manager.StopAll(stopCtx); err != nil {
		logger.ErrorCF("relay", "Error stopping channels", map[string]interface{}{"error": err.Error()})
	}
	rt.heartbeat.Stop()

	rt.bus.Close()
	logger.DisableFileLogging()
}
