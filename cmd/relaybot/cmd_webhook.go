package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhaopengme/mcprelay/pkg/config"
	"github.com/zhaopengme/mcprelay/pkg/logger"
	"github.com/zhaopengme/mcprelay/pkg/webhook"
)

func webhookCmd() {
	cfg := loadConfig(config.ModeWebhook)
	fmt.Printf("%s Starting MCP Telegram bot (webhook)...\n", logo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRelayRuntime(cfg, config.ModeWebhook)
	if err != nil {
		logger.FatalCF("main", "Failed to initialize bot", map[string]interface{}{"error": err.Error()})
	}
	if err := rt.start(ctx); err != nil {
		stop()
		rt.stop()
		logger.FatalCF("main", "Failed to start bot", map[string]interface{}{"error": err.Error()})
	}

	server := webhook.NewServer(cfg.Webhook, rt.telegram, rt.telegram, rt.heartbeat)
	runErr := server.Run(ctx)

	stop()
	rt.stop()
	if runErr != nil {
		logger.FatalCF("main", "Webhook server failed", map[string]interface{}{"error": runErr.Error()})
	}
}
