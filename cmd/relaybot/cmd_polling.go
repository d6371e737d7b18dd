package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhaopengme/mcprelay/pkg/config"
	"github.com/zhaopengme/mcprelay/pkg/logger"
)

func pollingCmd() {
	cfg := loadConfig(config.ModePolling)
	fmt.Printf("%s Starting MCP Telegram bot...\n", logo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRelayRuntime(cfg, config.ModePolling)
	if err != nil {
		logger.FatalCF("main", "Failed to initialize bot", map[string]interface{}{"error": err.Error()})
	}
	if err := rt.start(ctx); err != nil {
		stop()
		rt.stop()
		logger.FatalCF("main", "Failed to start bot", map[string]interface{}{"error": err.Error()})
	}

	<-ctx.Done()
	logger.InfoC("main", "Shutting down...")
	rt.stop()
}
