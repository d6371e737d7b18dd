// MCPRelay - Telegram to MCP chat relay
// License: MIT
//
// Copyright (c) 2026 MCPRelay contributors

package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/zhaopengme/mcprelay/pkg/config"
	"github.com/zhaopengme/mcprelay/pkg/logger"
)

// Prober performs one round trip against the inference endpoint.
type Prober interface {
	Exchange(ctx context.Context, text string) (string, error)
}

type Status struct {
	Enabled   bool      `json:"enabled"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at,omitzero"`
}

// HeartbeatService probes the inference endpoint on a cron schedule and
// remembers the last outcome for the health endpoint.
type HeartbeatService struct {
	expr     string
	message  string
	prober   Prober
	gron     *gronx.Gronx
	tick     time.Duration
	mu       sync.RWMutex
	status   Status
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewHeartbeatService(cfg config.HeartbeatConfig, prober Prober) *HeartbeatService {
	message := cfg.Message
	if message == "" {
		message = config.DefaultHeartbeatText
	}
	hs := &HeartbeatService{
		expr:    cfg.Cron,
		message: message,
		prober:  prober,
		gron:    gronx.New(),
		tick:    time.Minute,
	}
	hs.status.Enabled = hs.Enabled()
	return hs
}

func (hs *HeartbeatService) Enabled() bool {
	return hs.expr != "" && hs.prober != nil
}

// Start validates the schedule and begins probing. It is a no-op when no
// schedule is configured.
func (hs *HeartbeatService) Start(ctx context.Context) error {
	if !hs.Enabled() {
		logger.DebugC("heartbeat", "Heartbeat disabled")
		return nil
	}
	if !hs.gron.IsValid(hs.expr) {
		return fmt.Errorf("invalid heartbeat cron expression %q", hs.expr)
	}

	hs.mu.Lock()
	if hs.stopChan != nil {
		hs.mu.Unlock()
		return nil
	}
	hs.stopChan = make(chan struct{})
	stop := hs.stopChan
	hs.mu.Unlock()

	logger.InfoCF("heartbeat", "Heartbeat started", map[string]interface{}{
		"cron": hs.expr,
	})

	hs.wg.Add(1)
	go hs.runLoop(ctx, stop)
	return nil
}

func (hs *HeartbeatService) Stop() {
	hs.mu.Lock()
	if hs.stopChan != nil {
		close(hs.stopChan)
		hs.stopChan = nil
	}
	hs.mu.Unlock()
	hs.wg.Wait()
}

func (hs *HeartbeatService) Status() Status {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.status
}

func (hs *HeartbeatService) runLoop(ctx context.Context, stop <-chan struct{}) {
	defer hs.wg.Done()

	ticker := time.NewTicker(hs.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			due, err := hs.gron.IsDue(hs.expr, now.Truncate(time.Minute))
			if err != nil {
				logger.ErrorCF("heartbeat", "Failed to evaluate schedule", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			if due {
				hs.executeHeartbeat(ctx)
			}
		}
	}
}

func (hs *HeartbeatService) executeHeartbeat(ctx context.Context) {
	_, err := hs.prober.Exchange(ctx, hs.message)

	status := Status{
		Enabled:   true,
		OK:        err == nil,
		CheckedAt: time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
		logger.WarnCF("heartbeat", "MCP server probe failed", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		logger.DebugC("heartbeat", "MCP server probe ok")
	}

	hs.mu.Lock()
	hs.status = status
	hs.mu.Unlock()
}
