// MCPRelay - Telegram to MCP chat relay
// License: MIT
//
// Copyright (c) 2026 MCPRelay contributors

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhaopengme/mcprelay/pkg/config"
	"github.com/zhaopengme/mcprelay/pkg/heartbeat"
	"github.com/zhaopengme/mcprelay/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Registrar subscribes the bot to push updates at a public URL.
type Registrar interface {
	RegisterWebhook(ctx context.Context, url string) error
}

// HealthReporter exposes the last heartbeat outcome.
type HealthReporter interface {
	Status() heartbeat.Status
}

type Server struct {
	cfg       config.WebhookConfig
	updates   http.Handler
	registrar Registrar
	health    HealthReporter
	srv       *http.Server
}

func NewServer(cfg config.WebhookConfig, updates http.Handler, registrar Registrar, health HealthReporter) *Server {
	s := &Server{
		cfg:       cfg,
		updates:   updates,
		registrar: registrar,
		health:    health,
	}
	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.RoutePath(), s.updates)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := heartbeat.Status{OK: true}
	if s.health != nil {
		status = s.health.Status()
		if !status.Enabled || status.CheckedAt.IsZero() {
			status.OK = true
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Run serves until ctx is done. Once the listener is bound it registers the
// webhook; a registration failure shuts the server down and is returned.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoCF("webhook", "HTTP server listening", map[string]interface{}{
			"addr": ln.Addr().String(),
		})
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if s.registrar == nil {
			return nil
		}
		if err := s.registrar.RegisterWebhook(gctx, s.cfg.URL()); err != nil {
			return fmt.Errorf("startup hook: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.InfoC("webhook", "Shutting down HTTP server")
		return s.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
