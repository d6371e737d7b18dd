// MCPRelay - Telegram to MCP chat relay
// License: MIT
//
// Copyright (c) 2026 MCPRelay contributors

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zhaopengme/mcprelay/pkg/logger"
	"github.com/zhaopengme/mcprelay/pkg/utils"
)

const (
	// FallbackReply is what the user sees whenever no reply could be obtained.
	FallbackReply = "🚨 MCP server is unavailable."

	maxResponseBytes = 1 << 20
)

var (
	ErrUnavailable  = errors.New("MCP server unavailable")
	ErrMissingReply = errors.New("'response' key missing in MCP reply")
)

// Request is the JSON payload posted to the inference endpoint.
type Request struct {
	Model   string `json:"model"`
	Message string `json:"message"`
}

type Client struct {
	endpoint   string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(endpoint, model string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		model:      model,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) Model() string { return c.model }

// Relay sends text to the inference endpoint on behalf of userID and returns
// the reply. Every failure is logged and replaced by FallbackReply.
func (c *Client) Relay(ctx context.Context, userID, text string) string {
	reply, err := c.Exchange(ctx, text)
	if err != nil {
		fields := map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		}
		if errors.Is(err, ErrMissingReply) {
			logger.ErrorCF("relay", "MCP reply missing", fields)
		} else {
			logger.ErrorCF("relay", "MCP Server Error", fields)
		}
		reply = FallbackReply
	}

	logger.InfoCF("relay", "Relayed message", map[string]interface{}{
		"user_id": userID,
		"text":    text,
		"reply":   reply,
	})
	return reply
}

// Exchange performs one request/response round trip. Errors wrap either
// ErrUnavailable (transport, timeout, non-2xx) or ErrMissingReply.
func (c *Client) Exchange(ctx context.Context, text string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(Request{Model: c.model, Message: text})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %w", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, utils.Truncate(string(body), 200))
	}

	logger.InfoCF("relay", "MCP raw response", map[string]interface{}{
		"request_id": requestID,
		"status":     resp.StatusCode,
		"body":       utils.Truncate(string(body), 500),
	})

	reply, ok := ExtractReply(body)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingReply, utils.Truncate(string(body), 200))
	}
	return reply, nil
}
