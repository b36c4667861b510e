// Package apiclient is the typed request/response boundary to the remote
// game API (§4.1). Each method performs exactly one HTTP round trip; it
// does not retry, back off, or open circuits. Failure surfaces as one of
// types.AuthError, types.NotFoundError, or types.TransportError; the
// caller (the circuit breaker) classifies and decides what to do next.
package apiclient

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"cardagent/internal/logging"
	"cardagent/internal/types"
)

var requestCounter uint64

func generateRequestID() string {
	n := atomic.AddUint64(&requestCounter, 1)
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("req-%d-%s", n, hex.EncodeToString(b))
}

// Client talks to the remote game API over JSON-over-HTTPS.
type Client struct {
	baseURL    string
	apiKey     string
	agentID    string
	httpClient *http.Client
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	AgentID string
	Timeout time.Duration
}

// New creates a Client. A zero Timeout defaults to 30s.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		agentID:    cfg.AgentID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Error string `json:"error"`
	Message string `json:"message"`
}

// do performs one HTTP round trip and classifies any failure.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	reqID := generateRequestID()
	logger := logging.WithRequestID(logging.CategoryAPI, reqID)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &types.TransportError{Message: "encode request body", Cause: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &types.TransportError{Message: "build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.agentID != "" {
		req.Header.Set("X-Agent-Id", c.agentID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("%s %s failed: %v", method, path, err)
		return &types.TransportError{Message: fmt.Sprintf("%s %s", method, path), Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.TransportError{Message: "read response body", Cause: err}
	}

	if resp.StatusCode >= 400 {
		var ae apiError
		_ = json.Unmarshal(data, &ae)
		msg := ae.Message
		if msg == "" {
			msg = ae.Error
		}
		if msg == "" {
			msg = string(data)
		}
		logger.Debug("%s %s -> %d: %s", method, path, resp.StatusCode, msg)
		return types.ClassifyAPIError(resp.StatusCode, msg)
	}

	logger.Debug("%s %s -> %d (%v)", method, path, resp.StatusCode, time.Since(start))

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &types.TransportError{Message: "decode response body", Cause: err}
		}
	}
	return nil
}
