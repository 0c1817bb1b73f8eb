// Package engineclient talks to the upstream inference engine over HTTP,
// the same plain json-over-POST contract the teacher's background OpenAI
// client uses, tuned with a pooled transport for the scheduler's fan-out.
package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrConnect wraps a failure to establish the connection to the engine,
// mirroring the upstream's aiohttp.ClientConnectorError → 503 mapping.
var ErrConnect = errors.New("engineclient: could not connect to engine")

// ErrTimeout wraps a request that exceeded its deadline, mirroring the
// upstream's asyncio.TimeoutError → 504 mapping.
var ErrTimeout = errors.New("engineclient: request to engine timed out")

// Client issues requests against one engine base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// Config tunes the pooled transport backing a Client.
type Config struct {
	BaseURL             string
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// New builds a Client whose transport is sized for many concurrent
// micro-batch fan-outs against the same upstream host.
func New(cfg Config) *Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// Post sends body as JSON to baseURL+endpoint and returns the upstream's
// status code and raw JSON body unexamined — callers decide what 200 vs.
// non-200 means for their own slot/job bookkeeping.
func (c *Client) Post(ctx context.Context, endpoint string, body json.RawMessage) (int, json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("engineclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, classifyError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("engineclient: read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// StreamResponse is an open upstream response whose body the caller pipes
// through chunk by chunk.
type StreamResponse struct {
	StatusCode int
	Body       io.ReadCloser
}

// Stream opens a streaming request and returns the live response for the
// caller to copy through to its own client, preserving SSE framing exactly
// as the engine sent it.
func (c *Client) Stream(ctx context.Context, endpoint string, body json.RawMessage) (*StreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("engineclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}

	return &StreamResponse{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnect, err)
}
