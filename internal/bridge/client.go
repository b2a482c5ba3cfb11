// Package bridge is the typed client for the scene host's remote command
// socket: newline-delimited JSON over TCP, one request per connection.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lucasnoah/scenesmith/internal/failure"
	"github.com/lucasnoah/scenesmith/internal/state"
)

// Client talks to the scene host. The host owns a single mutable scene, so
// a session lock serializes every call: no two scripts ever execute against
// the scene at the same instant, even when sub-tasks are dispatched
// concurrently.
type Client struct {
	addr    string
	timeout time.Duration

	mu sync.Mutex // session lock
}

// NewClient creates a Client for the host at addr with a per-call deadline.
func NewClient(addr string, timeout time.Duration) *Client {
	return &Client{addr: addr, timeout: timeout}
}

// request/response are the host's wire shapes.
type request struct {
	Type   string      `json:"type"`
	Params interface{} `json:"params,omitempty"`
}

type response struct {
	Status  string          `json:"status"` // "success" or "error"
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

// call performs one locked request/response round-trip.
func (c *Client) call(ctx context.Context, typ string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(request{Type: typ, Params: params}); err != nil {
		return nil, fmt.Errorf("send %s: %w", typ, err)
	}

	var resp response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read %s response: %w", typ, err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("%s: %s", typ, resp.Message)
	}
	return resp.Result, nil
}

// Execute runs a generated script against the scene. Transport errors,
// timeouts and remote execution errors are all absorbed into the outcome:
// the caller always receives a well-formed ExecutionOutcome, never a raw
// failure.
func (c *Client) Execute(ctx context.Context, script string) *state.ExecutionOutcome {
	start := time.Now()
	result, err := c.call(ctx, "execute_code", map[string]string{"code": script})
	outcome := &state.ExecutionOutcome{
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		outcome.Error = err.Error()
		outcome.FailureType = failure.Classify(err.Error()).Type
		return outcome
	}
	outcome.Success = true
	outcome.Payload = string(result)
	return outcome
}

// InspectScene returns the host's raw scene metadata.
func (c *Client) InspectScene(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "get_scene_info", nil)
	if err != nil {
		return "", err
	}
	return string(result), nil
}

// CaptureViewport returns the rendered viewport as PNG bytes.
func (c *Client) CaptureViewport(ctx context.Context) ([]byte, error) {
	result, err := c.call(ctx, "get_viewport_screenshot", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Data string `json:"data"` // base64 PNG
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("decode screenshot payload: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot base64: %w", err)
	}
	return data, nil
}

// Asset is one entry from the host's asset library search.
type Asset struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// SearchAssets queries the host's asset library.
func (c *Client) SearchAssets(ctx context.Context, query string) ([]Asset, error) {
	result, err := c.call(ctx, "search_assets", map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	var assets []Asset
	if err := json.Unmarshal(result, &assets); err != nil {
		return nil, fmt.Errorf("decode asset list: %w", err)
	}
	return assets, nil
}

// FetchAsset downloads an asset into the host and returns its handle.
func (c *Client) FetchAsset(ctx context.Context, id string) (string, error) {
	result, err := c.call(ctx, "download_asset", map[string]string{"id": id})
	if err != nil {
		return "", err
	}
	var payload struct {
		Handle string `json:"handle"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", fmt.Errorf("decode asset handle: %w", err)
	}
	return payload.Handle, nil
}
