// Package client talks to a running shellvisr daemon over its HTTP API.
// It is what the CLI uses and what external tooling can embed.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const authHeader = "X-Shellvisr-Key"

// Config holds client configuration. APIKey is sent on every request when
// set; the server only checks it on mutating routes.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8951/api",
		Timeout: 30 * time.Second,
	}
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// do performs one request and decodes the envelope. Non-2xx responses come
// back as *APIError carrying the server's error kind.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(authHeader, c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Kind: "internal", Message: string(raw)}
		var envelope struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Kind != "" {
			apiErr.Kind = envelope.Error.Kind
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) Spawn(ctx context.Context, req SpawnRequest) (*Shell, error) {
	var out struct {
		Shell *Shell `json:"shell"`
	}
	if err := c.do(ctx, http.MethodPost, "/shells", req, &out); err != nil {
		return nil, err
	}
	return out.Shell, nil
}

// List fetches every shell, optionally restricted to one label.
func (c *Client) List(ctx context.Context, label string) ([]Shell, error) {
	path := "/shells"
	if label != "" {
		path += "?label=" + url.QueryEscape(label)
	}
	var out struct {
		Shells []Shell `json:"shells"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Shells, nil
}

// Get fetches one shell; tailLines > 0 also requests bounded log tails.
func (c *Client) Get(ctx context.Context, id string, tailLines int) (*Shell, error) {
	path := "/shells/" + url.PathEscape(id)
	if tailLines > 0 {
		path += "?logs=true&tail_lines=" + strconv.Itoa(tailLines)
	}
	var out struct {
		Shell *Shell `json:"shell"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Shell, nil
}

func (c *Client) action(ctx context.Context, id, action string, timeout time.Duration) (*Shell, error) {
	body := map[string]any{"action": action}
	if timeout > 0 {
		body["timeout_sec"] = timeout.Seconds()
	}
	var out struct {
		Shell *Shell `json:"shell"`
	}
	if err := c.do(ctx, http.MethodPost, "/shells/"+url.PathEscape(id)+"/action", body, &out); err != nil {
		return nil, err
	}
	return out.Shell, nil
}

// Stop requests a graceful stop bounded by timeout.
func (c *Client) Stop(ctx context.Context, id string, timeout time.Duration) (*Shell, error) {
	return c.action(ctx, id, "stop", timeout)
}

// Kill requests an immediate SIGKILL stop.
func (c *Client) Kill(ctx context.Context, id string) (*Shell, error) {
	return c.action(ctx, id, "kill", 0)
}

func (c *Client) Restart(ctx context.Context, id string) (*Shell, error) {
	return c.action(ctx, id, "restart", 0)
}

func (c *Client) Remove(ctx context.Context, id string, force bool) error {
	path := "/shells/" + url.PathEscape(id)
	if force {
		path += "?force=true"
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Input writes data to an interactive shell's terminal.
func (c *Client) Input(ctx context.Context, id, data string) error {
	return c.do(ctx, http.MethodPost, "/shells/"+url.PathEscape(id)+"/input",
		map[string]string{"data": data}, nil)
}

func (c *Client) Resize(ctx context.Context, id string, cols, rows uint16) error {
	return c.do(ctx, http.MethodPost, "/shells/"+url.PathEscape(id)+"/resize",
		map[string]uint16{"cols": cols, "rows": rows}, nil)
}

func (c *Client) Stats(ctx context.Context) (*Aggregate, error) {
	var out struct {
		Stats *Aggregate `json:"stats"`
	}
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return out.Stats, nil
}

func (c *Client) RunID(ctx context.Context) (string, error) {
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/run", nil, &out); err != nil {
		return "", err
	}
	return out.RunID, nil
}

// Stream attaches to a shell's live PTY output and calls fn for every
// chunk until the stream ends or ctx is canceled. Streaming requests do
// not use the client timeout.
func (c *Client) Stream(ctx context.Context, id string, fn func(chunk string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/shells/"+url.PathEscape(id)+"/stream", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set(authHeader, c.apiKey)
	}
	streamClient := &http.Client{Transport: c.client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Kind: "internal", Message: string(raw)}
		var envelope struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Kind != "" {
			apiErr.Kind = envelope.Error.Kind
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var chunk string
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		fn(chunk)
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
