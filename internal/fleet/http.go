package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danpasecinic/podfleet/internal/types"
)

// HTTPChannel talks to a node agent's REST API
type HTTPChannel struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPChannel creates a channel for the agent listening at baseURL.
// connectTimeout bounds dialing only; each call's context bounds the rest.
func NewHTTPChannel(baseURL string, connectTimeout time.Duration) *HTTPChannel {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext

	return &HTTPChannel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: transport},
	}
}

// ApplyResource posts the manifest to the agent
func (c *HTTPChannel) ApplyResource(ctx context.Context, manifest string) (string, string, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/api/v1/apply", strings.NewReader(manifest),
	)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/yaml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("post request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", remoteError(resp)
	}

	var out types.ApplyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode response: %w", err)
	}

	return out.Stdout, out.Stderr, nil
}

// RemoveResource asks the agent to delete the resource
func (c *HTTPChannel) RemoveResource(ctx context.Context, id types.ResourceIdentity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/api/v1/remove", bytes.NewReader(data),
	)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return remoteError(resp)
	}

	return nil
}

// SystemInfo fetches the node's telemetry
func (c *HTTPChannel) SystemInfo(ctx context.Context) (*types.SystemInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/info", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, remoteError(resp)
	}

	var info types.SystemInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &info, nil
}

// Close releases idle connections
func (c *HTTPChannel) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// remoteError prefers the agent's stderr, then its error field, then the raw body
func remoteError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp types.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Stderr != "" {
			return &RemoteError{Status: resp.StatusCode, Stderr: errResp.Stderr}
		}
		if errResp.Error != "" {
			return &RemoteError{Status: resp.StatusCode, Stderr: errResp.Error}
		}
	}

	return &RemoteError{
		Status: resp.StatusCode,
		Stderr: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}
