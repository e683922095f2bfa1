// Package store is the client for the external long-term memory store.
// The store organizes knowledge around peers (independent identities with
// their own knowledge models) and sessions (shared conversations between
// peers). All semantic operations (representation, recall, synthesis) are
// remote and opaque; this client only moves data in and out.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// The two fixed identities every workspace carries: the human the agent
// serves, and the agent itself.
const (
	OwnerPeerID = "owner"
	AgentPeerID = "agent"
)

type Client struct {
	apiKey      string
	baseURL     string
	workspaceID string
	httpClient  *http.Client
}

func NewClient(apiKey, baseURL, workspaceID string) *Client {
	if workspaceID == "" {
		workspaceID = "default"
	}
	return &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		workspaceID: workspaceID,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) WorkspaceID() string {
	return c.workspaceID
}

// Ready reports whether the client can issue remote calls at all.
func (c *Client) Ready() bool {
	return strings.TrimSpace(c.apiKey) != "" && c.baseURL != ""
}

// Peer returns a handle for the peer with the given id. No remote call is
// made; the peer is created lazily by Ensure or by the first operation
// that requires it.
func (c *Client) Peer(id string) *Peer {
	return &Peer{client: c, ID: id}
}

// Session returns a handle for the session with the given key.
func (c *Client) Session(key string) *Session {
	return &Session{client: c, Key: key}
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respOut interface{}) error {
	if !c.Ready() {
		return ErrNoCredential
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := c.baseURL + "/workspaces/" + url.PathEscape(c.workspaceID) + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("memory store request failed:\n  Status: %d\n  Path:   %s\n  Body:   %s",
			resp.StatusCode, path, truncateBody(data))
	}

	if respOut != nil && len(data) > 0 {
		if err := json.Unmarshal(data, respOut); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func truncateBody(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
