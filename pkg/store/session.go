package store

import (
	"context"
	"net/http"
	"net/url"
)

// Session is a handle on one remote conversation resource.
type Session struct {
	client *Client
	Key    string
}

// SessionPeer declares one participant and its mutual-observation flags:
// ObserveMe controls whether other peers perceive this peer's messages,
// ObserveOthers whether this peer perceives theirs.
type SessionPeer struct {
	PeerID        string `json:"peer_id"`
	ObserveMe     bool   `json:"observe_me"`
	ObserveOthers bool   `json:"observe_others"`
}

// Message is one entry appended to a session's history.
type Message struct {
	PeerID  string `json:"peer_id"`
	Content string `json:"content"`
}

type ContextOptions struct {
	Tokens int
	Search bool
	Query  string
}

// SessionContext is the store's view of a session within a token budget.
type SessionContext struct {
	Summary  string    `json:"summary"`
	Messages []Message `json:"messages"`
}

func (s *Session) path(suffix string) string {
	return "/sessions/" + url.PathEscape(s.Key) + suffix
}

// Ensure creates the session if it does not exist yet (idempotent upsert).
func (s *Session) Ensure(ctx context.Context) error {
	body := map[string]interface{}{"id": s.Key}
	return s.client.do(ctx, http.MethodPost, "/sessions", body, nil)
}

func (s *Session) GetMetadata(ctx context.Context) (map[string]string, error) {
	var out struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := s.client.do(ctx, http.MethodGet, s.path("/metadata"), nil, &out); err != nil {
		return nil, err
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out.Metadata, nil
}

func (s *Session) SetMetadata(ctx context.Context, metadata map[string]string) error {
	body := map[string]interface{}{"metadata": metadata}
	return s.client.do(ctx, http.MethodPut, s.path("/metadata"), body, nil)
}

// AddPeers registers participants with their observation flags. The store
// treats repeated registration as an upsert, so callers may register on
// every sync run.
func (s *Session) AddPeers(ctx context.Context, peers []SessionPeer) error {
	if len(peers) == 0 {
		return nil
	}
	body := map[string]interface{}{"peers": peers}
	return s.client.do(ctx, http.MethodPost, s.path("/peers"), body, nil)
}

// AddMessages appends entries to the session history in order.
func (s *Session) AddMessages(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	body := map[string]interface{}{"messages": messages}
	return s.client.do(ctx, http.MethodPost, s.path("/messages"), body, nil)
}

// Context fetches the session's summarized history within a token budget,
// optionally running the query through the store's semantic search.
func (s *Session) Context(ctx context.Context, opts ContextOptions) (SessionContext, error) {
	tokens := opts.Tokens
	if tokens <= 0 {
		tokens = 2048
	}
	body := map[string]interface{}{"tokens": tokens}
	if opts.Search {
		body["search"] = true
		if opts.Query != "" {
			body["query"] = opts.Query
		}
	}

	var out SessionContext
	if err := s.client.do(ctx, http.MethodPost, s.path("/context"), body, &out); err != nil {
		return SessionContext{}, err
	}
	return out, nil
}
