package store

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Peer is a handle on one identity's knowledge model in the store.
type Peer struct {
	client *Client
	ID     string
}

// ReasoningLevel selects how much work the store spends answering a
// dialectic query.
type ReasoningLevel string

const (
	ReasoningMinimal ReasoningLevel = "minimal"
	ReasoningMedium  ReasoningLevel = "medium"
)

type ChatOptions struct {
	Reasoning  ReasoningLevel
	SessionKey string
}

type RepresentationOptions struct {
	// Search narrows the representation with a semantic query. Empty
	// means the broad, unscoped representation.
	Search string
	TopK   int
}

// Conclusion is one discrete unit of durable knowledge.
type Conclusion struct {
	Content string `json:"content"`
}

func (p *Peer) path(suffix string) string {
	return "/peers/" + url.PathEscape(p.ID) + suffix
}

// Ensure creates the peer if it does not exist yet. Safe to call on every
// invocation; the store treats it as an upsert.
func (p *Peer) Ensure(ctx context.Context) error {
	body := map[string]interface{}{"id": p.ID}
	return p.client.do(ctx, http.MethodPost, "/peers", body, nil)
}

// Chat asks the peer's knowledge model a natural-language question and
// returns the synthesized answer.
func (p *Peer) Chat(ctx context.Context, query string, opts ChatOptions) (string, error) {
	body := map[string]interface{}{"query": query}
	if opts.Reasoning != "" {
		body["reasoning"] = string(opts.Reasoning)
	}
	if opts.SessionKey != "" {
		body["session_id"] = opts.SessionKey
	}

	var out struct {
		Content string `json:"content"`
	}
	if err := p.client.do(ctx, http.MethodPost, p.path("/chat"), body, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Content), nil
}

// Card returns the peer's free-text profile card: the store's current
// short-form summary of who this peer is.
func (p *Peer) Card(ctx context.Context) ([]string, error) {
	var out struct {
		Facts []string `json:"facts"`
	}
	if err := p.client.do(ctx, http.MethodGet, p.path("/card"), nil, &out); err != nil {
		return nil, err
	}
	return out.Facts, nil
}

// Representation returns the store's synthesized knowledge about the peer,
// optionally scoped by a semantic search query.
func (p *Peer) Representation(ctx context.Context, opts RepresentationOptions) (string, error) {
	body := map[string]interface{}{}
	if opts.Search != "" {
		body["search_query"] = opts.Search
		topK := opts.TopK
		if topK <= 0 {
			topK = 10
		}
		body["search_top_k"] = topK
	}

	var out struct {
		Representation string `json:"representation"`
	}
	if err := p.client.do(ctx, http.MethodPost, p.path("/representation"), body, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Representation), nil
}

// AddConclusions batch-writes facts into a knowledge model. With
// observedOf == "" the facts land in the peer's own self model; otherwise
// they are recorded as this peer's observations about the named peer.
func (p *Peer) AddConclusions(ctx context.Context, observedOf string, conclusions []Conclusion) error {
	if len(conclusions) == 0 {
		return nil
	}
	body := map[string]interface{}{"conclusions": conclusions}
	if observedOf != "" && observedOf != p.ID {
		body["observed_of"] = observedOf
	}
	return p.client.do(ctx, http.MethodPost, p.path("/conclusions"), body, nil)
}
