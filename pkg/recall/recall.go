// Package recall exposes the store's data-retrieval and question-answering
// operations for use mid-conversation, and builds the delimited context
// block injected before a turn starts.
package recall

import (
	"context"
	"strings"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/bus"
	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/dotsetgreg/dotrecall/pkg/memsync"
	"github.com/dotsetgreg/dotrecall/pkg/store"
)

const beforeTurnTimeout = 8 * time.Second

type Service struct {
	client *store.Client
}

func NewService(client *store.Client) *Service {
	return &Service{client: client}
}

// ProfileFacts returns the owner's current profile card.
func (s *Service) ProfileFacts(ctx context.Context) ([]string, error) {
	return s.client.Peer(store.OwnerPeerID).Card(ctx)
}

// Search runs a semantic search over the owner's knowledge model.
func (s *Service) Search(ctx context.Context, query string, topK int) (string, error) {
	return s.client.Peer(store.OwnerPeerID).Representation(ctx, store.RepresentationOptions{
		Search: query,
		TopK:   topK,
	})
}

// Representation returns the broad, unscoped view of the owner.
func (s *Service) Representation(ctx context.Context) (string, error) {
	return s.client.Peer(store.OwnerPeerID).Representation(ctx, store.RepresentationOptions{})
}

// SessionHistory returns the store's summarized history for one session
// within a token budget.
func (s *Service) SessionHistory(ctx context.Context, sessionKey string, tokens int) (store.SessionContext, error) {
	return s.client.Session(sessionKey).Context(ctx, store.ContextOptions{Tokens: tokens})
}

// Recall answers a question from the owner's model with minimal
// reasoning: fast lookup, no synthesis.
func (s *Service) Recall(ctx context.Context, question string) (string, error) {
	return s.client.Peer(store.OwnerPeerID).Chat(ctx, question, store.ChatOptions{
		Reasoning: store.ReasoningMinimal,
	})
}

// Synthesize answers a question with medium reasoning, letting the store
// combine facts across the owner's whole model.
func (s *Service) Synthesize(ctx context.Context, question string) (string, error) {
	return s.client.Peer(store.OwnerPeerID).Chat(ctx, question, store.ChatOptions{
		Reasoning: store.ReasoningMedium,
	})
}

// ContextProvider answers before-turn events with a delimited context
// block. The delimiters are the ones the sanitizer strips on the way back
// in, so injected memory can never be re-stored. Failures yield "" so a
// slow or unreachable store never stalls the host's turn.
func (s *Service) ContextProvider() bus.ContextProvider {
	return func(ev bus.BeforeTurnEvent) string {
		if !s.client.Ready() {
			return ""
		}
		ctx, cancel := context.WithTimeout(context.Background(), beforeTurnTimeout)
		defer cancel()

		answer, err := s.Recall(ctx, ev.Query)
		if err != nil {
			logger.DebugCF("recall", "Before-turn recall failed",
				map[string]interface{}{"error": err.Error(), "raw_key": ev.Thread.RawKey})
			return ""
		}
		return BuildContextBlock(answer)
	}
}

// BuildContextBlock wraps retrieved content in the injection delimiters.
// Empty content yields "".
func BuildContextBlock(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	return memsync.ContextBlockStart + "\n" + content + "\n" + memsync.ContextBlockEnd
}
