package recall

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dotsetgreg/dotrecall/pkg/bus"
	"github.com/dotsetgreg/dotrecall/pkg/memsync"
	"github.com/dotsetgreg/dotrecall/pkg/store"
)

func TestBuildContextBlock_WrapsInDelimiters(t *testing.T) {
	block := BuildContextBlock("owner prefers dark mode")
	if !strings.HasPrefix(block, memsync.ContextBlockStart) {
		t.Fatalf("missing start delimiter: %q", block)
	}
	if !strings.HasSuffix(block, memsync.ContextBlockEnd) {
		t.Fatalf("missing end delimiter: %q", block)
	}

	// The sanitizer must strip the whole block on the way back in.
	stripped := strings.TrimSpace(memsync.StripContextBlocks("before " + block + " after"))
	if stripped != "before  after" && stripped != "before after" {
		t.Fatalf("round trip leaked content: %q", stripped)
	}
}

func TestBuildContextBlock_EmptyContent(t *testing.T) {
	if got := BuildContextBlock("   \n  "); got != "" {
		t.Fatalf("expected empty block for empty content, got %q", got)
	}
}

func TestContextProvider_AnswersFromStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"content": "you said tabs"})
	}))
	defer srv.Close()

	svc := NewService(store.NewClient("sk", srv.URL, "default"))
	provider := svc.ContextProvider()

	got := provider(bus.BeforeTurnEvent{
		Thread: bus.ThreadRef{RawKey: "chat-1"},
		Query:  "tabs or spaces?",
	})
	if !strings.Contains(got, "you said tabs") {
		t.Fatalf("expected store answer in context block, got %q", got)
	}
	if !strings.HasPrefix(got, memsync.ContextBlockStart) {
		t.Fatalf("context not delimited: %q", got)
	}
}

func TestContextProvider_FailuresYieldEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService(store.NewClient("sk", srv.URL, "default"))
	if got := svc.ContextProvider()(bus.BeforeTurnEvent{Query: "q"}); got != "" {
		t.Fatalf("expected empty context on store failure, got %q", got)
	}
}

func TestContextProvider_NotReadyYieldsEmpty(t *testing.T) {
	svc := NewService(store.NewClient("", "http://localhost:9", "default"))
	if got := svc.ContextProvider()(bus.BeforeTurnEvent{Query: "q"}); got != "" {
		t.Fatalf("expected empty context without a credential, got %q", got)
	}
}
