package memsync

import (
	"strings"
	"testing"

	"github.com/dotsetgreg/dotrecall/pkg/bus"
)

func TestExtractEntries_DropsNonConversationalRoles(t *testing.T) {
	turns := []bus.Turn{
		{Role: bus.RoleHuman, Content: "hello"},
		{Role: bus.RoleOther, Content: "some other bot"},
		{Role: bus.RoleAgent, Content: "hi there"},
	}

	entries := ExtractEntries(turns)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Role != bus.RoleHuman || entries[0].Text != "hello" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Role != bus.RoleAgent || entries[1].Text != "hi there" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestExtractEntries_InjectedContextNeverStored(t *testing.T) {
	injected := ContextBlockStart + "\nowner prefers tabs\n" + ContextBlockEnd
	turns := []bus.Turn{
		{Role: bus.RoleHuman, Content: injected + "\nwhat did I say about tabs?"},
	}

	entries := ExtractEntries(turns)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if strings.Contains(entries[0].Text, "prefers tabs") {
		t.Fatalf("injected context leaked into storage: %q", entries[0].Text)
	}
	if entries[0].Text != "what did I say about tabs?" {
		t.Fatalf("expected authored text only, got %q", entries[0].Text)
	}
}

func TestExtractEntries_ContextOnlyTurnDropped(t *testing.T) {
	turns := []bus.Turn{
		{Role: bus.RoleHuman, Content: ContextBlockStart + " facts " + ContextBlockEnd},
	}
	if entries := ExtractEntries(turns); len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestStripContextBlocks_UnterminatedBlockTruncated(t *testing.T) {
	text := "real content\n" + ContextBlockStart + " partial injection with no end"
	got := strings.TrimSpace(StripContextBlocks(text))
	if got != "real content" {
		t.Fatalf("expected truncation at start marker, got %q", got)
	}
}

func TestStripContextBlocks_MultipleBlocks(t *testing.T) {
	text := ContextBlockStart + "a" + ContextBlockEnd + " keep " + ContextBlockStart + "b" + ContextBlockEnd
	got := strings.TrimSpace(StripContextBlocks(text))
	if got != "keep" {
		t.Fatalf("expected both blocks removed, got %q", got)
	}
}

func TestStripTransportEnvelope(t *testing.T) {
	text := "[discord 12345 2026-08-30T10:00:00Z] ship it [message_id: 987654]"
	got := StripTransportEnvelope(text)
	if got != "ship it" {
		t.Fatalf("expected bare content, got %q", got)
	}
}

func TestStripTransportEnvelope_PlainTextUntouched(t *testing.T) {
	got := StripTransportEnvelope("no envelope here")
	if got != "no envelope here" {
		t.Fatalf("expected text unchanged, got %q", got)
	}
}

func TestExtractEntries_EnvelopeOnlyOnHumanTurns(t *testing.T) {
	turns := []bus.Turn{
		{Role: bus.RoleAgent, Content: "[note] agent output keeps its brackets"},
	}
	entries := ExtractEntries(turns)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Text != "[note] agent output keeps its brackets" {
		t.Fatalf("agent turn should not be envelope-stripped, got %q", entries[0].Text)
	}
}

func TestFlattenContent_TextBlocksOnly(t *testing.T) {
	turn := bus.Turn{
		Role: bus.RoleAgent,
		Blocks: []bus.ContentBlock{
			{Type: "text", Text: "first"},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "second"},
		},
	}
	got := FlattenContent(turn)
	if got != "first\nsecond" {
		t.Fatalf("expected newline-joined text blocks, got %q", got)
	}
}

func TestFlattenContent_BlocksTakePrecedence(t *testing.T) {
	turn := bus.Turn{
		Role:    bus.RoleAgent,
		Content: "stale flat form",
		Blocks:  []bus.ContentBlock{{Type: "text", Text: "structured form"}},
	}
	if got := FlattenContent(turn); got != "structured form" {
		t.Fatalf("expected blocks to win, got %q", got)
	}
}

func TestExtractEntries_ToolOnlyTurnDropped(t *testing.T) {
	turns := []bus.Turn{
		{Role: bus.RoleAgent, Blocks: []bus.ContentBlock{{Type: "tool_use", Text: "exec"}}},
	}
	if entries := ExtractEntries(turns); len(entries) != 0 {
		t.Fatalf("expected tool-only turn dropped, got %d entries", len(entries))
	}
}
