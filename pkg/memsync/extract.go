package memsync

import (
	"regexp"
	"strings"

	"github.com/dotsetgreg/dotrecall/pkg/bus"
)

// Delimiters of the retrieved-context block injected before a turn starts.
// Anything between them was fed TO the agent from the store and must never
// be stored again, or injected memory would be re-ingested as new content
// on every sync.
const (
	ContextBlockStart = "[memory context - do not store]"
	ContextBlockEnd   = "[end memory context]"
)

var (
	contextBlockRegex = regexp.MustCompile(
		`(?s)` + regexp.QuoteMeta(ContextBlockStart) + `.*?` + regexp.QuoteMeta(ContextBlockEnd))

	// Transport envelope on human turns: a leading bracketed header the
	// platform layer prepends (channel, chat identifier, timestamp) and a
	// trailing bracketed message-id marker. Neither is authored content.
	envelopeHeaderRegex   = regexp.MustCompile(`^\[[^\[\]\n]{1,200}\]\s*`)
	messageIDTrailerRegex = regexp.MustCompile(`\s*\[message_id:\s*[^\[\]\n]{1,120}\]\s*$`)
)

// Entry is one storable unit extracted from a turn: who said it and the
// sanitized text.
type Entry struct {
	Role bus.Role
	Text string
}

// ExtractEntries converts a sub-sequence of turns into storable entries,
// preserving order. Turns that are not human or agent authored, and turns
// that are empty after flattening and sanitization, are dropped.
func ExtractEntries(turns []bus.Turn) []Entry {
	out := make([]Entry, 0, len(turns))
	for _, turn := range turns {
		if turn.Role != bus.RoleHuman && turn.Role != bus.RoleAgent {
			continue
		}
		text := FlattenContent(turn)
		text = StripContextBlocks(text)
		if turn.Role == bus.RoleHuman {
			text = StripTransportEnvelope(text)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, Entry{Role: turn.Role, Text: text})
	}
	return out
}

// FlattenContent reduces a turn body to plain text. Structured turns keep
// only "text" blocks, newline-joined; tool calls, attachments and other
// block types are discarded.
func FlattenContent(turn bus.Turn) string {
	if len(turn.Blocks) == 0 {
		return turn.Content
	}
	parts := make([]string, 0, len(turn.Blocks))
	for _, block := range turn.Blocks {
		if block.Type != "text" {
			continue
		}
		if strings.TrimSpace(block.Text) == "" {
			continue
		}
		parts = append(parts, block.Text)
	}
	return strings.Join(parts, "\n")
}

// StripContextBlocks removes every injected memory-context block. An
// unterminated block (start marker with no end) is truncated at the start
// marker so partial injections never leak into storage either.
func StripContextBlocks(text string) string {
	if !strings.Contains(text, ContextBlockStart) {
		return text
	}
	text = contextBlockRegex.ReplaceAllString(text, "")
	if idx := strings.Index(text, ContextBlockStart); idx >= 0 {
		text = text[:idx]
	}
	return text
}

// StripTransportEnvelope removes the leading bracketed platform header and
// the trailing message-id marker from a human turn.
func StripTransportEnvelope(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = envelopeHeaderRegex.ReplaceAllString(trimmed, "")
	trimmed = messageIDTrailerRegex.ReplaceAllString(trimmed, "")
	return trimmed
}
