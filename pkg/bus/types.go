package bus

// Role identifies who authored a turn.
type Role string

const (
	RoleHuman Role = "human"
	RoleAgent Role = "agent"
	RoleOther Role = "other"
)

// ContentBlock is one typed segment of a structured turn body. Only
// "text" blocks are eligible for storage.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Turn is one immutable message in a conversation. Content holds the
// plain-string form; Blocks holds the structured form. When Blocks is
// non-empty it takes precedence over Content.
type Turn struct {
	Role    Role           `json:"role"`
	Content string         `json:"content,omitempty"`
	Blocks  []ContentBlock `json:"blocks,omitempty"`
}

// ThreadRef identifies a conversation thread as the host names it.
type ThreadRef struct {
	RawKey  string `json:"raw_key"`
	Channel string `json:"channel,omitempty"`
}

// TurnBatchEvent signals that a batch of turns completed for a thread.
// Turns always carries the full ordered log as currently known, not just
// the new tail.
type TurnBatchEvent struct {
	Thread  ThreadRef `json:"thread"`
	Turns   []Turn    `json:"turns"`
	Success bool      `json:"success"`
}

// BeforeTurnEvent asks for context to inject before the next turn starts.
type BeforeTurnEvent struct {
	Thread ThreadRef `json:"thread"`
	Query  string    `json:"query"`
}

// ContextProvider answers before-turn events with an injectable context
// block, or "" when nothing relevant exists.
type ContextProvider func(ev BeforeTurnEvent) string
