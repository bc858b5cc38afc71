package conversation

import "time"

// Message is a single entry in a conversation log. Content is a pointer
// because assistant messages that only carry tool calls store a JSON null,
// matching the OpenAI chat message shape.
type Message struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested tool invocation recorded on an assistant
// message.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction holds the tool name and its raw JSON arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Conversation is the on-disk document for one session.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
}

// IndexEntry is the per-conversation summary kept in index.json.
type IndexEntry struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Model        string    `json:"model"`
}

// Text returns a pointer to s, for building message content in place.
func Text(s string) *string {
	return &s
}

// UserMessage builds a user message with the current timestamp.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: Text(content), Timestamp: time.Now().UTC()}
}

// AssistantMessage builds an assistant message. Content may be nil when
// the message carries only tool calls.
func AssistantMessage(content *string, toolCalls []ToolCall) Message {
	return Message{Role: "assistant", Content: content, Timestamp: time.Now().UTC(), ToolCalls: toolCalls}
}

// ToolMessage builds a tool result message tied to a tool call ID.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: "tool", Content: Text(content), Timestamp: time.Now().UTC(), ToolCallID: toolCallID}
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: Text(content), Timestamp: time.Now().UTC()}
}

// TextContent returns the message content, or "" when it is null.
func (m Message) TextContent() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}
