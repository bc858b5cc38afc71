package provider

import "context"

// Message is a provider-neutral chat message.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a completed tool invocation attached to an assistant
// message. Arguments is the raw JSON string.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCallDelta is a streamed piece of a tool call. Index identifies
// which call in the batch the piece belongs to; ID and Name arrive on
// the first piece, Arguments accumulate across pieces.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Fragment is one streamed increment of a model response.
type Fragment struct {
	Content   string
	ToolCalls []ToolCallDelta
}

// ToolSchema describes a tool to the model.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Request holds the parameters for one model call.
type Request struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Tools        []ToolSchema
	Temperature  float64
	MaxTokens    int
}

// Completion is a full non-streaming model response.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Client is a streaming LLM backend.
type Client interface {
	// Name returns the provider name.
	Name() string

	// Stream runs a completion, calling emit for each fragment in
	// order. An error from emit aborts the stream.
	Stream(ctx context.Context, req Request, emit func(Fragment) error) error

	// Complete runs a non-streaming completion.
	Complete(ctx context.Context, req Request) (*Completion, error)
}
