package agent

import "time"

// Event kinds emitted during a turn.
const (
	EventStream             = "stream"
	EventStreamEnd          = "stream_end"
	EventFinalResponseStart = "final_response_start"
	EventFinalStream        = "final_stream"
	EventToolCall           = "tool_call"
	EventToolResult         = "tool_result"
	EventToolSkipped        = "tool_skipped"
	EventMessage            = "message"
	EventError              = "error"
)

// Event is one ordered notification pushed to the transport layer.
// Model and Timestamp are present on every event; the other fields are
// kind-specific.
type Event struct {
	Type      string                 `json:"type"`
	Content   string                 `json:"content,omitempty"`
	ToolName  string                 `json:"tool_name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Result    string                 `json:"result,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Model     string                 `json:"model"`
	Timestamp string                 `json:"timestamp"`
}

// Emitter is the ordered event sink a turn pushes to. Emit errors
// abort the turn; already-persisted messages stay persisted.
type Emitter interface {
	Emit(event Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(event Event) error

// Emit calls f(event).
func (f EmitterFunc) Emit(event Event) error {
	return f(event)
}

func stamp(event Event, model string) Event {
	event.Model = model
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return event
}
