package agent

import (
	"strings"

	"github.com/andreytim/dreamytin-ai/pkg/provider"
)

// toolCallRequest is one fully assembled tool call from a model
// response stream.
type toolCallRequest struct {
	ID        string
	Name      string
	Arguments string
}

// streamAccumulator rebuilds the full response from streamed
// fragments. Tool-call pieces are grouped by their stream index; the
// id and name arrive on the first piece, argument text concatenates in
// arrival order.
type streamAccumulator struct {
	content strings.Builder
	order   []int
	calls   map[int]*partialToolCall
}

type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{
		calls: make(map[int]*partialToolCall),
	}
}

// Add folds one fragment into the accumulated response.
func (a *streamAccumulator) Add(frag provider.Fragment) {
	a.content.WriteString(frag.Content)

	for _, delta := range frag.ToolCalls {
		call, ok := a.calls[delta.Index]
		if !ok {
			call = &partialToolCall{}
			a.calls[delta.Index] = call
			a.order = append(a.order, delta.Index)
		}
		if delta.ID != "" {
			call.id = delta.ID
		}
		if delta.Name != "" {
			call.name = delta.Name
		}
		call.args.WriteString(delta.Arguments)
	}
}

// Content returns the accumulated text content.
func (a *streamAccumulator) Content() string {
	return a.content.String()
}

// ToolCalls returns the assembled calls in the order their first
// fragment arrived.
func (a *streamAccumulator) ToolCalls() []toolCallRequest {
	out := make([]toolCallRequest, 0, len(a.order))
	for _, idx := range a.order {
		call := a.calls[idx]
		args := call.args.String()
		if args == "" {
			args = "{}"
		}
		out = append(out, toolCallRequest{
			ID:        call.id,
			Name:      call.name,
			Arguments: args,
		})
	}
	return out
}
