package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/andreytim/dreamytin-ai/internal/config"
	"github.com/andreytim/dreamytin-ai/internal/observability"
	"github.com/andreytim/dreamytin-ai/internal/tracing"
)

// Claude requires an explicit output-token cap on every request.
const anthropicDefaultMaxTokens = 4096

// AnthropicClient implements Client for Anthropic Claude.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name
func (c *AnthropicClient) Name() string {
	return config.ProviderAnthropic
}

func (c *AnthropicClient) buildParams(req Request) (anthropic.MessageNewParams, error) {
	messages := []anthropic.MessageParam{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			// System messages ride in the dedicated System field.
			continue
		case "tool":
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case "user":
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				blocks := []anthropic.ContentBlockParamUnion{}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					var input map[string]interface{}
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return anthropic.MessageNewParams{}, fmt.Errorf("failed to parse tool arguments for %s: %w", tc.Name, err)
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
				}
				messages = append(messages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else {
				messages = append(messages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(msg.Content),
					},
				})
			}
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, tool := range req.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.InputSchema["properties"],
				},
			}
			if required, ok := tool.InputSchema["required"].([]string); ok {
				toolParam.InputSchema.Required = required
			} else if required, ok := tool.InputSchema["required"].([]interface{}); ok {
				strs := make([]string, 0, len(required))
				for _, v := range required {
					if s, ok := v.(string); ok {
						strs = append(strs, s)
					}
				}
				toolParam.InputSchema.Required = strs
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	return params, nil
}

// Stream runs a streaming message request. Tool-call fragments carry a
// batch-local index so callers can stitch partial JSON back together.
func (c *AnthropicClient) Stream(ctx context.Context, req Request, emit func(Fragment) error) error {
	ctx, span := tracing.StartSpan(ctx, "dreamytin.provider", "provider.stream",
		attribute.String("provider", c.Name()),
		attribute.String("model", req.Model),
	)
	defer span.End()

	params, err := c.buildParams(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return err
	}

	observability.RecordModelCall(c.Name(), req.Model)

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	// Content-block indexes are not contiguous across text and tool
	// blocks, so map each tool block to a sequential slot.
	slots := map[int64]int{}

	for stream.Next() {
		event := stream.Current()

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				slot := len(slots)
				slots[ev.Index] = slot
				if err := emit(Fragment{ToolCalls: []ToolCallDelta{{
					Index: slot,
					ID:    block.ID,
					Name:  block.Name,
				}}}); err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "emit failed")
					return err
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				if err := emit(Fragment{Content: delta.Text}); err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "emit failed")
					return err
				}
			case anthropic.InputJSONDelta:
				slot, ok := slots[ev.Index]
				if !ok || delta.PartialJSON == "" {
					continue
				}
				if err := emit(Fragment{ToolCalls: []ToolCallDelta{{
					Index:     slot,
					Arguments: delta.PartialJSON,
				}}}); err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "emit failed")
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return nil
}

// Complete runs a non-streaming message request.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, span := tracing.StartSpan(ctx, "dreamytin.provider", "provider.complete",
		attribute.String("provider", c.Name()),
		attribute.String("model", req.Model),
	)
	defer span.End()

	params, err := c.buildParams(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	observability.RecordModelCall(c.Name(), req.Model)

	response, err := c.client.Messages.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	content := ""
	toolCalls := []ToolCall{}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.JSON.Input.Raw(),
			})
		}
	}

	return &Completion{
		Content:   content,
		ToolCalls: toolCalls,
	}, nil
}
