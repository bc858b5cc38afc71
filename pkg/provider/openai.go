package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/andreytim/dreamytin-ai/internal/config"
	"github.com/andreytim/dreamytin-ai/internal/observability"
	"github.com/andreytim/dreamytin-ai/internal/tracing"
)

// OpenAIClient implements Client for OpenAI chat completions.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name
func (c *OpenAIClient) Name() string {
	return config.ProviderOpenAI
}

func (c *OpenAIClient) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				toolCalls := []openai.ChatCompletionMessageToolCall{}
				for _, tc := range msg.ToolCalls {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					})
				}
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case "tool":
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, tool := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	return params, nil
}

// Stream runs a streaming chat completion, emitting content and
// tool-call fragments as they arrive.
func (c *OpenAIClient) Stream(ctx context.Context, req Request, emit func(Fragment) error) error {
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

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		frag := Fragment{Content: delta.Content}
		for _, tc := range delta.ToolCalls {
			frag.ToolCalls = append(frag.ToolCalls, ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}

		if frag.Content == "" && len(frag.ToolCalls) == 0 {
			continue
		}
		if err := emit(frag); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "emit failed")
			return err
		}
	}

	if err := stream.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		return fmt.Errorf("openai stream: %w", err)
	}
	return nil
}

// Complete runs a non-streaming chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
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

	response, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, fmt.Errorf("openai completion: %w", err)
	}

	if len(response.Choices) == 0 {
		err := fmt.Errorf("no response choices returned")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty response")
		return nil, err
	}

	choice := response.Choices[0]

	toolCalls := []ToolCall{}
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &Completion{
		Content:   choice.Message.Content,
		ToolCalls: toolCalls,
	}, nil
}
