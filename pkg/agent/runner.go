package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/andreytim/dreamytin-ai/internal/observability"
	"github.com/andreytim/dreamytin-ai/internal/tracing"
	"github.com/andreytim/dreamytin-ai/pkg/commandqueue"
	"github.com/andreytim/dreamytin-ai/pkg/conversation"
	"github.com/andreytim/dreamytin-ai/pkg/provider"
	"github.com/andreytim/dreamytin-ai/pkg/toolexecutor"
)

const (
	// maxModelCalls bounds the tool-calling loop within one turn.
	maxModelCalls = 10

	iterationLimitMessage = "Maximum tool execution iterations (10) reached."
	duplicateSkipReason   = "Duplicate tool call - using cached result"
)

// ClientSource resolves a provider name to a usable client.
type ClientSource interface {
	ClientFor(providerName string) (provider.Client, error)
}

// Runner orchestrates agent turns.
type Runner struct {
	store    *conversation.Store
	executor *toolexecutor.Executor
	queue    *commandqueue.Queue
	clients  ClientSource
	catalog  *provider.Catalog
	prompts  *PromptSource
	logger   zerolog.Logger

	temperature     float64
	maxTokens       int
	providerTimeout time.Duration

	// Active turns for abort capability
	activeRuns map[string]context.CancelFunc
	runsMu     sync.RWMutex
}

// Config holds runner configuration
type Config struct {
	Store           *conversation.Store
	Executor        *toolexecutor.Executor
	Queue           *commandqueue.Queue
	Clients         ClientSource
	Catalog         *provider.Catalog
	Prompts         *PromptSource
	Logger          zerolog.Logger
	Temperature     float64
	MaxTokens       int
	ProviderTimeout time.Duration
}

// TurnParams describes one incoming user message.
type TurnParams struct {
	SessionID string
	Model     string
	Content   string

	// Streaming selects the incremental event protocol. A
	// non-streaming turn makes a single completion call and emits one
	// message event, with no tool loop.
	Streaming bool
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}
	if cfg.Clients == nil {
		return nil, fmt.Errorf("client source is required")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = provider.DefaultCatalog()
	}
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = NewPromptSource("", cfg.Logger)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Runner{
		store:           cfg.Store,
		executor:        cfg.Executor,
		queue:           cfg.Queue,
		clients:         cfg.Clients,
		catalog:         catalog,
		prompts:         prompts,
		logger:          cfg.Logger,
		temperature:     cfg.Temperature,
		maxTokens:       maxTokens,
		providerTimeout: timeout,
		activeRuns:      make(map[string]context.CancelFunc),
	}, nil
}

// ProcessMessage runs one turn for a session, emitting ordered events
// to the emitter. Turns on the same session are serialized through a
// per-session queue lane.
func (r *Runner) ProcessMessage(ctx context.Context, params TurnParams, emitter Emitter) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if params.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if params.Content == "" {
		return fmt.Errorf("message content is required")
	}
	if emitter == nil {
		return fmt.Errorf("emitter is required")
	}

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx = tracing.WithSessionID(ctx, params.SessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"dreamytin.agent",
		"agent.process_message",
		attribute.String("session_id", params.SessionID),
		attribute.String("model", params.Model),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger).With().Str("session_id", params.SessionID).Logger()

	lane := fmt.Sprintf("session-%s", params.SessionID)

	_, err := r.queue.EnqueueWithContext(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		return nil, r.runTurn(taskCtx, params, emitter)
	})
	if err != nil {
		logger.Error().Err(err).Msg("Turn failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Abort cancels the active turn for a session, if any.
func (r *Runner) Abort(sessionID string) error {
	r.runsMu.Lock()
	defer r.runsMu.Unlock()

	cancel, exists := r.activeRuns[sessionID]
	if !exists {
		r.logger.Debug().Str("session_id", sessionID).Msg("No active turn to abort")
		return nil
	}

	r.logger.Info().Str("session_id", sessionID).Msg("Aborting turn")
	cancel()
	delete(r.activeRuns, sessionID)
	return nil
}

// IsRunning reports whether a turn is active for a session.
func (r *Runner) IsRunning(sessionID string) bool {
	r.runsMu.RLock()
	defer r.runsMu.RUnlock()

	_, exists := r.activeRuns[sessionID]
	return exists
}

// runTurn executes one turn end to end.
func (r *Runner) runTurn(ctx context.Context, params TurnParams, emitter Emitter) error {
	ctx = tracing.WithSessionID(ctx, params.SessionID)
	logger := tracing.LoggerFromContext(ctx, r.logger).With().Str("session_id", params.SessionID).Logger()

	model, ok := r.catalog.Get(params.Model)
	if !ok {
		err := fmt.Errorf("unknown model: %s", params.Model)
		r.emitError(emitter, params.Model, err)
		return err
	}

	client, err := r.clients.ClientFor(model.Provider)
	if err != nil {
		r.emitError(emitter, model.ID, err)
		return err
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.runsMu.Lock()
	r.activeRuns[params.SessionID] = cancel
	r.runsMu.Unlock()
	defer func() {
		r.runsMu.Lock()
		delete(r.activeRuns, params.SessionID)
		r.runsMu.Unlock()
	}()

	start := time.Now()
	success := false
	defer func() {
		observability.RecordTurn(model.Provider, time.Since(start), success)
	}()

	// Idempotent; first message on a new session creates the log.
	if _, err := r.store.Create(execCtx, params.SessionID, model.ID); err != nil {
		r.emitError(emitter, model.ID, err)
		return fmt.Errorf("failed to prepare session: %w", err)
	}

	history, err := r.store.Messages(execCtx, params.SessionID, 0)
	if err != nil {
		r.emitError(emitter, model.ID, err)
		return fmt.Errorf("failed to load history: %w", err)
	}
	loaded := len(history)
	history = conversation.Truncate(history, model.ContextWindow)
	observability.RecordTruncationDropped(loaded - len(history))

	msgs := toProviderMessages(history)
	msgs = append(msgs, provider.Message{Role: "user", Content: params.Content})

	var tools []provider.ToolSchema
	if model.SupportsTools {
		tools = r.buildToolSchemas()
	}

	req := provider.Request{
		Model:        model.BackendModel(),
		SystemPrompt: r.prompts.Current(),
		Tools:        tools,
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	}

	if !params.Streaming {
		if err := r.runSyncTurn(execCtx, client, req, msgs, model, params, emitter, logger); err != nil {
			return err
		}
		success = true
		return nil
	}

	if err := r.runStreamingTurn(execCtx, client, req, msgs, model, params, emitter, logger); err != nil {
		return err
	}
	success = true
	return nil
}

// runSyncTurn makes a single non-streaming completion call. Tool
// requests in the response are not executed on this path.
func (r *Runner) runSyncTurn(
	ctx context.Context,
	client provider.Client,
	req provider.Request,
	msgs []provider.Message,
	model provider.ModelInfo,
	params TurnParams,
	emitter Emitter,
	logger zerolog.Logger,
) error {
	req.Messages = msgs

	callCtx, cancelCall := context.WithTimeout(ctx, r.providerTimeout)
	completion, err := client.Complete(callCtx, req)
	cancelCall()
	if err != nil {
		r.reportProviderError(emitter, model.ID, err, logger)
		return err
	}

	if err := r.store.Append(ctx, params.SessionID, conversation.UserMessage(params.Content)); err != nil {
		r.emitError(emitter, model.ID, err)
		return fmt.Errorf("failed to persist user message: %w", err)
	}
	if err := r.store.Append(ctx, params.SessionID, conversation.AssistantMessage(conversation.Text(completion.Content), nil)); err != nil {
		r.emitError(emitter, model.ID, err)
		return fmt.Errorf("failed to persist assistant message: %w", err)
	}

	return r.emit(emitter, model.ID, Event{Type: EventMessage, Content: completion.Content})
}

// runStreamingTurn drives the tool-calling loop.
func (r *Runner) runStreamingTurn(
	ctx context.Context,
	client provider.Client,
	req provider.Request,
	msgs []provider.Message,
	model provider.ModelInfo,
	params TurnParams,
	emitter Emitter,
	logger zerolog.Logger,
) error {
	cache := newDedupCache()
	userPersisted := false

	for call := 1; call <= maxModelCalls; call++ {
		acc := newStreamAccumulator()
		followup := call > 1
		startedFinal := false

		onFragment := func(frag provider.Fragment) error {
			acc.Add(frag)
			if frag.Content == "" {
				return nil
			}
			if !followup {
				return r.emit(emitter, model.ID, Event{Type: EventStream, Content: frag.Content})
			}
			if !startedFinal {
				startedFinal = true
				if err := r.emit(emitter, model.ID, Event{Type: EventFinalResponseStart}); err != nil {
					return err
				}
			}
			return r.emit(emitter, model.ID, Event{Type: EventFinalStream, Content: frag.Content})
		}

		req.Messages = msgs
		callCtx, cancelCall := context.WithTimeout(ctx, r.providerTimeout)
		err := client.Stream(callCtx, req, onFragment)
		cancelCall()
		if err != nil {
			r.reportProviderError(emitter, model.ID, err, logger)
			return err
		}

		// The user message is persisted only once the first call
		// succeeds, so a dead provider does not grow the log.
		if !userPersisted {
			if err := r.store.Append(ctx, params.SessionID, conversation.UserMessage(params.Content)); err != nil {
				r.emitError(emitter, model.ID, err)
				return fmt.Errorf("failed to persist user message: %w", err)
			}
			userPersisted = true
		}

		content := acc.Content()
		requests := acc.ToolCalls()

		var contentPtr *string
		if content != "" || len(requests) == 0 {
			contentPtr = conversation.Text(content)
		}
		if err := r.store.Append(ctx, params.SessionID, conversation.AssistantMessage(contentPtr, toConversationToolCalls(requests))); err != nil {
			r.emitError(emitter, model.ID, err)
			return fmt.Errorf("failed to persist assistant message: %w", err)
		}
		msgs = append(msgs, provider.Message{
			Role:      "assistant",
			Content:   content,
			ToolCalls: toProviderToolCalls(requests),
		})

		if len(requests) == 0 {
			if err := r.emit(emitter, model.ID, Event{Type: EventStreamEnd}); err != nil {
				return err
			}
			return nil
		}

		executed := 0
		for _, request := range requests {
			args := r.parseArguments(request, logger)
			key := dedupKey(request.Name, args)

			if cached, ok := cache.get(key); ok {
				if err := r.store.Append(ctx, params.SessionID, conversation.ToolMessage(request.ID, cached)); err != nil {
					r.emitError(emitter, model.ID, err)
					return fmt.Errorf("failed to persist tool result: %w", err)
				}
				msgs = append(msgs, provider.Message{Role: "tool", Content: cached, ToolCallID: request.ID})

				observability.RecordToolSkipped(request.Name)
				if err := r.emit(emitter, model.ID, Event{
					Type:     EventToolSkipped,
					ToolName: request.Name,
					Reason:   duplicateSkipReason,
					Result:   cached,
				}); err != nil {
					return err
				}
				continue
			}

			if err := r.emit(emitter, model.ID, Event{
				Type:      EventToolCall,
				ToolName:  request.Name,
				Arguments: args,
			}); err != nil {
				return err
			}

			result := r.executor.Execute(ctx, request.Name, args)
			formatted := result.Format()
			cache.put(key, formatted)
			executed++

			if err := r.store.Append(ctx, params.SessionID, conversation.ToolMessage(request.ID, formatted)); err != nil {
				r.emitError(emitter, model.ID, err)
				return fmt.Errorf("failed to persist tool result: %w", err)
			}
			msgs = append(msgs, provider.Message{Role: "tool", Content: formatted, ToolCallID: request.ID})

			// Emitted only after the result is durably appended.
			if err := r.emit(emitter, model.ID, Event{
				Type:     EventToolResult,
				ToolName: request.Name,
				Result:   formatted,
			}); err != nil {
				return err
			}
		}

		// A batch served entirely from cache means the model is
		// reissuing calls it has already seen. Stop asking.
		if executed == 0 {
			logger.Info().Int("call", call).Msg("Repetitive tool batch, ending turn")
			if err := r.emit(emitter, model.ID, Event{Type: EventStreamEnd}); err != nil {
				return err
			}
			return nil
		}
	}

	err := errors.New(iterationLimitMessage)
	logger.Warn().Msg("Tool execution iteration limit reached")
	if emitErr := r.emit(emitter, model.ID, Event{Type: EventError, Error: iterationLimitMessage}); emitErr != nil {
		return emitErr
	}
	if emitErr := r.emit(emitter, model.ID, Event{Type: EventStreamEnd}); emitErr != nil {
		return emitErr
	}
	return err
}

// parseArguments parses the raw argument text of a tool call. Text
// that is not valid JSON degrades to an empty argument set instead of
// failing the turn.
func (r *Runner) parseArguments(request toolCallRequest, logger zerolog.Logger) map[string]interface{} {
	args := map[string]interface{}{}
	if err := json.Unmarshal([]byte(request.Arguments), &args); err != nil {
		logger.Warn().
			Str("tool", request.Name).
			Err(err).
			Msg("Failed to parse tool arguments, using empty set")
		return map[string]interface{}{}
	}
	return args
}

// buildToolSchemas converts registered tool definitions to the
// provider schema shape.
func (r *Runner) buildToolSchemas() []provider.ToolSchema {
	defs := r.executor.Definitions()
	schemas := make([]provider.ToolSchema, 0, len(defs))

	for _, def := range defs {
		properties := map[string]interface{}{}
		required := []string{}
		for _, param := range def.Parameters {
			properties[param.Name] = map[string]interface{}{
				"type":        param.Type,
				"description": param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}

		inputSchema := map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			inputSchema["required"] = required
		}

		schemas = append(schemas, provider.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema,
		})
	}
	return schemas
}

func (r *Runner) emit(emitter Emitter, model string, event Event) error {
	observability.RecordEventEmitted(event.Type)
	if err := emitter.Emit(stamp(event, model)); err != nil {
		return fmt.Errorf("failed to emit %s event: %w", event.Type, err)
	}
	return nil
}

// emitError pushes an error event on a best-effort basis.
func (r *Runner) emitError(emitter Emitter, model string, err error) {
	_ = r.emit(emitter, model, Event{Type: EventError, Error: err.Error()})
}

// reportProviderError emits an error event unless the turn was
// cancelled by the client.
func (r *Runner) reportProviderError(emitter Emitter, model string, err error, logger zerolog.Logger) {
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("Turn aborted")
		return
	}
	logger.Error().Err(err).Msg("Provider call failed")
	r.emitError(emitter, model, err)
}

func toProviderMessages(messages []conversation.Message) []provider.Message {
	out := make([]provider.Message, 0, len(messages))
	for _, msg := range messages {
		pm := provider.Message{
			Role:       msg.Role,
			Content:    msg.TextContent(),
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, provider.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out = append(out, pm)
	}
	return out
}

func toProviderToolCalls(requests []toolCallRequest) []provider.ToolCall {
	if len(requests) == 0 {
		return nil
	}
	out := make([]provider.ToolCall, 0, len(requests))
	for _, req := range requests {
		out = append(out, provider.ToolCall{
			ID:        req.ID,
			Name:      req.Name,
			Arguments: req.Arguments,
		})
	}
	return out
}

func toConversationToolCalls(requests []toolCallRequest) []conversation.ToolCall {
	if len(requests) == 0 {
		return nil
	}
	out := make([]conversation.ToolCall, 0, len(requests))
	for _, req := range requests {
		out = append(out, conversation.ToolCall{
			ID:   req.ID,
			Type: "function",
			Function: conversation.ToolCallFunction{
				Name:      req.Name,
				Arguments: req.Arguments,
			},
		})
	}
	return out
}
