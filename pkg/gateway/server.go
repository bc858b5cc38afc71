package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/andreytim/dreamytin-ai/internal/observability"
	"github.com/andreytim/dreamytin-ai/internal/tracing"
	"github.com/andreytim/dreamytin-ai/pkg/agent"
	"github.com/andreytim/dreamytin-ai/pkg/conversation"
	"github.com/andreytim/dreamytin-ai/pkg/provider"
)

// Server exposes the conversation surface over HTTP and streams turn
// events over websockets.
type Server struct {
	host         string
	port         int
	server       *http.Server
	upgrader     websocket.Upgrader
	runner       *agent.Runner
	store        *conversation.Store
	catalog      *provider.Catalog
	providers    map[string]bool
	defaultModel string
	logger       zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	turnWG         sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	Runner       *agent.Runner
	Store        *conversation.Store
	Catalog      *provider.Catalog
	Providers    map[string]bool
	DefaultModel string
	Logger       zerolog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	observability.EnsureRegistered()

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("agent runner is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if cfg.DefaultModel == "" {
		return nil, fmt.Errorf("default model is required")
	}

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = provider.DefaultCatalog()
	}

	return &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		runner:       cfg.Runner,
		store:        cfg.Store,
		catalog:      catalog,
		providers:    cfg.Providers,
		defaultModel: cfg.DefaultModel,
		logger:       cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Local assistant, no origin policy
			},
		},
	}, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("GET /conversations", s.handleListConversations)
	mux.HandleFunc("POST /conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("GET /ws/{client_id}", s.handleWebSocket)
	return mux
}

// Start starts the gateway server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the gateway server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	done := make(chan struct{})
	go func() {
		s.turnWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleModels lists the models whose provider has a credential.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	available := s.catalog.ListForProviders(s.providers)

	resp := modelsResponse{
		Default: s.defaultModel,
		Models:  make([]modelInfo, 0, len(available)),
	}
	for _, m := range available {
		resp.Models = append(resp.Models, modelInfo{
			ID:            m.ID,
			Provider:      m.Provider,
			Name:          m.Name,
			ContextWindow: m.ContextWindow,
			SupportsTools: m.SupportsTools,
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": entries})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "conversation id is required"})
		return
	}
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	conv, err := s.store.Create(r.Context(), req.ID, model)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "conversation not found"})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	existed, err := s.store.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if !existed {
		s.writeJSON(w, http.StatusNotFound, deleteResponse{Deleted: false})
		return
	}
	s.writeJSON(w, http.StatusOK, deleteResponse{Deleted: true})
}

// handleWebSocket upgrades a chat connection. The path's client id is
// the session id; all turns on one socket share that session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	sessionID := r.PathValue("client_id")
	if sessionID == "" {
		http.Error(w, "client id is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	// Several sockets may share one session; the connection id keeps
	// their log lines apart.
	connID, _ := gonanoid.New()

	observability.ConnectionOpened()
	s.logger.Info().
		Str("session_id", sessionID).
		Str("conn_id", connID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go s.handleClient(sessionID, connID, conn)
}

// A connection buffers this many unstarted turns before rejecting
// further message frames.
const maxPendingTurns = 16

func (s *Server) handleClient(sessionID, connID string, conn *websocket.Conn) {
	emitter := newSocketEmitter(conn)
	clientCtx, cancelClient := context.WithCancel(context.Background())
	turns := make(chan agent.TurnParams, maxPendingTurns)

	defer func() {
		cancelClient()
		close(turns)
		conn.Close()
		observability.ConnectionClosed()
		s.logger.Info().Str("session_id", sessionID).Str("conn_id", connID).Msg("Client disconnected")
	}()

	// A single worker starts turns in frame arrival order, while the
	// read loop stays free to receive abort frames mid-turn.
	go s.runTurns(clientCtx, sessionID, turns, emitter)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("session_id", sessionID).Msg("WebSocket error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendErrorEvent(emitter, "invalid message")
			continue
		}

		switch msg.Type {
		case "message":
			s.dispatchTurn(sessionID, msg, turns, emitter)
		case "abort":
			if err := s.runner.Abort(sessionID); err != nil {
				s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Abort failed")
			}
		default:
			s.sendErrorEvent(emitter, fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

// dispatchTurn queues a message frame for the connection's turn worker.
func (s *Server) dispatchTurn(sessionID string, msg clientMessage, turns chan<- agent.TurnParams, emitter *socketEmitter) {
	if msg.Content == "" {
		s.sendErrorEvent(emitter, "message content is required")
		return
	}

	model := msg.Model
	if model == "" {
		model = s.defaultModel
	}
	streaming := true
	if msg.Streaming != nil {
		streaming = *msg.Streaming
	}

	s.turnWG.Add(1)
	select {
	case turns <- agent.TurnParams{
		SessionID: sessionID,
		Model:     model,
		Content:   msg.Content,
		Streaming: streaming,
	}:
	default:
		s.turnWG.Done()
		s.sendErrorEvent(emitter, "too many pending messages")
	}
}

// runTurns executes queued turns one at a time for a single connection.
func (s *Server) runTurns(ctx context.Context, sessionID string, turns <-chan agent.TurnParams, emitter *socketEmitter) {
	for params := range turns {
		turnCtx := tracing.NewRequestContext(ctx)
		logger := tracing.LoggerFromContext(turnCtx, s.logger)

		if err := s.runner.ProcessMessage(turnCtx, params, emitter); err != nil {
			// The runner already emitted an error event.
			logger.Error().Err(err).Str("session_id", sessionID).Msg("Turn failed")
		}
		s.turnWG.Done()
	}
}

func (s *Server) sendErrorEvent(emitter *socketEmitter, message string) {
	_ = emitter.Emit(agent.Event{
		Type:      agent.EventError,
		Error:     message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
