package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/andreytim/dreamytin-ai/internal/observability"
	"github.com/andreytim/dreamytin-ai/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// DefaultTitle is the index title before the first user message arrives.
const DefaultTitle = "New conversation"

type index struct {
	Conversations []IndexEntry `json:"conversations"`
}

// Store persists conversations as indented JSON documents, one per
// session, with a shared index.json summary.
type Store struct {
	dir        string
	indexPath  string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.RWMutex
	indexMu    sync.Mutex
}

// New creates a Store rooted at dir. An empty dir defaults to
// ~/.dreamytin/conversations.
func New(dir string) (*Store, error) {
	observability.EnsureRegistered()

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".dreamytin", "conversations")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}

	s := &Store{
		dir:        dir,
		indexPath:  filepath.Join(dir, "index.json"),
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", dir).Msg("Conversation store initialized")
	s.updateConversationsMetric()

	return s, nil
}

// validateSessionID rejects IDs that could escape the store directory.
func (s *Store) validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if sessionID == "index" {
		return fmt.Errorf("session ID %q is reserved", sessionID)
	}
	if strings.Contains(sessionID, "..") {
		return fmt.Errorf("session ID cannot contain '..'")
	}
	if strings.ContainsAny(sessionID, "/\\") {
		return fmt.Errorf("session ID cannot contain path separators")
	}
	if strings.Contains(sessionID, "\x00") {
		return fmt.Errorf("session ID cannot contain null bytes")
	}
	return nil
}

func (s *Store) conversationPath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *Store) updateConversationsMetric() {
	entries, err := s.List(context.Background())
	if err != nil {
		return
	}
	observability.SetConversationsTotal(len(entries))
}

func (s *Store) getWriteLock(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, exists := s.writeLocks[sessionID]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.writeLocks[sessionID] = lock
	return lock
}

func (s *Store) releaseWriteLock(sessionID string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.writeLocks, sessionID)
}

// writeFileAtomic replaces path with data via a temp file and rename, so
// a crash mid-write leaves the previous content intact.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

// Create creates a new conversation document and index entry. Creating
// an existing session returns the stored conversation unchanged.
func (s *Store) Create(ctx context.Context, sessionID, model string) (*Conversation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"dreamytin.conversation",
		"conversation.create",
		attribute.String("session_id", sessionID),
		attribute.String("model", model),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_id", sessionID).Logger()

	if err := s.validateSessionID(sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	lock := s.getWriteLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if existing, err := s.load(sessionID); err == nil {
		logger.Debug().Msg("Conversation already exists")
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := time.Now().UTC()
	conv := &Conversation{
		ID:        sessionID,
		CreatedAt: now,
		UpdatedAt: now,
		Model:     model,
		Messages:  []Message{},
	}

	if err := s.save(conv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	entry := IndexEntry{
		ID:           sessionID,
		Title:        DefaultTitle,
		CreatedAt:    now,
		UpdatedAt:    now,
		MessageCount: 0,
		Model:        model,
	}
	if err := s.upsertIndexEntry(entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.updateConversationsMetric()
	logger.Info().Str("model", model).Msg("Conversation created")

	return conv, nil
}

// Get loads a conversation. Returns ErrNotFound when it does not exist.
func (s *Store) Get(ctx context.Context, sessionID string) (*Conversation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"dreamytin.conversation",
		"conversation.get",
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordConversationLoad(time.Since(start))
	}()

	if err := s.validateSessionID(sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	conv, err := s.load(sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	return conv, nil
}

func (s *Store) load(sessionID string) (*Conversation, error) {
	data, err := os.ReadFile(s.conversationPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation %s: %w", sessionID, err)
	}
	return &conv, nil
}

func (s *Store) save(conv *Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return writeFileAtomic(s.conversationPath(conv.ID), data)
}

// Append adds a message to a conversation and refreshes the index entry.
// The conversation log is durably written before the index is touched.
func (s *Store) Append(ctx context.Context, sessionID string, message Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"dreamytin.conversation",
		"conversation.append",
		attribute.String("session_id", sessionID),
		attribute.String("role", message.Role),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_id", sessionID).Logger()
	start := time.Now()
	defer func() {
		observability.RecordConversationSave(time.Since(start))
	}()

	if err := s.validateSessionID(sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if message.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	lock := s.getWriteLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.load(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	conv.Messages = append(conv.Messages, message)
	conv.UpdatedAt = message.Timestamp

	if err := s.save(conv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.refreshIndexEntry(conv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger.Debug().
		Str("role", message.Role).
		Int("messages", len(conv.Messages)).
		Msg("Message appended")

	return nil
}

// refreshIndexEntry updates the index after an append, deriving the
// title from the first user message while it is still the default.
func (s *Store) refreshIndexEntry(conv *Conversation) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}

	for i := range idx.Conversations {
		entry := &idx.Conversations[i]
		if entry.ID != conv.ID {
			continue
		}

		if entry.Title == DefaultTitle {
			if title, ok := deriveTitle(conv.Messages); ok {
				entry.Title = title
			}
		}
		entry.UpdatedAt = conv.UpdatedAt
		entry.MessageCount = len(conv.Messages)
		if conv.Model != "" {
			entry.Model = conv.Model
		}
		break
	}

	return s.saveIndex(idx)
}

// deriveTitle returns the first 50 characters of the first user message.
func deriveTitle(messages []Message) (string, bool) {
	for _, msg := range messages {
		if msg.Role != "user" || msg.Content == nil {
			continue
		}
		content := *msg.Content
		runes := []rune(content)
		if len(runes) <= 50 {
			return strings.TrimSpace(content), true
		}
		return strings.TrimSpace(string(runes[:50])) + "...", true
	}
	return "", false
}

func (s *Store) upsertIndexEntry(entry IndexEntry) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}

	for i := range idx.Conversations {
		if idx.Conversations[i].ID == entry.ID {
			idx.Conversations[i] = entry
			return s.saveIndex(idx)
		}
	}

	idx.Conversations = append(idx.Conversations, entry)
	return s.saveIndex(idx)
}

func (s *Store) loadIndex() (*index, error) {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &index{Conversations: []IndexEntry{}}, nil
		}
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	if idx.Conversations == nil {
		idx.Conversations = []IndexEntry{}
	}
	return &idx, nil
}

func (s *Store) saveIndex(idx *index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	return writeFileAtomic(s.indexPath, data)
}

// List returns all index entries sorted by updated_at, newest first.
func (s *Store) List(ctx context.Context) ([]IndexEntry, error) {
	s.indexMu.Lock()
	idx, err := s.loadIndex()
	s.indexMu.Unlock()
	if err != nil {
		return nil, err
	}

	entries := idx.Conversations
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
	return entries, nil
}

// Delete removes a conversation and its index entry. Returns true when
// the conversation file existed.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"dreamytin.conversation",
		"conversation.delete",
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_id", sessionID).Logger()

	if err := s.validateSessionID(sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	lock := s.getWriteLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s.indexMu.Lock()
	idx, err := s.loadIndex()
	if err == nil {
		kept := idx.Conversations[:0]
		for _, entry := range idx.Conversations {
			if entry.ID != sessionID {
				kept = append(kept, entry)
			}
		}
		idx.Conversations = kept
		err = s.saveIndex(idx)
	}
	s.indexMu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	existed := true
	if err := os.Remove(s.conversationPath(sessionID)); err != nil {
		if !os.IsNotExist(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return false, fmt.Errorf("failed to delete conversation file: %w", err)
		}
		existed = false
	}

	s.releaseWriteLock(sessionID)
	s.updateConversationsMetric()

	logger.Info().Bool("existed", existed).Msg("Conversation deleted")

	return existed, nil
}

// Messages returns the conversation messages, optionally limited to the
// most recent limit entries. A limit of 0 returns everything.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	conv, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	msgs := conv.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}
