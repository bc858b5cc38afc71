// Package conversation manages persistent chat history using one JSON
// document per session plus an index file.
//
// Invariants:
// - Session IDs are validated and path-safe.
// - Writes for the same session are serialized; files are replaced
//   atomically (temp file + rename) so readers never observe a partial
//   document.
// - The conversation log is written before the index, so the index never
//   references messages that were not durably stored.
// - Conversations are never deleted implicitly; only Delete removes data.
//
// Usage:
//
//	store, _ := conversation.New("/tmp/dreamytin/conversations")
//	_, _ = store.Create(ctx, "session-1", "gpt-4.1")
//	_ = store.Append(ctx, "session-1", conversation.UserMessage("hello"))
//	msgs, _ := store.Messages(ctx, "session-1", 0)
//	_ = msgs
package conversation
