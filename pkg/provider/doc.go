// Package provider adapts the runtime to LLM backends. It holds the
// model catalog and streaming clients for OpenAI and Anthropic; Google
// models are catalogued but their client is not implemented yet.
//
// Invariants:
// - Fragments are emitted in arrival order; an emit error aborts the
//   stream and is returned to the caller.
// - Tool-call deltas carry a stable index so callers can accumulate
//   arguments across fragments.
// - Provider-specific model naming (the gemini/ namespace) stays inside
//   this package.
package provider
