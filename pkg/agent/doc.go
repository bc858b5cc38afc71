// Package agent drives one user turn to completion: it loads persisted
// history, streams model output, executes requested tools, feeds the
// results back to the model, and emits ordered events to the transport
// layer.
//
// Turns on the same session are serialized through a per-session
// command queue lane. Tool calls within a batch run strictly in the
// order the model emitted them. Repeated tool calls within one turn are
// served from a turn-scoped cache instead of re-invoking the tool, and
// a fully cached batch ends the turn early.
package agent
