// Package toolexecutor manages tool registration and execution.
//
// Invariants:
// - Parameter schemas are compiled at registration time; Execute never
//   runs a handler on arguments that fail validation.
// - Declared defaults are applied before validation.
// - Execute never returns a Go error: unknown tools, invalid parameters,
//   handler failures and timeouts all surface as failed Results.
//
// Usage:
//
//	exec := toolexecutor.New()
//	_ = exec.Register(toolexecutor.Definition{
//		Name:        "echo",
//		Description: "Echo the input",
//		Parameters: []toolexecutor.Parameter{
//			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
//		},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
//			return params["text"], nil
//		},
//	})
//	result := exec.Execute(ctx, "echo", map[string]interface{}{"text": "hi"})
//	_ = result
package toolexecutor
