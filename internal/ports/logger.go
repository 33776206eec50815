package ports

import "context"

// Logger is the structured logging interface the trading core writes
// through. Fields carry trade context (token id, order id, prices) as
// key-value pairs; implementations decide how to render them.
type Logger interface {
	// Debug records tick-by-tick detail, normally filtered out.
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	// Info records normal operation: orders placed, fills, round trips.
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	// Warn records degraded but recoverable conditions, e.g. a failed
	// quote fetch or a persist falling back to memory.
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error records failures that need operator attention.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
