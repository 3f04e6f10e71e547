package logging

import "context"

// Context keys for logging values. Using private types avoids key collisions
// with values set by other packages.
type contextKey int

const (
	sessionIDKey contextKey = iota
	componentKey
	operationKey
)

// WithSession adds the current git-ai session ID (the invoking agent's
// session, not a git ref) to the context.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithComponent tags log lines with the subsystem producing them, e.g.
// "interceptor", "synthesizer", "blame".
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithOperation tags log lines with the classified git operation being
// handled, e.g. "rebase", "cherry-pick".
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey, operation)
}

func sessionIDFromContext(ctx context.Context) string {
	if v := ctx.Value(sessionIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func componentFromContext(ctx context.Context) string {
	if v := ctx.Value(componentKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func operationFromContext(ctx context.Context) string {
	if v := ctx.Value(operationKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
