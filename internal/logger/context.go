package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	SessionID string    // Server-assigned session identifier
	Command   string    // Command name being handled
	UserID    string    // Authenticated user id (empty before login)
	ClientIP  string    // Client IP address (without port)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		SessionID: lc.SessionID,
		Command:   lc.Command,
		UserID:    lc.UserID,
		ClientIP:  lc.ClientIP,
		StartTime: lc.StartTime,
	}
}

// DurationMs returns milliseconds elapsed since StartTime
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}

// WithCommand returns a copy of the LogContext with the command name set
func (lc *LogContext) WithCommand(command string) *LogContext {
	c := lc.Clone()
	if c == nil {
		return nil
	}
	c.Command = command
	return c
}

// WithUser returns a copy of the LogContext with the user id set
func (lc *LogContext) WithUser(userID string) *LogContext {
	c := lc.Clone()
	if c == nil {
		return nil
	}
	c.UserID = userID
	return c
}
