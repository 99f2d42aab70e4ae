package ports

import (
	"context"
	"time"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/processing"
)

// Clock stamps processed messages and saved mappings.
type Clock interface {
	Now() time.Time
}

// Logger provides structured logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// RateLimiter throttles outgoing requests per key. rate is tokens per second,
// burst is the max burst size.
type RateLimiter interface {
	// Allow reports whether a request for key may proceed now.
	Allow(ctx context.Context, key string, rate float64, burst int) bool
	// Wait blocks until a request for key may proceed or ctx ends.
	Wait(ctx context.Context, key string, rate float64, burst int) error
}

// Sender delivers a built request to its destination and returns the response body.
type Sender interface {
	Send(ctx context.Context, req *processing.Request) (*jsonval.Value, error)
}

// TemplateRenderer expands a code template with the given variables.
type TemplateRenderer interface {
	Render(source string, vars map[string]any) (string, error)
}
