package transport

import (
	"context"
	"errors"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

var (
	// ErrNoBroker is returned for PUBLISH requests when no broker is configured.
	ErrNoBroker = errors.New("no mqtt broker configured")
	// ErrNoPlatform is returned for REST requests when no platform is configured.
	ErrNoPlatform = errors.New("no platform configured")
)

var _ ports.Sender = (*Router)(nil)

// Router sends PUBLISH requests to the broker and everything else to the platform.
type Router struct {
	platform ports.Sender
	broker   ports.Sender
}

// NewRouter creates a router. Either side may be nil.
func NewRouter(platform, broker ports.Sender) *Router {
	return &Router{platform: platform, broker: broker}
}

func (r *Router) Send(ctx context.Context, req *processing.Request) (*jsonval.Value, error) {
	if req.Method == processing.MethodPublish {
		if r.broker == nil {
			return nil, ErrNoBroker
		}
		return r.broker.Send(ctx, req)
	}
	if r.platform == nil {
		return nil, ErrNoPlatform
	}
	return r.platform.Send(ctx, req)
}
