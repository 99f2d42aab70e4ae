package usecases

import (
	"context"
	"sync/atomic"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
	"github.com/sophialabs/mapforge/internal/infrastructure/services"
)

// RouteMessageUseCase runs a message through every active mapping it matches.
type RouteMessageUseCase struct {
	index   atomic.Pointer[services.MappingIndex]
	process *ProcessMessageUseCase
	logger  ports.Logger
}

// NewRouteMessageUseCase creates a new use case with an empty index.
func NewRouteMessageUseCase(process *ProcessMessageUseCase, logger ports.Logger) *RouteMessageUseCase {
	uc := &RouteMessageUseCase{process: process, logger: logger}
	uc.index.Store(services.NewMappingIndex())
	return uc
}

// SetIndex atomically swaps the mapping index.
func (uc *RouteMessageUseCase) SetIndex(idx *services.MappingIndex) {
	uc.index.Store(idx)
}

// Index returns the index currently in use.
func (uc *RouteMessageUseCase) Index() *services.MappingIndex {
	return uc.index.Load()
}

// Inbound processes a broker message with every INBOUND mapping subscribed to topic.
func (uc *RouteMessageUseCase) Inbound(ctx context.Context, topic string, payload []byte) []*processing.Context {
	matched := uc.index.Load().MatchInbound(topic)
	if len(matched) == 0 {
		uc.logger.Debug("no mapping for topic", "topic", topic)
		return nil
	}
	return uc.runAll(ctx, matched, topic, payload)
}

// Outbound processes a platform notification with every OUTBOUND mapping of api.
func (uc *RouteMessageUseCase) Outbound(ctx context.Context, api mapping.API, payload []byte) []*processing.Context {
	matched := uc.index.Load().MatchOutbound(api)
	if len(matched) == 0 {
		uc.logger.Debug("no outbound mapping for api", "api", api)
		return nil
	}
	return uc.runAll(ctx, matched, string(api), payload)
}

func (uc *RouteMessageUseCase) runAll(ctx context.Context, matched []*mapping.Mapping, topic string, payload []byte) []*processing.Context {
	out := make([]*processing.Context, 0, len(matched))
	for _, m := range matched {
		out = append(out, uc.process.Execute(ctx, Message{
			Mapping: m,
			Topic:   topic,
			Payload: payload,
			Send:    true,

			RequireIdentifiers: true,
		}))
	}
	return out
}
