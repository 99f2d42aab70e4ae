package identity

import (
	"context"
	"sync"

	"github.com/sophialabs/mapforge/internal/domain/processing"
)

var _ processing.IdentityResolver = (*StaticResolver)(nil)

// StaticResolver answers from an in-memory table. It backs test runs and
// deployments without a platform connection.
type StaticResolver struct {
	mu  sync.RWMutex
	ids map[key]string
}

// NewStaticResolver creates an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{ids: make(map[key]string)}
}

func (r *StaticResolver) ResolveExternalID(ctx context.Context, idType, externalID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[key{idType, externalID}]
	return id, ok, nil
}

// Remember registers an identity.
func (r *StaticResolver) Remember(idType, externalID, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[key{idType, externalID}] = deviceID
}
