// Package identity resolves external device ids to platform device ids.
package identity

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/sophialabs/mapforge/internal/domain/processing"
)

var _ processing.IdentityResolver = (*CachedResolver)(nil)

type key struct {
	idType, externalID string
}

// CachedResolver puts a bounded LRU in front of another resolver. Only
// positive answers are cached so devices created later are found.
type CachedResolver struct {
	next processing.IdentityResolver

	mu     sync.Mutex
	cache  *lru.Cache
	hits   uint64
	misses uint64
}

// NewCachedResolver caches up to size identities. A size below one disables caching.
func NewCachedResolver(next processing.IdentityResolver, size int) *CachedResolver {
	r := &CachedResolver{next: next}
	if size > 0 {
		r.cache = lru.New(size)
	}
	return r
}

func (r *CachedResolver) ResolveExternalID(ctx context.Context, idType, externalID string) (string, bool, error) {
	k := key{idType, externalID}

	r.mu.Lock()
	if r.cache != nil {
		if v, ok := r.cache.Get(k); ok {
			r.hits++
			r.mu.Unlock()
			return v.(string), true, nil
		}
	}
	r.misses++
	r.mu.Unlock()

	id, found, err := r.next.ResolveExternalID(ctx, idType, externalID)
	if err != nil || !found {
		return id, found, err
	}
	r.Remember(idType, externalID, id)
	return id, true, nil
}

// Remember stores a known identity, for example one registered while sending.
func (r *CachedResolver) Remember(idType, externalID, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache != nil {
		r.cache.Add(key{idType, externalID}, deviceID)
	}
}

// Forget drops a cached identity.
func (r *CachedResolver) Forget(idType, externalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache != nil {
		r.cache.Remove(key{idType, externalID})
	}
}

// Stats reports cache size, hits and misses.
type Stats struct {
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats returns a snapshot of the cache counters.
func (r *CachedResolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Hits: r.hits, Misses: r.misses}
	if r.cache != nil {
		s.Size = r.cache.Len()
	}
	return s
}
