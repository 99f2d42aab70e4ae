package processing

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// Cache maps target paths to extracted values. Keys keep first-insertion order and
// values keep append order.
type Cache struct {
	keys    []string
	entries map[string][]SubstituteValue
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]SubstituteValue)}
}

// Add appends sv under key.
func (c *Cache) Add(key string, sv SubstituteValue) {
	if _, ok := c.entries[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.entries[key] = append(c.entries[key], sv)
}

// Get returns the values stored under key.
func (c *Cache) Get(key string) []SubstituteValue {
	return c.entries[key]
}

// Has reports whether key is present.
func (c *Cache) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// Keys returns the keys in insertion order.
func (c *Cache) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of keys.
func (c *Cache) Len() int { return len(c.keys) }

// Clone deep-copies the cache.
func (c *Cache) Clone() *Cache {
	out := NewCache()
	for _, k := range c.keys {
		for _, sv := range c.entries[k] {
			out.Add(k, sv.Clone())
		}
	}
	return out
}

// AssemblyOrder returns the keys with context data first, the rest in insertion order.
func (c *Cache) AssemblyOrder() []string {
	var ctxKeys, rest []string
	for _, k := range c.keys {
		if strings.HasPrefix(k, mapping.TokenContextData) {
			ctxKeys = append(ctxKeys, k)
		} else {
			rest = append(rest, k)
		}
	}
	return append(ctxKeys, rest...)
}

// MarshalJSON encodes the cache as an object keyed by target path, in order.
func (c *Cache) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(c.entries[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
