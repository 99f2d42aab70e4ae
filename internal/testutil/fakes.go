package testutil

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)  {}
func (l *NoopLogger) Warn(string, ...any)  {}
func (l *NoopLogger) Error(string, ...any) {}
func (l *NoopLogger) Debug(string, ...any) {}

var _ ports.Clock = (*FixedClock)(nil)

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

var _ ports.RateLimiter = (*StubRateLimiter)(nil)

// StubRateLimiter returns a configurable Allow result. Wait fails with WaitErr
// and counts calls per key.
type StubRateLimiter struct {
	AllowAll bool
	WaitErr  error

	mu    sync.Mutex
	Waits map[string]int
}

func (r *StubRateLimiter) Allow(context.Context, string, float64, int) bool {
	return r.AllowAll
}

func (r *StubRateLimiter) Wait(_ context.Context, key string, _ float64, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Waits == nil {
		r.Waits = make(map[string]int)
	}
	r.Waits[key]++
	return r.WaitErr
}

var _ ports.Sender = (*RecordingSender)(nil)

// RecordingSender records every request. Responses are produced by Respond;
// without it the request body is echoed back with a generated "id" for
// INVENTORY creates.
type RecordingSender struct {
	Respond func(req *processing.Request) (*jsonval.Value, error)

	mu   sync.Mutex
	Sent []*processing.Request
}

func (s *RecordingSender) Send(_ context.Context, req *processing.Request) (*jsonval.Value, error) {
	s.mu.Lock()
	s.Sent = append(s.Sent, req)
	n := len(s.Sent)
	s.mu.Unlock()

	if s.Respond != nil {
		return s.Respond(req)
	}
	resp := req.Body.Clone()
	if req.TargetAPI == mapping.APIInventory && req.Method == processing.MethodPost {
		resp.Put("id", jsonval.String("gen-"+strconv.Itoa(n)))
	}
	return resp, nil
}

// Requests returns a snapshot of the recorded requests.
func (s *RecordingSender) Requests() []*processing.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*processing.Request(nil), s.Sent...)
}

var _ mapping.Repository = (*MapRepository)(nil)

// MapRepository is an in-memory mapping store.
type MapRepository struct {
	Mappings  map[string]*mapping.Mapping
	Templates map[string]mapping.CodeTemplate
	Config    *mapping.ServiceConfiguration
	LoadErr   error

	mu sync.Mutex
}

// NewMapRepository seeds a repository with ms.
func NewMapRepository(ms ...*mapping.Mapping) *MapRepository {
	r := &MapRepository{Mappings: make(map[string]*mapping.Mapping)}
	for _, m := range ms {
		r.Mappings[m.ID] = m.Clone()
	}
	return r
}

func (r *MapRepository) LoadAll(context.Context) ([]*mapping.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LoadErr != nil {
		return nil, r.LoadErr
	}
	out := make([]*mapping.Mapping, 0, len(r.Mappings))
	for _, m := range r.Mappings {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MapRepository) LoadByID(_ context.Context, id string) (*mapping.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.Mappings[id]
	if !ok {
		return nil, mapping.ErrNotFound
	}
	return m.Clone(), nil
}

func (r *MapRepository) Save(_ context.Context, m *mapping.Mapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Mappings == nil {
		r.Mappings = make(map[string]*mapping.Mapping)
	}
	r.Mappings[m.ID] = m.Clone()
	return nil
}

func (r *MapRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Mappings[id]; !ok {
		return mapping.ErrNotFound
	}
	delete(r.Mappings, id)
	return nil
}

func (r *MapRepository) CodeTemplates(context.Context) (map[string]mapping.CodeTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]mapping.CodeTemplate, len(r.Templates))
	for k, v := range r.Templates {
		out[k] = v
	}
	return out, nil
}

func (r *MapRepository) ServiceConfiguration(context.Context) (mapping.ServiceConfiguration, error) {
	if r.Config != nil {
		return *r.Config, nil
	}
	return mapping.DefaultServiceConfiguration(), nil
}
