package testutil

import (
	"context"
	"sync"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/processing"
)

// Expressions understood by FakeEvaluator besides its table.
const (
	ExprPanic = "__panic__"
	ExprBlock = "__block__"
)

var _ processing.Evaluator = (*FakeEvaluator)(nil)

// FakeEvaluator answers expressions from a table. ExprBlock waits for the context
// to end and ExprPanic panics. Unknown expressions yield null.
type FakeEvaluator struct {
	Results map[string]*jsonval.Value
	Errors  map[string]error

	mu    sync.Mutex
	Calls []string
}

func (e *FakeEvaluator) Evaluate(ctx context.Context, _ *jsonval.Value, expression string) (*jsonval.Value, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, expression)
	e.mu.Unlock()

	switch expression {
	case ExprPanic:
		panic("boom")
	case ExprBlock:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err, ok := e.Errors[expression]; ok {
		return nil, err
	}
	if v, ok := e.Results[expression]; ok {
		return v.Clone(), nil
	}
	return jsonval.Null(), nil
}

var _ processing.CodeRunner = (*FakeCodeRunner)(nil)

// FakeCodeRunner calls Fn, or returns Err when Fn is nil.
type FakeCodeRunner struct {
	Fn  func(ctx context.Context, code string, sc processing.SubstitutionContext) (*processing.SubstitutionResult, error)
	Err error
}

func (r *FakeCodeRunner) Run(ctx context.Context, code string, sc processing.SubstitutionContext) (*processing.SubstitutionResult, error) {
	if r.Fn == nil {
		return nil, r.Err
	}
	return r.Fn(ctx, code, sc)
}

var _ processing.IdentityResolver = (*FakeIdentityResolver)(nil)

// FakeIdentityResolver resolves from a map keyed by external id. Block makes every
// lookup wait for the context to end.
type FakeIdentityResolver struct {
	IDs    map[string]string
	Errors map[string]error
	Block  bool

	mu      sync.Mutex
	Lookups int
}

func (r *FakeIdentityResolver) ResolveExternalID(ctx context.Context, _, externalID string) (string, bool, error) {
	r.mu.Lock()
	r.Lookups++
	r.mu.Unlock()

	if r.Block {
		<-ctx.Done()
		return "", false, ctx.Err()
	}
	if err, ok := r.Errors[externalID]; ok {
		return "", false, err
	}
	id, ok := r.IDs[externalID]
	return id, ok, nil
}
