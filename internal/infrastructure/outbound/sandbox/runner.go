// Package sandbox runs user supplied mapping programs written in the Expr language.
//
// A program sees the decoded payload and topic and reports substitutions either by
// calling addSubstitution / add, or by returning a map of target path to value:
//
//	add("_IDENTITY_.externalId", payload.id);
//	addSubstitution("c8y_Temp.T.value", payload.temp, "CREATE_IF_MISSING", false);
//	{"time": payload.ts}
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/golang/groupcache/lru"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
)

const (
	maxNodes     = 10000
	programCache = 256
	// memoryBudget caps the values a run may allocate (ranges, arrays, maps).
	memoryBudget = 1 << 20
)

var _ processing.CodeRunner = (*Runner)(nil)

type (
	addSubstitutionFunc func(key string, value any, strategy string, expand bool) bool
	addFunc             func(key string, value any) bool
	addErrorFunc        func(msg string) bool
)

// env is the only surface a program can reach.
type env struct {
	Payload                 any                 `expr:"payload"`
	Topic                   string              `expr:"topic"`
	TopicLevels             []string            `expr:"topicLevels"`
	GenericDeviceIdentifier string              `expr:"genericDeviceIdentifier"`
	ExternalIdentifier      func() string       `expr:"externalIdentifier"`
	C8YIdentifier           func() string       `expr:"c8yIdentifier"`
	AddSubstitution         addSubstitutionFunc `expr:"addSubstitution"`
	Add                     addFunc             `expr:"add"`
	AddError                addErrorFunc        `expr:"addError"`
}

// Runner compiles and executes mapping programs. Compiled programs are cached by
// source text. Runner is safe for concurrent use.
type Runner struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewRunner creates a runner.
func NewRunner() *Runner {
	return &Runner{cache: lru.New(programCache)}
}

// Run executes code and returns what it produced. Run returns when ctx ends and
// the partial result is discarded. The abandoned program stops at its next call
// into the environment; Expr has no unbounded loops and allocations are capped
// by the memory budget, so it cannot run on indefinitely in between.
func (r *Runner) Run(ctx context.Context, code string, sc processing.SubstitutionContext) (*processing.SubstitutionResult, error) {
	program, err := r.compile(code)
	if err != nil {
		return nil, err
	}

	result := processing.NewSubstitutionResult()
	var convErr error
	// alive unwinds the VM once ctx has ended; vm.Run turns the panic into an error.
	alive := func() {
		if err := ctx.Err(); err != nil {
			panic(err)
		}
	}
	add := func(key string, value any, strategy string, expand bool) bool {
		alive()
		v, err := jsonval.FromAny(value)
		if err != nil {
			convErr = errors.Join(convErr, fmt.Errorf("%s: %w", key, err))
			return false
		}
		s := mapping.RepairStrategy(strategy)
		if !s.Valid() {
			convErr = errors.Join(convErr, fmt.Errorf("%s: unknown repair strategy %q", key, strategy))
			return false
		}
		result.AddSubstitution(key, v, s, expand)
		return true
	}
	e := env{
		Payload:                 sc.Payload.ToAny(),
		Topic:                   sc.Topic,
		TopicLevels:             processing.TopicLevels(sc.Topic),
		GenericDeviceIdentifier: sc.GenericDeviceIdentifier,
		ExternalIdentifier:      func() string { alive(); return sc.ExternalIdentifier() },
		C8YIdentifier:           func() string { alive(); return sc.C8YIdentifier() },
		AddSubstitution:         add,
		Add:                     func(key string, value any) bool { return add(key, value, "", false) },
		AddError:                func(msg string) bool { alive(); result.AddError(msg); return true },
	}

	type outcome struct {
		out any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		machine := vm.VM{MemoryBudget: memoryBudget}
		out, err := machine.Run(program, e)
		done <- outcome{out: out, err: err}
	}()

	var o outcome
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o = <-done:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.err != nil {
		return nil, fmt.Errorf("program failed: %w", o.err)
	}
	if m, ok := o.out.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(k, m[k], "", false)
		}
	}
	if convErr != nil {
		result.AddError(convErr.Error())
	}
	return result, nil
}

func (r *Runner) compile(code string) (*vm.Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.cache.Get(code); ok {
		return p.(*vm.Program), nil
	}
	p, err := expr.Compile(code, expr.Env(env{}), expr.MaxNodes(maxNodes))
	if err != nil {
		return nil, fmt.Errorf("compile program: %w", err)
	}
	r.cache.Add(code, p)
	return p, nil
}
