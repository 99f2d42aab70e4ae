package expression

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/processing"
)

// maxNodes caps the size of a compiled expression.
const maxNodes = 2000

var _ processing.Evaluator = (*Expr)(nil)

// Expr evaluates expressions in the Expr language. The payload is reachable as
// "payload" and its top-level fields are also bound directly, so both
// payload.temp and temp work.
type Expr struct {
	cache *programCache
}

// NewExpr creates an evaluator caching up to cacheSize compiled programs.
func NewExpr(cacheSize int) *Expr {
	return &Expr{cache: newProgramCache(cacheSize)}
}

func (e *Expr) Evaluate(ctx context.Context, doc *jsonval.Value, expression string) (*jsonval.Value, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, ErrEmptyExpression
	}
	compiled, err := e.cache.get(expression, compileExpr)
	if err != nil {
		return nil, err
	}
	program := compiled.(*vm.Program)

	env := exprEnv(doc)
	res, err := runBounded(ctx, func() (any, error) { return expr.Run(program, env) })
	if err != nil {
		return nil, err
	}
	return jsonval.FromAny(res)
}

func compileExpr(expression string) (any, error) {
	program, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
		expr.MaxNodes(maxNodes),
		expr.Function("uuid", func(...any) (any, error) { return uuid.NewString(), nil }, new(func() string)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrCompile, expression, err)
	}
	return program, nil
}

func exprEnv(doc *jsonval.Value) map[string]any {
	env := make(map[string]any, doc.Len()+1)
	if m, ok := doc.ToAny().(map[string]any); ok {
		for k, v := range m {
			env[k] = v
		}
	}
	env["payload"] = doc.ToAny()
	return env
}
