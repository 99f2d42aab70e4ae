// Package expression evaluates substitution source expressions against JSON payloads.
package expression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/processing"
)

var (
	// ErrEmptyExpression is returned for blank expressions.
	ErrEmptyExpression = errors.New("empty expression")
	// ErrCompile is returned when an expression does not parse.
	ErrCompile = errors.New("invalid expression")
)

var _ processing.Evaluator = (*JSONata)(nil)

// JSONata evaluates the JSONata subset used by mappings: paths ($.a.b, a.b[0]),
// arithmetic, comparison, "and"/"or", "&" concatenation and $-functions such as
// $number or $join. Expressions are translated to gval with the JSONPath extension.
type JSONata struct {
	lang  gval.Language
	cache *programCache
}

// NewJSONata creates an evaluator caching up to cacheSize compiled expressions.
func NewJSONata(cacheSize int) *JSONata {
	return &JSONata{
		lang:  gval.Full(jsonpath.Language(), libraryLanguage()),
		cache: newProgramCache(cacheSize),
	}
}

// Evaluate runs expression against doc. Missing paths yield null.
func (j *JSONata) Evaluate(ctx context.Context, doc *jsonval.Value, expression string) (*jsonval.Value, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, ErrEmptyExpression
	}
	if steps, rootIdx, ok := plainPath(expression); ok {
		v, found := selectPath(doc, steps, rootIdx)
		if !found {
			return jsonval.Null(), nil
		}
		return v, nil
	}

	compiled, err := j.cache.get(expression, j.compile)
	if err != nil {
		return nil, err
	}
	eval := compiled.(gval.Evaluable)

	data := doc.ToAny()
	res, err := runBounded(ctx, func() (any, error) { return eval(ctx, data) })
	if err != nil {
		if isMissing(err) {
			return jsonval.Null(), nil
		}
		return nil, err
	}
	return jsonval.FromAny(res)
}

func (j *JSONata) compile(expression string) (any, error) {
	eval, err := j.lang.NewEvaluable(translate(expression))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrCompile, expression, err)
	}
	return eval, nil
}

// runBounded runs fn on its own goroutine and gives up when ctx ends. A panic in
// fn is returned as an error. The bound applies to the caller only: fn is not
// interrupted and finishes in the background. Translated expressions contain
// no loops, so that takes no longer than a single pass over the document.
func runBounded(ctx context.Context, fn func() (any, error)) (any, error) {
	type outcome struct {
		v   any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("evaluation panic: %v", r)}
			}
		}()
		v, err := fn()
		done <- outcome{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		return o.v, o.err
	}
}

// isMissing reports JSONPath selection failures, which JSONata treats as undefined.
func isMissing(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unknown key") || strings.Contains(msg, "out of bounds")
}

var keywords = map[string]bool{"true": true, "false": true, "null": true, "and": true, "or": true, "in": true}

// translate rewrites JSONata operators and function calls into gval syntax.
// String literals are copied unchanged.
func translate(expression string) string {
	src := []rune(expression)
	var b strings.Builder
	var quote rune
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			b.WriteRune(c)
			if c == '\\' && i+1 < len(src) {
				i++
				b.WriteRune(src[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'' || c == '`':
			quote = c
			b.WriteRune(c)
		case c == '$' && i+1 < len(src) && isIdentStart(src[i+1]):
			name, end := ident(src, i+1)
			if _, ok := library[name]; ok && nextNonSpace(src, end) == '(' {
				b.WriteString(fnPrefix + name)
			} else {
				b.WriteRune('$')
				b.WriteString(name)
			}
			i = end - 1
		case isIdentStart(c):
			name, end := ident(src, i)
			member := i > 0 && src[i-1] == '.'
			switch {
			case !member && name == "and":
				b.WriteString("&&")
			case !member && name == "or":
				b.WriteString("||")
			default:
				b.WriteString(name)
			}
			i = end - 1
		case c == '=':
			prev := prevNonSpace(src, i)
			if prev == '!' || prev == '<' || prev == '>' || prev == '=' || (i+1 < len(src) && (src[i+1] == '=' || src[i+1] == '~')) {
				b.WriteRune(c)
			} else {
				b.WriteString("==")
			}
		case c == '&':
			if i+1 < len(src) && src[i+1] == '&' {
				b.WriteString("&&")
				i++
			} else {
				b.WriteRune('+')
			}
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

func isIdentStart(r rune) bool { return unicode.IsLetter(r) || r == '_' }

func ident(src []rune, start int) (string, int) {
	end := start
	for end < len(src) && (unicode.IsLetter(src[end]) || unicode.IsDigit(src[end]) || src[end] == '_') {
		end++
	}
	return string(src[start:end]), end
}

func nextNonSpace(src []rune, i int) rune {
	for ; i < len(src); i++ {
		if !unicode.IsSpace(src[i]) {
			return src[i]
		}
	}
	return 0
}

func prevNonSpace(src []rune, i int) rune {
	for i--; i >= 0; i-- {
		if !unicode.IsSpace(src[i]) {
			return src[i]
		}
	}
	return 0
}
