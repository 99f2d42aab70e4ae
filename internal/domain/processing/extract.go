package processing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// Evaluator evaluates an expression against a JSON document. Implementations must
// honour ctx cancellation and must not panic.
type Evaluator interface {
	Evaluate(ctx context.Context, doc *jsonval.Value, expression string) (*jsonval.Value, error)
}

// SubstitutionContext is the read-only view a mapping program receives.
type SubstitutionContext struct {
	GenericDeviceIdentifier string
	Topic                   string
	Payload                 *jsonval.Value
}

// ExternalIdentifier returns the external id carried by the payload, if any.
func (sc SubstitutionContext) ExternalIdentifier() string {
	if v, ok := jsonval.Lookup(sc.Payload, mapping.IdentityExternalID); ok && !v.IsNull() {
		return v.Text()
	}
	return ""
}

// C8YIdentifier returns the platform id carried by the payload, if any.
func (sc SubstitutionContext) C8YIdentifier() string {
	if v, ok := jsonval.Lookup(sc.Payload, mapping.IdentityC8YSource); ok && !v.IsNull() {
		return v.Text()
	}
	return ""
}

// SubstitutionResult collects what a mapping program produced.
type SubstitutionResult struct {
	cache  *Cache
	errors []string
}

// NewSubstitutionResult returns an empty result.
func NewSubstitutionResult() *SubstitutionResult {
	return &SubstitutionResult{cache: NewCache()}
}

// AddSubstitution appends a value for key.
func (r *SubstitutionResult) AddSubstitution(key string, v *jsonval.Value, strategy mapping.RepairStrategy, expand bool) {
	r.cache.Add(key, NewSubstituteValue(v, strategy, expand))
}

// AddError records a program-reported error.
func (r *SubstitutionResult) AddError(msg string) {
	r.errors = append(r.errors, msg)
}

// Cache returns the collected substitutions.
func (r *SubstitutionResult) Cache() *Cache { return r.cache }

// Errors returns the collected error messages.
func (r *SubstitutionResult) Errors() []string { return r.errors }

// CodeRunner executes a mapping program in a sandbox. The runner owns the result
// until it returns.
type CodeRunner interface {
	Run(ctx context.Context, code string, sc SubstitutionContext) (*SubstitutionResult, error)
}

// Extractor runs the substitutions of a mapping against a source payload.
type Extractor struct {
	evaluator Evaluator
	code      CodeRunner
	budget    time.Duration
}

// NewExtractor creates an extractor. budget bounds every evaluator and program call;
// zero disables the bound.
func NewExtractor(evaluator Evaluator, code CodeRunner, budget time.Duration) *Extractor {
	return &Extractor{evaluator: evaluator, code: code, budget: budget}
}

// WithBudget returns a copy of e using a different time budget.
func (e *Extractor) WithBudget(budget time.Duration) *Extractor {
	c := *e
	c.budget = budget
	return &c
}

// Filter evaluates the mapping's filter expression. An empty filter passes.
func (e *Extractor) Filter(ctx context.Context, m *mapping.Mapping, payload *jsonval.Value) (bool, error) {
	if m.FilterMapping == "" {
		return true, nil
	}
	res, err := e.evaluate(ctx, payload, m.FilterMapping)
	if err != nil {
		return false, &ExtractionError{Index: -1, Err: fmt.Errorf("filter %q: %w", m.FilterMapping, err)}
	}
	b, ok := res.BoolValue()
	if !ok {
		return false, &ExtractionError{Index: -1, Err: fmt.Errorf("filter %q: %w: expected boolean, got %s", m.FilterMapping, ErrTypeMismatch, res.Kind())}
	}
	return b, nil
}

// Extract populates a new cache from payload. Failures are returned per
// substitution; the cache holds everything that could be extracted.
func (e *Extractor) Extract(ctx context.Context, m *mapping.Mapping, topic string, payload *jsonval.Value) (*Cache, []error) {
	if m.UsesCode() {
		return e.extractFromCode(ctx, m, topic, payload)
	}

	switch m.TransformationType {
	case mapping.TransformationSmartFunction, mapping.TransformationExtensionJava:
		return NewCache(), []error{&ExtractionError{Index: -1, Err: fmt.Errorf("%w: transformation %s", ErrUnsupported, m.TransformationType)}}
	}

	cache := NewCache()
	var errs []error
	for i, sub := range m.Substitutions {
		source := sub.PathSource
		if m.Direction == mapping.Outbound {
			source = mapping.TransformGenericPathToAPIPath(m, source)
		}
		res, err := e.evaluate(ctx, payload, source)
		if err != nil {
			errs = append(errs, &ExtractionError{Index: i, Substitution: sub, Err: err})
			continue
		}
		cache.Add(sub.PathTarget, NewSubstituteValue(res, sub.RepairStrategy, sub.ExpandArray))
	}
	return cache, errs
}

func (e *Extractor) extractFromCode(ctx context.Context, m *mapping.Mapping, topic string, payload *jsonval.Value) (*Cache, []error) {
	if e.code == nil {
		return NewCache(), []error{&ExtractionError{Index: -1, Err: fmt.Errorf("%w: no code runner configured", ErrUnsupported)}}
	}
	code := mapping.DecodeCode(m.Code)
	if code == "" {
		return NewCache(), []error{&ExtractionError{Index: -1, Err: errors.New("mapping has no code")}}
	}

	runCtx, cancel := e.withBudget(ctx)
	defer cancel()
	result, err := e.code.Run(runCtx, code, SubstitutionContext{
		GenericDeviceIdentifier: mapping.GenericDeviceIdentifier(m),
		Topic:                   topic,
		Payload:                 payload,
	})
	if err != nil {
		return NewCache(), []error{&ExtractionError{Index: -1, Err: asTimeout(err)}}
	}

	var errs []error
	for _, msg := range result.Errors() {
		errs = append(errs, &ExtractionError{Index: -1, Err: errors.New(msg)})
	}
	return result.Cache(), errs
}

func (e *Extractor) evaluate(ctx context.Context, doc *jsonval.Value, expression string) (res *jsonval.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("evaluator panic: %v", r)
		}
	}()
	evalCtx, cancel := e.withBudget(ctx)
	defer cancel()
	res, err = e.evaluator.Evaluate(evalCtx, doc, expression)
	if err != nil {
		return nil, asTimeout(err)
	}
	if res == nil {
		res = jsonval.Null()
	}
	return res, nil
}

func (e *Extractor) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	return WithBudget(ctx, e.budget)
}

// WithBudget bounds ctx by budget when budget is positive.
func WithBudget(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}

func asTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// CheckIdentifiers reports whether the identifier cardinality rule holds. Code based
// mappings are checked against the produced cache instead of declarations.
func CheckIdentifiers(m *mapping.Mapping, cache *Cache, lenient bool) bool {
	if lenient {
		return true
	}
	if m.UsesCode() {
		return cache != nil && cache.Has(mapping.GenericDeviceIdentifier(m))
	}
	return mapping.IsSubstitutionValid(m)
}
