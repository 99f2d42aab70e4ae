package expression

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sophialabs/mapforge/internal/domain/processing"
)

// Engine names accepted by New.
const (
	EngineJSONata = "jsonata"
	EngineExpr    = "expr"
)

var engines = map[string]func(cacheSize int) processing.Evaluator{
	EngineJSONata: func(n int) processing.Evaluator { return NewJSONata(n) },
	EngineExpr:    func(n int) processing.Evaluator { return NewExpr(n) },
}

// New returns the evaluator registered under engine. An empty name selects jsonata.
func New(engine string, cacheSize int) (processing.Evaluator, error) {
	if engine == "" {
		engine = EngineJSONata
	}
	mk, ok := engines[strings.ToLower(engine)]
	if !ok {
		return nil, fmt.Errorf("unknown expression engine %q (supported: %s)", engine, strings.Join(Engines(), ", "))
	}
	return mk(cacheSize), nil
}

// Engines lists the registered engine names.
func Engines() []string {
	names := make([]string, 0, len(engines))
	for n := range engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
