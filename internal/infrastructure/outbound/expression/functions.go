package expression

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/gval"
	"github.com/google/uuid"
)

// fnPrefix namespaces library functions so they never shadow payload fields.
const fnPrefix = "fn_"

type libFunc func(args ...any) (any, error)

// library holds the $-functions available to JSONata style expressions.
var library = map[string]libFunc{
	"number":    fnNumber,
	"string":    fnString,
	"boolean":   fnBoolean,
	"not":       fnNot,
	"exists":    fnExists,
	"count":     fnCount,
	"sum":       fnSum,
	"max":       fnMax,
	"min":       fnMin,
	"average":   fnAverage,
	"round":     fnRound,
	"abs":       fnAbs,
	"length":    fnLength,
	"join":      fnJoin,
	"split":     fnSplit,
	"uppercase": fnUppercase,
	"lowercase": fnLowercase,
	"trim":      fnTrim,
	"substring": fnSubstring,
	"contains":  fnContains,
	"now":       fnNow,
	"millis":    fnMillis,
	"uuid":      fnUUID,
	"toJSON":    fnToJSON,
}

func libraryLanguage() gval.Language {
	langs := make([]gval.Language, 0, len(library))
	for name, fn := range library {
		langs = append(langs, gval.Function(fnPrefix+name, func(args ...any) (any, error) { return fn(args...) }))
	}
	return gval.NewLanguage(langs...)
}

func arity(name string, args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return fmt.Errorf("$%s expects %d argument(s), got %d", name, min, len(args))
		}
		return fmt.Errorf("$%s expects %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// asSlice treats a scalar as a one element sequence, as JSONata does.
func asSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	}
	return []any{v}
}

func numbers(name string, v any) ([]float64, error) {
	items := asSlice(v)
	out := make([]float64, 0, len(items))
	for _, it := range items {
		f, ok := toFloat(it)
		if !ok {
			return nil, fmt.Errorf("$%s: %v is not a number", name, it)
		}
		out = append(out, f)
	}
	return out, nil
}

func fnNumber(args ...any) (any, error) {
	if err := arity("number", args, 1, 1); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return nil, nil
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("$number: cannot convert %v", args[0])
	}
	return f, nil
}

func fnString(args ...any) (any, error) {
	if err := arity("string", args, 1, 1); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return nil, nil
	}
	return toText(args[0]), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		for _, it := range t {
			if truthy(it) {
				return true
			}
		}
		return false
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func fnBoolean(args ...any) (any, error) {
	if err := arity("boolean", args, 1, 1); err != nil {
		return nil, err
	}
	return truthy(args[0]), nil
}

func fnNot(args ...any) (any, error) {
	if err := arity("not", args, 1, 1); err != nil {
		return nil, err
	}
	return !truthy(args[0]), nil
}

func fnExists(args ...any) (any, error) {
	if err := arity("exists", args, 1, 1); err != nil {
		return nil, err
	}
	return args[0] != nil, nil
}

func fnCount(args ...any) (any, error) {
	if err := arity("count", args, 1, 1); err != nil {
		return nil, err
	}
	return float64(len(asSlice(args[0]))), nil
}

func fnSum(args ...any) (any, error) {
	if err := arity("sum", args, 1, 1); err != nil {
		return nil, err
	}
	nums, err := numbers("sum", args[0])
	if err != nil {
		return nil, err
	}
	var s float64
	for _, n := range nums {
		s += n
	}
	return s, nil
}

func extreme(name string, args []any, better func(a, b float64) bool) (any, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	nums, err := numbers(name, args[0])
	if err != nil || len(nums) == 0 {
		return nil, err
	}
	best := nums[0]
	for _, n := range nums[1:] {
		if better(n, best) {
			best = n
		}
	}
	return best, nil
}

func fnMax(args ...any) (any, error) {
	return extreme("max", args, func(a, b float64) bool { return a > b })
}

func fnMin(args ...any) (any, error) {
	return extreme("min", args, func(a, b float64) bool { return a < b })
}

func fnAverage(args ...any) (any, error) {
	if err := arity("average", args, 1, 1); err != nil {
		return nil, err
	}
	nums, err := numbers("average", args[0])
	if err != nil || len(nums) == 0 {
		return nil, err
	}
	var s float64
	for _, n := range nums {
		s += n
	}
	return s / float64(len(nums)), nil
}

func fnRound(args ...any) (any, error) {
	if err := arity("round", args, 1, 2); err != nil {
		return nil, err
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("$round: %v is not a number", args[0])
	}
	precision := 0.0
	if len(args) == 2 {
		precision, _ = toFloat(args[1])
	}
	scale := math.Pow(10, precision)
	return math.RoundToEven(f*scale) / scale, nil
}

func fnAbs(args ...any) (any, error) {
	if err := arity("abs", args, 1, 1); err != nil {
		return nil, err
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("$abs: %v is not a number", args[0])
	}
	return math.Abs(f), nil
}

func fnLength(args ...any) (any, error) {
	if err := arity("length", args, 1, 1); err != nil {
		return nil, err
	}
	return float64(len([]rune(toText(args[0])))), nil
}

func fnJoin(args ...any) (any, error) {
	if err := arity("join", args, 1, 2); err != nil {
		return nil, err
	}
	sep := ""
	if len(args) == 2 {
		sep = toText(args[1])
	}
	items := asSlice(args[0])
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = toText(it)
	}
	return strings.Join(parts, sep), nil
}

func fnSplit(args ...any) (any, error) {
	if err := arity("split", args, 2, 2); err != nil {
		return nil, err
	}
	parts := strings.Split(toText(args[0]), toText(args[1]))
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func fnUppercase(args ...any) (any, error) {
	if err := arity("uppercase", args, 1, 1); err != nil {
		return nil, err
	}
	return strings.ToUpper(toText(args[0])), nil
}

func fnLowercase(args ...any) (any, error) {
	if err := arity("lowercase", args, 1, 1); err != nil {
		return nil, err
	}
	return strings.ToLower(toText(args[0])), nil
}

func fnTrim(args ...any) (any, error) {
	if err := arity("trim", args, 1, 1); err != nil {
		return nil, err
	}
	return strings.Join(strings.Fields(toText(args[0])), " "), nil
}

func fnSubstring(args ...any) (any, error) {
	if err := arity("substring", args, 2, 3); err != nil {
		return nil, err
	}
	r := []rune(toText(args[0]))
	start, _ := toFloat(args[1])
	s := int(start)
	if s < 0 {
		s += len(r)
	}
	s = max(0, min(s, len(r)))
	e := len(r)
	if len(args) == 3 {
		n, _ := toFloat(args[2])
		e = min(len(r), s+max(0, int(n)))
	}
	return string(r[s:e]), nil
}

func fnContains(args ...any) (any, error) {
	if err := arity("contains", args, 2, 2); err != nil {
		return nil, err
	}
	return strings.Contains(toText(args[0]), toText(args[1])), nil
}

// now is swappable in tests.
var now = time.Now

func fnNow(args ...any) (any, error) {
	if err := arity("now", args, 0, 0); err != nil {
		return nil, err
	}
	return now().UTC().Format("2006-01-02T15:04:05.000Z07:00"), nil
}

func fnMillis(args ...any) (any, error) {
	if err := arity("millis", args, 0, 0); err != nil {
		return nil, err
	}
	return float64(now().UnixMilli()), nil
}

func fnUUID(args ...any) (any, error) {
	if err := arity("uuid", args, 0, 0); err != nil {
		return nil, err
	}
	return uuid.NewString(), nil
}

func fnToJSON(args ...any) (any, error) {
	if err := arity("toJSON", args, 1, 1); err != nil {
		return nil, err
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
