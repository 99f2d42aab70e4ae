package expression

import (
	"strconv"
	"strings"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
)

// step is one location step of a plain path: a field name followed by any
// number of index predicates.
type step struct {
	name    string
	indexes []int
}

// plainPath recognises expressions that are a bare location path, such as
// "$.a.b", "items.id", "sensors[0].`AI-1`" or "sensors[0].'AI-1'", so they
// can be resolved on the ordered document directly. rootIdx holds predicates
// applied to the document itself ("$[0]").
func plainPath(expression string) (steps []step, rootIdx []int, ok bool) {
	src := []rune(expression)
	i := 0
	rooted := src[0] == '$'
	if rooted {
		i++
		if rootIdx, i, ok = indexes(src, i); !ok {
			return nil, nil, false
		}
		if i == len(src) {
			return nil, rootIdx, true
		}
		if src[i] != '.' {
			return nil, nil, false
		}
		i++
	}

	for first := true; ; first = false {
		var name string
		switch {
		case i < len(src) && isIdentStart(src[i]):
			name, i = ident(src, i)
			if first && !rooted && keywords[name] {
				return nil, nil, false
			}
		case i < len(src) && (src[i] == '`' || ((src[i] == '\'' || src[i] == '"') && (rooted || !first))):
			if name, i, ok = quoted(src, i); !ok {
				return nil, nil, false
			}
		default:
			return nil, nil, false
		}
		// a bare name followed by "(" is a function call
		if i < len(src) && src[i] == '(' {
			return nil, nil, false
		}
		s := step{name: name}
		if s.indexes, i, ok = indexes(src, i); !ok {
			return nil, nil, false
		}
		steps = append(steps, s)
		if i == len(src) {
			return steps, rootIdx, true
		}
		if src[i] != '.' {
			return nil, nil, false
		}
		i++
	}
}

// indexes reads consecutive non-negative "[n]" predicates starting at i.
func indexes(src []rune, i int) ([]int, int, bool) {
	var out []int
	for i < len(src) && src[i] == '[' {
		end := i + 1
		for end < len(src) && src[end] != ']' {
			end++
		}
		if end == len(src) {
			return nil, i, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(string(src[i+1 : end])))
		if err != nil || n < 0 {
			return nil, i, false
		}
		out = append(out, n)
		i = end + 1
	}
	return out, i, true
}

func quoted(src []rune, i int) (string, int, bool) {
	q := src[i]
	var b strings.Builder
	for j := i + 1; j < len(src); j++ {
		switch {
		case src[j] == '\\' && j+1 < len(src):
			j++
			b.WriteRune(src[j])
		case src[j] == q:
			return b.String(), j + 1, true
		default:
			b.WriteRune(src[j])
		}
	}
	return "", i, false
}

// selectPath navigates doc the way JSONata does: a field step over an array
// maps over its items and the results are flattened into one sequence, while
// index predicates select within the values each item produced. An empty
// sequence is reported as not found and a single value is returned as is.
func selectPath(doc *jsonval.Value, steps []step, rootIdx []int) (*jsonval.Value, bool) {
	seq := []*jsonval.Value{doc}
	if len(rootIdx) > 0 && doc.Kind() == jsonval.KindArray {
		seq = doc.Items()
	}
	seq = pick(seq, rootIdx)
	if len(steps) == 0 {
		return collapse(seq, nil)
	}

	var single *jsonval.Value
	for _, s := range steps {
		var next []*jsonval.Value
		var raw []*jsonval.Value
		for _, v := range seq {
			got := field(v, s.name, &raw)
			next = append(next, pick(got, s.indexes)...)
		}
		seq = next
		single = nil
		if len(raw) == 1 && len(s.indexes) == 0 && raw[0].Kind() == jsonval.KindArray {
			single = raw[0]
		}
	}
	return collapse(seq, single)
}

// field collects name from v, mapping over arrays. Each value found is
// recorded in raw before array values are flattened into the result.
func field(v *jsonval.Value, name string, raw *[]*jsonval.Value) []*jsonval.Value {
	switch v.Kind() {
	case jsonval.KindArray:
		var out []*jsonval.Value
		for _, item := range v.Items() {
			out = append(out, field(item, name, raw)...)
		}
		return out
	case jsonval.KindObject:
		got, ok := v.Get(name)
		if !ok {
			return nil
		}
		*raw = append(*raw, got)
		if got.Kind() == jsonval.KindArray {
			return got.Items()
		}
		return []*jsonval.Value{got}
	}
	return nil
}

// pick applies index predicates in turn; each selects one item of the sequence.
func pick(seq []*jsonval.Value, idx []int) []*jsonval.Value {
	for _, n := range idx {
		if n >= len(seq) {
			return nil
		}
		seq = seq[n : n+1]
	}
	return seq
}

// collapse turns a result sequence into a value. An array read from the
// document as a whole keeps its identity.
func collapse(seq []*jsonval.Value, whole *jsonval.Value) (*jsonval.Value, bool) {
	switch {
	case whole != nil:
		return whole.Clone(), true
	case len(seq) == 0:
		return nil, false
	case len(seq) == 1:
		return seq[0].Clone(), true
	}
	out := jsonval.Array()
	for _, v := range seq {
		out.Append(v.Clone())
	}
	return out, true
}
