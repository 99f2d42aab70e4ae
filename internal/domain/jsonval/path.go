package jsonval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPath is returned for syntactically malformed paths.
	ErrInvalidPath = errors.New("invalid path")
	// ErrPathNotFound is returned when an intermediate container is absent.
	ErrPathNotFound = errors.New("path not found")
)

// Segment is one step of a Path: either an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path is a parsed dotted/bracket path. The empty Path denotes the root.
type Path []Segment

func (p Path) String() string {
	var b strings.Builder
	b.WriteString("$")
	for _, s := range p {
		if !s.IsIndex {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// ParsePath parses paths such as "c8y_Temp.value", "$.a[0].b", `a["x.y"]` or "$".
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "$":
		return Path{}, nil
	case strings.HasPrefix(s, "$."):
		s = s[2:]
	case strings.HasPrefix(s, "$["):
		s = s[1:]
	}

	var p Path
	i := 0
	expectKey := true
	for i < len(s) {
		switch s[i] {
		case '.':
			if expectKey {
				return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, s)
			}
			expectKey = true
			i++
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed bracket in %q", ErrInvalidPath, s)
			}
			inner := strings.TrimSpace(s[i+1 : i+end])
			seg, err := bracketSegment(inner)
			if err != nil {
				return nil, fmt.Errorf("%w: %v in %q", ErrInvalidPath, err, s)
			}
			p = append(p, seg)
			i += end + 1
			expectKey = false
		default:
			if !expectKey {
				return nil, fmt.Errorf("%w: missing separator at %d in %q", ErrInvalidPath, i, s)
			}
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			p = append(p, Segment{Key: s[i:j]})
			i = j
			expectKey = false
		}
	}
	if expectKey && len(p) > 0 {
		return nil, fmt.Errorf("%w: trailing separator in %q", ErrInvalidPath, s)
	}
	return p, nil
}

func bracketSegment(inner string) (Segment, error) {
	if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
		return Segment{Key: inner[1 : len(inner)-1]}, nil
	}
	n, err := strconv.Atoi(inner)
	if err != nil || n < 0 {
		return Segment{}, fmt.Errorf("bad index %q", inner)
	}
	return Segment{Index: n, IsIndex: true}, nil
}

// arrayIndex reports the index a segment addresses when applied to an array.
// Numeric keys ("a.0.b") address array items as well.
func (s Segment) arrayIndex() (int, bool) {
	if s.IsIndex {
		return s.Index, true
	}
	n, err := strconv.Atoi(s.Key)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s Segment) objectKey() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Key
}

func child(cur *Value, seg Segment) (*Value, bool) {
	switch cur.Kind() {
	case KindObject:
		return cur.Get(seg.objectKey())
	case KindArray:
		i, ok := seg.arrayIndex()
		if !ok || i >= len(cur.items) {
			return nil, false
		}
		return cur.items[i], true
	}
	return nil, false
}

// store puts val under seg in cur. pad allows growing arrays past their end.
func store(cur *Value, seg Segment, val *Value, pad bool) bool {
	switch cur.Kind() {
	case KindObject:
		cur.Put(seg.objectKey(), val)
		return true
	case KindArray:
		i, ok := seg.arrayIndex()
		if !ok {
			return false
		}
		if i < len(cur.items) {
			cur.items[i] = orNull(val)
			return true
		}
		if !pad && i > len(cur.items) {
			return false
		}
		for len(cur.items) < i {
			cur.items = append(cur.items, Null())
		}
		cur.items = append(cur.items, orNull(val))
		return true
	}
	return false
}

func containerFor(next Segment) *Value {
	if next.IsIndex {
		return Array()
	}
	return Object()
}

// walkParent descends to the container holding the last segment of p.
func walkParent(root *Value, p Path, create bool) (*Value, error) {
	cur := root
	for i, seg := range p[:len(p)-1] {
		next, ok := child(cur, seg)
		if !ok || (next.Kind() != KindObject && next.Kind() != KindArray) {
			if !create {
				return nil, fmt.Errorf("%w: %s", ErrPathNotFound, p[:i+1])
			}
			next = containerFor(p[i+1])
			if !store(cur, seg, next, true) {
				return nil, fmt.Errorf("%w: cannot create %s", ErrPathNotFound, p[:i+1])
			}
		}
		cur = next
	}
	return cur, nil
}

// Lookup returns the value at path in root.
func Lookup(root *Value, path string) (*Value, bool) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return LookupPath(root, p)
}

// LookupPath is Lookup for a parsed path.
func LookupPath(root *Value, p Path) (*Value, bool) {
	cur := root
	for _, seg := range p {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

// Set stores val at path. With create, missing intermediate containers are created;
// otherwise ErrPathNotFound is returned when one is absent.
func Set(root *Value, path string, val *Value, create bool) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	return SetPath(root, p, val, create)
}

// SetPath is Set for a parsed path.
func SetPath(root *Value, p Path, val *Value, create bool) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: cannot replace the root value", ErrInvalidPath)
	}
	parent, err := walkParent(root, p, create)
	if err != nil {
		return err
	}
	if !store(parent, p[len(p)-1], val, create) {
		return fmt.Errorf("%w: %s", ErrPathNotFound, p)
	}
	return nil
}

// EnsureParents creates every missing container above the last segment of path.
func EnsureParents(root *Value, path string) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	_, err = walkParent(root, p, true)
	return err
}

// Delete removes the value at path and reports whether anything was removed.
func Delete(root *Value, path string) bool {
	p, err := ParsePath(path)
	if err != nil || len(p) == 0 {
		return false
	}
	parent, err := walkParent(root, p, false)
	if err != nil {
		return false
	}
	last := p[len(p)-1]
	switch parent.Kind() {
	case KindObject:
		return parent.Remove(last.objectKey())
	case KindArray:
		i, ok := last.arrayIndex()
		if !ok || i >= len(parent.items) {
			return false
		}
		parent.items = append(parent.items[:i], parent.items[i+1:]...)
		return true
	}
	return false
}
