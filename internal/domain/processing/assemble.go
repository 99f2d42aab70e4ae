package processing

import (
	"fmt"
	"strings"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// FanOut returns the number of target payloads the cache expands into. Entries
// holding an expandable array fan out by its length; keys holding several values
// fan out by their count. All fanning entries must agree.
func FanOut(cache *Cache) (int, error) {
	n, first := -1, ""
	for _, key := range cache.Keys() {
		length, fans := entryLength(cache.Get(key))
		if !fans {
			continue
		}
		if n < 0 {
			n, first = length, key
			continue
		}
		if length != n {
			return 0, &FanOutMismatchError{Path: first, Length: n, Other: key, OtherLen: length}
		}
	}
	if n < 0 {
		return 1, nil
	}
	return n, nil
}

func entryLength(values []SubstituteValue) (int, bool) {
	if len(values) == 1 {
		if values[0].IsExpandable() {
			return values[0].Value.Len(), true
		}
		return 1, false
	}
	return len(values), len(values) > 1
}

// Assemble expands the cache against template and returns one payload per fan-out
// index in increasing order. pathErrs holds non-fatal placement failures; err is
// only set for a fan-out mismatch, in which case no payloads are returned. Neither
// cache nor template is modified.
func Assemble(cache *Cache, template *jsonval.Value) (payloads []*jsonval.Value, pathErrs []error, err error) {
	n, err := FanOut(cache)
	if err != nil {
		return nil, nil, err
	}
	if template == nil {
		template = jsonval.Object()
	}

	order := cache.AssemblyOrder()
	reserved := make(map[string]bool)
	for _, key := range order {
		reserved[key] = hasReservedCombination(cache.Get(key))
	}

	payloads = make([]*jsonval.Value, 0, n)
	for i := 0; i < n; i++ {
		payload := template.Clone()
		for _, key := range order {
			values := cache.Get(key)
			sv := values[0]
			if len(values) > 1 {
				sv = values[i]
				sv.ExpandArray = false
			}
			if reserved[key] {
				pathErrs = append(pathErrs, &PathError{Path: key, Index: i, Err: ErrReservedRepairCombination})
			}
			if perr := place(payload, key, Repair(sv, i)); perr != nil {
				pathErrs = append(pathErrs, &PathError{Path: key, Index: i, Err: perr})
			}
		}
		payloads = append(payloads, payload)
	}
	return payloads, pathErrs, nil
}

func hasReservedCombination(values []SubstituteValue) bool {
	var remove, create bool
	for _, sv := range values {
		switch sv.RepairStrategy {
		case mapping.RepairRemoveIfMissingOrNull:
			remove = true
		case mapping.RepairCreateIfMissing:
			create = true
		}
	}
	return remove && create
}

func isRoot(path string) bool {
	return strings.TrimSpace(path) == "$"
}

// place applies one resolution to payload. Reserved fragments are always created.
func place(payload *jsonval.Value, path string, res Resolution) error {
	create := res.Action == ActionCreate || mapping.IsReservedPath(path)
	switch res.Action {
	case ActionSkip:
		return nil
	case ActionRemove:
		if !isRoot(path) {
			jsonval.Delete(payload, path)
		}
		return nil
	case ActionEnsure:
		return jsonval.EnsureParents(payload, path)
	}

	if isRoot(path) {
		if res.Value.Kind() != jsonval.KindObject {
			return fmt.Errorf("%w: only objects can be merged into the root, got %s", ErrTypeMismatch, res.Value.Kind())
		}
		for _, f := range res.Value.Fields() {
			payload.Put(f.Key, f.Value.Clone())
		}
		return nil
	}
	return jsonval.Set(payload, path, res.Value.Clone(), create)
}
