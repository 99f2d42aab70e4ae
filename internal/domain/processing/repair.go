package processing

import (
	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// Action is what assembly does with one value at one target path.
type Action int

const (
	// ActionSet places the value when the path's containers exist.
	ActionSet Action = iota
	// ActionCreate places the value, creating missing containers.
	ActionCreate
	// ActionEnsure creates missing containers without placing a value.
	ActionEnsure
	// ActionRemove deletes the path from the target.
	ActionRemove
	// ActionSkip leaves the target untouched.
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionSet:
		return "set"
	case ActionCreate:
		return "create"
	case ActionEnsure:
		return "ensure"
	case ActionRemove:
		return "remove"
	case ActionSkip:
		return "skip"
	}
	return "unknown"
}

// Resolution is the outcome of reconciling a value for one fan-out index.
type Resolution struct {
	Action Action
	Value  *jsonval.Value
}

// Repair reconciles sv into a single target slot for fan-out index i. It never
// mutates sv; the returned Value may share structure with it.
func Repair(sv SubstituteValue, i int) Resolution {
	v := sv.Value
	typ := sv.Type
	switch {
	case sv.IsExpandable():
		v = sv.Value.Index(i)
		typ = Classify(v)
	case sv.Value.Kind() == jsonval.KindArray:
		switch sv.RepairStrategy {
		case mapping.RepairUseFirstValueOfArray:
			v = sv.Value.Index(0)
			typ = Classify(v)
		case mapping.RepairUseLastValueOfArray:
			v = sv.Value.Index(sv.Value.Len() - 1)
			typ = Classify(v)
		case mapping.RepairIgnore:
			return Resolution{Action: ActionSkip}
		}
	}

	if v.IsNull() {
		switch sv.RepairStrategy {
		case mapping.RepairRemoveIfMissingOrNull:
			return Resolution{Action: ActionRemove}
		case mapping.RepairCreateIfMissing:
			return Resolution{Action: ActionEnsure}
		case mapping.RepairIgnore:
			return Resolution{Action: ActionSkip}
		}
		return Resolution{Action: ActionSet, Value: jsonval.Null()}
	}

	typed := SubstituteValue{Value: v, Type: typ}.Typed()
	if sv.RepairStrategy == mapping.RepairCreateIfMissing {
		return Resolution{Action: ActionCreate, Value: typed}
	}
	return Resolution{Action: ActionSet, Value: typed}
}
