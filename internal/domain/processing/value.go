// Package processing implements the transformation pipeline stages: extraction,
// repair, assembly and request building.
package processing

import (
	"strconv"
	"strings"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// ValueType classifies an extracted value.
type ValueType string

const (
	TypeArray   ValueType = "ARRAY"
	TypeIgnore  ValueType = "IGNORE"
	TypeNumber  ValueType = "NUMBER"
	TypeObject  ValueType = "OBJECT"
	TypeTextual ValueType = "TEXTUAL"
)

// Classify derives the ValueType from the JSON kind. Missing and null values are
// IGNORE; booleans are placed verbatim and classify as OBJECT.
func Classify(v *jsonval.Value) ValueType {
	switch v.Kind() {
	case jsonval.KindArray:
		return TypeArray
	case jsonval.KindNumber:
		return TypeNumber
	case jsonval.KindString:
		return TypeTextual
	case jsonval.KindObject, jsonval.KindBool:
		return TypeObject
	default:
		return TypeIgnore
	}
}

// SubstituteValue is one extracted value waiting to be placed into a target.
type SubstituteValue struct {
	Value          *jsonval.Value         `json:"value"`
	Type           ValueType              `json:"type"`
	RepairStrategy mapping.RepairStrategy `json:"repairStrategy"`
	ExpandArray    bool                   `json:"expandArray"`
}

// NewSubstituteValue wraps an evaluation result with the substitution's policy.
func NewSubstituteValue(v *jsonval.Value, strategy mapping.RepairStrategy, expand bool) SubstituteValue {
	if strategy == "" {
		strategy = mapping.RepairDefault
	}
	return SubstituteValue{Value: v, Type: Classify(v), RepairStrategy: strategy, ExpandArray: expand}
}

// Clone deep-copies the wrapped value.
func (sv SubstituteValue) Clone() SubstituteValue {
	if sv.Value != nil {
		sv.Value = sv.Value.Clone()
	}
	return sv
}

// Missing reports whether the value is absent or JSON null.
func (sv SubstituteValue) Missing() bool {
	return sv.Value.IsNull()
}

// IsExpandable reports whether the value fans out into one target per item.
func (sv SubstituteValue) IsExpandable() bool {
	return sv.ExpandArray && sv.Value.Kind() == jsonval.KindArray
}

// Typed coerces the value to its declared type: numeric strings become numbers
// for NUMBER, scalars become strings for TEXTUAL. Anything else passes through.
func (sv SubstituteValue) Typed() *jsonval.Value {
	switch sv.Type {
	case TypeNumber:
		if s, ok := sv.Value.Str(); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return jsonval.Number(f)
			}
		}
	case TypeTextual:
		switch sv.Value.Kind() {
		case jsonval.KindNumber, jsonval.KindBool:
			return jsonval.String(sv.Value.Text())
		}
	}
	return sv.Value
}
