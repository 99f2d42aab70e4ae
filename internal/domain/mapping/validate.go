package mapping

import (
	"errors"
	"fmt"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
)

// Validate checks structural consistency of a mapping definition.
// It does not check identifier cardinality, which is a soft condition.
func Validate(m *Mapping) error {
	var errs []error
	if m.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	switch m.Direction {
	case Inbound, Outbound:
	default:
		errs = append(errs, fmt.Errorf("unknown direction %q", m.Direction))
	}
	if _, err := ParseAPI(string(m.TargetAPI)); err != nil {
		errs = append(errs, err)
	}
	if m.TargetTemplate != "" {
		if _, err := jsonval.Parse([]byte(m.TargetTemplate)); err != nil {
			errs = append(errs, fmt.Errorf("targetTemplate: %w", err))
		}
	}
	for i, sub := range m.Substitutions {
		if !sub.RepairStrategy.Valid() {
			errs = append(errs, fmt.Errorf("substitution %d: unknown repair strategy %q", i, sub.RepairStrategy))
		}
		if sub.PathTarget == "" {
			errs = append(errs, fmt.Errorf("substitution %d: pathTarget is required", i))
		}
	}
	return errors.Join(errs...)
}
