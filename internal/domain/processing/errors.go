package processing

import (
	"errors"
	"fmt"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

var (
	// ErrFanOutMismatch is returned when expanded entries disagree on their length.
	ErrFanOutMismatch = errors.New("fan-out mismatch")
	// ErrTimeout is returned when an evaluation or lookup exceeds its time budget.
	ErrTimeout = errors.New("time budget exceeded")
	// ErrReservedRepairCombination flags REMOVE_IF_MISSING_OR_NULL and
	// CREATE_IF_MISSING used together on one target path.
	ErrReservedRepairCombination = errors.New("reserved repair strategy combination")
	// ErrTypeMismatch is returned when an expression yields an unexpected type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnsupported is returned for mappings this engine cannot execute.
	ErrUnsupported = errors.New("unsupported mapping")
)

// ExtractionError records a failure for one substitution. Index is the position of
// the substitution in the mapping, or -1 for mapping level failures.
type ExtractionError struct {
	Index        int
	Substitution mapping.Substitution
	Err          error
}

func (e *ExtractionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("extraction: %v", e.Err)
	}
	return fmt.Sprintf("extraction of substitution %d (%s -> %s): %v",
		e.Index, e.Substitution.PathSource, e.Substitution.PathTarget, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PathError records a failure to place a value at a target path for one fan-out index.
type PathError struct {
	Path  string
	Index int
	Err   error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("payload %d, path %s: %v", e.Index, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// FanOutMismatchError names two expanded entries with different lengths.
type FanOutMismatchError struct {
	Path     string
	Length   int
	Other    string
	OtherLen int
}

func (e *FanOutMismatchError) Error() string {
	return fmt.Sprintf("%v: %s expands to %d values but %s expands to %d",
		ErrFanOutMismatch, e.Path, e.Length, e.Other, e.OtherLen)
}

func (e *FanOutMismatchError) Is(target error) bool { return target == ErrFanOutMismatch }
