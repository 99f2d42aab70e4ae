// Package clock supplies wall-clock time to the processing pipeline.
package clock

import (
	"time"

	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

var _ ports.Clock = UTC{}

// UTC reads the system clock in UTC, so generated timestamps carry a Z offset.
type UTC struct{}

// New returns the system clock.
func New() UTC { return UTC{} }

func (UTC) Now() time.Time { return time.Now().UTC() }
