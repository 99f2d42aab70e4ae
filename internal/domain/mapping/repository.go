package mapping

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a mapping or template does not exist.
var ErrNotFound = errors.New("not found")

// Repository loads and persists mappings and their supporting definitions.
type Repository interface {
	LoadAll(ctx context.Context) ([]*Mapping, error)
	LoadByID(ctx context.Context, id string) (*Mapping, error)
	Save(ctx context.Context, m *Mapping) error
	Delete(ctx context.Context, id string) error
	// CodeTemplates returns templates keyed by id with their code decoded.
	CodeTemplates(ctx context.Context) (map[string]CodeTemplate, error)
	ServiceConfiguration(ctx context.Context) (ServiceConfiguration, error)
}
