package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

// ErrInvalidMapping wraps validation failures of a submitted mapping.
var ErrInvalidMapping = errors.New("invalid mapping")

// SaveMappingUseCase validates and persists a mapping.
type SaveMappingUseCase struct {
	repo   mapping.Repository
	clock  ports.Clock
	logger ports.Logger
}

// NewSaveMappingUseCase creates a new use case.
func NewSaveMappingUseCase(repo mapping.Repository, clock ports.Clock, logger ports.Logger) *SaveMappingUseCase {
	return &SaveMappingUseCase{
		repo:   repo,
		clock:  clock,
		logger: logger,
	}
}

// Execute stores m. With id == "" the mapping is created and must not exist yet;
// a missing m.ID is generated. Otherwise the mapping with that id is replaced
// and m.ID must match or be empty.
func (uc *SaveMappingUseCase) Execute(ctx context.Context, id string, m *mapping.Mapping) (*mapping.Mapping, error) {
	m = m.Clone()
	if id != "" {
		if m.ID == "" {
			m.ID = id
		}
		if m.ID != id {
			return nil, fmt.Errorf("%w: id %q does not match %q", ErrInvalidMapping, m.ID, id)
		}
		existing, err := uc.repo.LoadByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to find mapping %q: %w", id, err)
		}
		m.SourceFile = existing.SourceFile
		m.SourceIndex = existing.SourceIndex
	} else if m.ID != "" {
		if _, err := uc.repo.LoadByID(ctx, m.ID); err == nil {
			return nil, fmt.Errorf("%w: mapping %q already exists", ErrInvalidMapping, m.ID)
		}
	} else {
		m.ID = uuid.NewString()
	}

	if m.Identifier == "" {
		m.Identifier = m.ID
	}
	if m.TransformationType == "" {
		m.TransformationType = mapping.TransformationDefault
	}
	if err := validate(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	m.LastUpdate = uc.clock.Now().UnixMilli()

	if err := uc.repo.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save mapping %q: %w", m.ID, err)
	}
	if id == "" {
		uc.logger.Info("mapping created", "id", m.ID)
	} else {
		uc.logger.Info("mapping updated", "id", m.ID)
	}
	return m, nil
}
