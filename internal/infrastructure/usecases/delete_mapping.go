package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

// DeleteMappingUseCase removes a mapping from its source file.
type DeleteMappingUseCase struct {
	repo   mapping.Repository
	logger ports.Logger
}

// NewDeleteMappingUseCase creates a new use case.
func NewDeleteMappingUseCase(repo mapping.Repository, logger ports.Logger) *DeleteMappingUseCase {
	return &DeleteMappingUseCase{
		repo:   repo,
		logger: logger,
	}
}

// Execute removes the mapping with the given ID.
func (uc *DeleteMappingUseCase) Execute(ctx context.Context, id string) error {
	if _, err := uc.repo.LoadByID(ctx, id); err != nil {
		return fmt.Errorf("failed to find mapping %q: %w", id, err)
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete mapping %q: %w", id, err)
	}
	uc.logger.Info("mapping deleted", "id", id)
	return nil
}
