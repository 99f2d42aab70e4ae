package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
	"github.com/sophialabs/mapforge/internal/infrastructure/services"
)

// LoadMappingsUseCase loads all mappings, validates them, and builds an index.
type LoadMappingsUseCase struct {
	repo   mapping.Repository
	logger ports.Logger
}

// NewLoadMappingsUseCase creates a new use case.
func NewLoadMappingsUseCase(repo mapping.Repository, logger ports.Logger) *LoadMappingsUseCase {
	return &LoadMappingsUseCase{
		repo:   repo,
		logger: logger,
	}
}

// Execute loads, validates, and returns the built index. Invalid mappings are
// logged and left out; duplicate ids fail the whole load.
func (uc *LoadMappingsUseCase) Execute(ctx context.Context) (*services.MappingIndex, error) {
	mappings, err := uc.repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load mappings: %w", err)
	}

	uc.logger.Info("loaded mappings from repository", "count", len(mappings))

	ids := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		if ids[m.ID] {
			return nil, fmt.Errorf("duplicate mapping ID: %q", m.ID)
		}
		ids[m.ID] = true
	}

	index := services.NewMappingIndex()
	invalid := 0
	for _, m := range mappings {
		if err := validate(m); err != nil {
			invalid++
			uc.logger.Warn("invalid mapping", "id", m.ID, "file", m.SourceFile, "error", err)
			continue
		}
		index.Add(m)
		uc.logger.Debug("indexed mapping", "id", m.ID, "direction", m.Direction, "topic", m.MappingTopic, "active", m.Active)
	}

	if invalid > 0 {
		uc.logger.Warn("some mappings failed validation", "errors", invalid)
	}

	index.Build()

	uc.logger.Info("mapping index built", "mappings", index.Len(), "topics", len(index.Topics()))

	return index, nil
}

// ServiceConfiguration reads the runtime settings from the store.
func (uc *LoadMappingsUseCase) ServiceConfiguration(ctx context.Context) (mapping.ServiceConfiguration, error) {
	cfg, err := uc.repo.ServiceConfiguration(ctx)
	if err != nil {
		return mapping.ServiceConfiguration{}, fmt.Errorf("failed to load service configuration: %w", err)
	}
	return cfg, nil
}

func validate(m *mapping.Mapping) error {
	if err := mapping.Validate(m); err != nil {
		return err
	}
	return services.ValidateXPath(m)
}
