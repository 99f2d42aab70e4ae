package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

// RenderTemplateUseCase instantiates a stored code template for a mapping.
type RenderTemplateUseCase struct {
	repo     mapping.Repository
	renderer ports.TemplateRenderer
}

// NewRenderTemplateUseCase creates a new use case.
func NewRenderTemplateUseCase(repo mapping.Repository, renderer ports.TemplateRenderer) *RenderTemplateUseCase {
	return &RenderTemplateUseCase{repo: repo, renderer: renderer}
}

// Execute renders template id. The mapping's fields are available as variables
// and vars are layered on top. m may be nil.
func (uc *RenderTemplateUseCase) Execute(ctx context.Context, id string, m *mapping.Mapping, vars map[string]any) (string, error) {
	templates, err := uc.repo.CodeTemplates(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load code templates: %w", err)
	}
	tpl, ok := templates[id]
	if !ok {
		return "", fmt.Errorf("code template %q: %w", id, mapping.ErrNotFound)
	}

	all := mappingVars(m)
	all["templateId"] = tpl.ID
	all["templateName"] = tpl.Name
	for k, v := range vars {
		all[k] = v
	}

	code, err := uc.renderer.Render(tpl.Code, all)
	if err != nil {
		return "", fmt.Errorf("code template %q: %w", id, err)
	}
	return code, nil
}

func mappingVars(m *mapping.Mapping) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return map[string]any{
		"mappingId":      m.ID,
		"mappingName":    m.Name,
		"identifier":     m.Identifier,
		"direction":      string(m.Direction),
		"mappingType":    string(m.MappingType),
		"mappingTopic":   m.MappingTopic,
		"publishTopic":   m.PublishTopic,
		"targetAPI":      string(m.TargetAPI),
		"externalIdType": m.ExternalIDType,
		"useExternalId":  m.UseExternalID,
		"identifierPath": mapping.GenericDeviceIdentifier(m),
	}
}
