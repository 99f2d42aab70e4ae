package filesystem

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

func decodeMappingNode(node *yaml.Node) (*mapping.Mapping, error) {
	var ym yamlMapping
	if err := node.Decode(&ym); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %w", err)
	}
	return toMapping(&ym)
}

func toMapping(ym *yamlMapping) (*mapping.Mapping, error) {
	source, err := templateText(&ym.SourceTemplate)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: sourceTemplate: %w", ym.ID, err)
	}
	target, err := templateText(&ym.TargetTemplate)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: targetTemplate: %w", ym.ID, err)
	}

	m := &mapping.Mapping{
		ID:                      ym.ID,
		Identifier:              ym.Identifier,
		Name:                    ym.Name,
		MappingTopic:            ym.MappingTopic,
		MappingTopicSample:      ym.MappingTopicSample,
		PublishTopic:            ym.PublishTopic,
		PublishTopicSample:      ym.PublishTopicSample,
		TargetAPI:               mapping.API(ym.TargetAPI),
		Direction:               mapping.Direction(ym.Direction),
		MappingType:             mapping.Type(ym.MappingType),
		TransformationType:      mapping.TransformationType(ym.TransformationType),
		SourceTemplate:          source,
		TargetTemplate:          target,
		FilterMapping:           ym.FilterMapping,
		Active:                  ym.Active,
		Debug:                   ym.Debug,
		Tested:                  ym.Tested,
		Qos:                     mapping.Qos(ym.Qos),
		CreateNonExistingDevice: ym.CreateNonExistingDevice,
		UpdateExistingDevice:    ym.UpdateExistingDevice,
		UseExternalID:           ym.UseExternalID,
		ExternalIDType:          ym.ExternalIDType,
		SnoopStatus:             mapping.SnoopStatus(ym.SnoopStatus),
		MaxFailureCount:         ym.MaxFailureCount,
		Code:                    ym.Code,
		LastUpdate:              ym.LastUpdate,
	}
	if m.Identifier == "" {
		m.Identifier = m.ID
	}
	if m.TransformationType == "" {
		m.TransformationType = mapping.TransformationDefault
	}
	for _, s := range ym.Substitutions {
		m.Substitutions = append(m.Substitutions, mapping.Substitution{
			PathSource:     s.PathSource,
			PathTarget:     s.PathTarget,
			RepairStrategy: mapping.RepairStrategy(s.RepairStrategy),
			ExpandArray:    s.ExpandArray,
		})
	}
	return m, nil
}

func fromMapping(m *mapping.Mapping) *yamlMapping {
	ym := &yamlMapping{
		ID:                      m.ID,
		Identifier:              m.Identifier,
		Name:                    m.Name,
		MappingTopic:            m.MappingTopic,
		MappingTopicSample:      m.MappingTopicSample,
		PublishTopic:            m.PublishTopic,
		PublishTopicSample:      m.PublishTopicSample,
		TargetAPI:               string(m.TargetAPI),
		Direction:               string(m.Direction),
		MappingType:             string(m.MappingType),
		TransformationType:      string(m.TransformationType),
		SourceTemplate:          literal(m.SourceTemplate),
		TargetTemplate:          literal(m.TargetTemplate),
		FilterMapping:           m.FilterMapping,
		Active:                  m.Active,
		Debug:                   m.Debug,
		Tested:                  m.Tested,
		Qos:                     string(m.Qos),
		CreateNonExistingDevice: m.CreateNonExistingDevice,
		UpdateExistingDevice:    m.UpdateExistingDevice,
		UseExternalID:           m.UseExternalID,
		ExternalIDType:          m.ExternalIDType,
		SnoopStatus:             string(m.SnoopStatus),
		MaxFailureCount:         m.MaxFailureCount,
		Code:                    m.Code,
		LastUpdate:              m.LastUpdate,
	}
	for _, s := range m.Substitutions {
		ym.Substitutions = append(ym.Substitutions, yamlSubstitution{
			PathSource:     s.PathSource,
			PathTarget:     s.PathTarget,
			RepairStrategy: string(s.RepairStrategy),
			ExpandArray:    s.ExpandArray,
		})
	}
	return ym
}

func literal(text string) yaml.Node {
	if text == "" {
		return yaml.Node{}
	}
	return yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: text, Style: yaml.LiteralStyle}
}

// templateText returns a template as JSON text. Scalars are taken verbatim,
// structured YAML is converted keeping member order.
func templateText(node *yaml.Node) (string, error) {
	switch node.Kind {
	case 0:
		return "", nil
	case yaml.ScalarNode:
		return node.Value, nil
	case yaml.AliasNode:
		return templateText(node.Alias)
	}
	v, err := yamlToJSON(node)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func yamlToJSON(n *yaml.Node) (*jsonval.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return jsonval.Null(), nil
		}
		return yamlToJSON(n.Content[0])
	case yaml.AliasNode:
		return yamlToJSON(n.Alias)
	case yaml.MappingNode:
		obj := jsonval.Object()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := yamlToJSON(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Put(n.Content[i].Value, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		items := make([]*jsonval.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlToJSON(c)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return jsonval.Array(items...), nil
	}

	switch n.ShortTag() {
	case "!!null":
		return jsonval.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return jsonval.Bool(b), nil
	case "!!int", "!!float":
		if v, err := jsonval.Parse([]byte(n.Value)); err == nil && v.Kind() == jsonval.KindNumber {
			return v, nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return jsonval.Number(f), nil
	default:
		return jsonval.String(n.Value), nil
	}
}

func toCodeTemplate(yt *yamlCodeTemplate) mapping.CodeTemplate {
	code := mapping.DecodeCode(yt.Code)
	if yt.Source != "" {
		code = yt.Source
	}
	return mapping.CodeTemplate{
		ID:           yt.ID,
		Name:         yt.Name,
		Description:  yt.Description,
		TemplateType: mapping.TemplateType(yt.TemplateType),
		Code:         code,
		Internal:     yt.Internal,
		Readonly:     yt.Readonly,
	}
}
