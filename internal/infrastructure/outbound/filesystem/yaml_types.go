package filesystem

import "gopkg.in/yaml.v3"

// yamlMapping is the YAML form of a mapping. Templates may be given as JSON
// text, as an inline YAML object or array, or through !include.
type yamlMapping struct {
	ID                      string             `yaml:"id"`
	Identifier              string             `yaml:"identifier,omitempty"`
	Name                    string             `yaml:"name"`
	MappingTopic            string             `yaml:"mappingTopic,omitempty"`
	MappingTopicSample      string             `yaml:"mappingTopicSample,omitempty"`
	PublishTopic            string             `yaml:"publishTopic,omitempty"`
	PublishTopicSample      string             `yaml:"publishTopicSample,omitempty"`
	TargetAPI               string             `yaml:"targetAPI"`
	Direction               string             `yaml:"direction"`
	MappingType             string             `yaml:"mappingType"`
	TransformationType      string             `yaml:"transformationType,omitempty"`
	SourceTemplate          yaml.Node          `yaml:"sourceTemplate,omitempty"`
	TargetTemplate          yaml.Node          `yaml:"targetTemplate,omitempty"`
	Substitutions           []yamlSubstitution `yaml:"substitutions,omitempty"`
	FilterMapping           string             `yaml:"filterMapping,omitempty"`
	Active                  bool               `yaml:"active"`
	Debug                   bool               `yaml:"debug,omitempty"`
	Tested                  bool               `yaml:"tested,omitempty"`
	Qos                     string             `yaml:"qos,omitempty"`
	CreateNonExistingDevice bool               `yaml:"createNonExistingDevice,omitempty"`
	UpdateExistingDevice    bool               `yaml:"updateExistingDevice,omitempty"`
	UseExternalID           bool               `yaml:"useExternalId,omitempty"`
	ExternalIDType          string             `yaml:"externalIdType,omitempty"`
	SnoopStatus             string             `yaml:"snoopStatus,omitempty"`
	MaxFailureCount         int                `yaml:"maxFailureCount,omitempty"`
	Code                    string             `yaml:"code,omitempty"`
	LastUpdate              int64              `yaml:"lastUpdate,omitempty"`
}

type yamlSubstitution struct {
	PathSource     string `yaml:"pathSource"`
	PathTarget     string `yaml:"pathTarget"`
	RepairStrategy string `yaml:"repairStrategy,omitempty"`
	ExpandArray    bool   `yaml:"expandArray,omitempty"`
}

// yamlCodeTemplates is the layout of code-templates.yaml.
type yamlCodeTemplates struct {
	Templates []yamlCodeTemplate `yaml:"templates"`
}

// yamlCodeTemplate carries either base64 code or plain source. Plain source is
// typically pulled in with !include.
type yamlCodeTemplate struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description,omitempty"`
	TemplateType string `yaml:"templateType"`
	Code         string `yaml:"code,omitempty"`
	Source       string `yaml:"source,omitempty"`
	Internal     bool   `yaml:"internal,omitempty"`
	Readonly     bool   `yaml:"readonly,omitempty"`
}
