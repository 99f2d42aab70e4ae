// Package mapping defines the declarative mapping contract consumed by the transformation engine.
package mapping

// Direction tells whether a mapping transforms broker messages into platform
// requests (INBOUND) or platform notifications into broker messages (OUTBOUND).
type Direction string

const (
	Inbound  Direction = "INBOUND"
	Outbound Direction = "OUTBOUND"
)

// Type is the kind of source payload a mapping handles.
type Type string

const (
	TypeJSON                  Type = "JSON"
	TypeXML                   Type = "XML"
	TypeFlatFile              Type = "FLAT_FILE"
	TypeHex                   Type = "HEX"
	TypeProtobufInternal      Type = "PROTOBUF_INTERNAL"
	TypeExtensionSource       Type = "EXTENSION_SOURCE"
	TypeExtensionSourceTarget Type = "EXTENSION_SOURCE_TARGET"
	TypeExtensionJava         Type = "EXTENSION_JAVA"
	TypeCodeBased             Type = "CODE_BASED"
)

// TransformationType selects how substitutions are computed.
type TransformationType string

const (
	TransformationDefault            TransformationType = "DEFAULT"
	TransformationJSONata            TransformationType = "JSONATA"
	TransformationSmartFunction      TransformationType = "SMART_FUNCTION"
	TransformationSubstitutionAsCode TransformationType = "SUBSTITUTION_AS_CODE"
	TransformationExtensionJava      TransformationType = "EXTENSION_JAVA"
)

// RepairStrategy governs how a value is reconciled into a single target slot.
type RepairStrategy string

const (
	RepairDefault               RepairStrategy = "DEFAULT"
	RepairUseFirstValueOfArray  RepairStrategy = "USE_FIRST_VALUE_OF_ARRAY"
	RepairUseLastValueOfArray   RepairStrategy = "USE_LAST_VALUE_OF_ARRAY"
	RepairIgnore                RepairStrategy = "IGNORE"
	RepairRemoveIfMissingOrNull RepairStrategy = "REMOVE_IF_MISSING_OR_NULL"
	RepairCreateIfMissing       RepairStrategy = "CREATE_IF_MISSING"
)

// Valid reports whether s is a known strategy. The empty strategy counts as DEFAULT.
func (s RepairStrategy) Valid() bool {
	switch s {
	case "", RepairDefault, RepairUseFirstValueOfArray, RepairUseLastValueOfArray,
		RepairIgnore, RepairRemoveIfMissingOrNull, RepairCreateIfMissing:
		return true
	}
	return false
}

// SnoopStatus tracks payload snooping for a mapping.
type SnoopStatus string

const (
	SnoopNone    SnoopStatus = "NONE"
	SnoopEnabled SnoopStatus = "ENABLED"
	SnoopStarted SnoopStatus = "STARTED"
	SnoopStopped SnoopStatus = "STOPPED"
)

// Qos is the MQTT delivery guarantee used when publishing.
type Qos string

const (
	QosAtMostOnce  Qos = "AT_MOST_ONCE"
	QosAtLeastOnce Qos = "AT_LEAST_ONCE"
	QosExactlyOnce Qos = "EXACTLY_ONCE"
)

// Level returns the numeric MQTT QoS level.
func (q Qos) Level() byte {
	switch q {
	case QosAtLeastOnce:
		return 1
	case QosExactlyOnce:
		return 2
	default:
		return 0
	}
}

// Substitution maps a source expression to a target path.
type Substitution struct {
	PathSource     string         `json:"pathSource" yaml:"pathSource"`
	PathTarget     string         `json:"pathTarget" yaml:"pathTarget"`
	RepairStrategy RepairStrategy `json:"repairStrategy" yaml:"repairStrategy"`
	ExpandArray    bool           `json:"expandArray" yaml:"expandArray"`
}

// Mapping is the full declarative mapping definition.
type Mapping struct {
	ID                 string             `json:"id"`
	Identifier         string             `json:"identifier"`
	Name               string             `json:"name"`
	MappingTopic       string             `json:"mappingTopic"`
	MappingTopicSample string             `json:"mappingTopicSample,omitempty"`
	PublishTopic       string             `json:"publishTopic,omitempty"`
	PublishTopicSample string             `json:"publishTopicSample,omitempty"`
	TargetAPI          API                `json:"targetAPI"`
	Direction          Direction          `json:"direction"`
	MappingType        Type               `json:"mappingType"`
	TransformationType TransformationType `json:"transformationType"`
	SourceTemplate     string             `json:"sourceTemplate,omitempty"`
	TargetTemplate     string             `json:"targetTemplate"`
	Substitutions      []Substitution     `json:"substitutions"`
	FilterMapping      string             `json:"filterMapping,omitempty"`
	Active             bool               `json:"active"`
	Debug              bool               `json:"debug"`
	Tested             bool               `json:"tested"`
	Qos                Qos                `json:"qos,omitempty"`

	CreateNonExistingDevice bool        `json:"createNonExistingDevice"`
	UpdateExistingDevice    bool        `json:"updateExistingDevice"`
	UseExternalID           bool        `json:"useExternalId"`
	ExternalIDType          string      `json:"externalIdType,omitempty"`
	SnoopStatus             SnoopStatus `json:"snoopStatus,omitempty"`
	MaxFailureCount         int         `json:"maxFailureCount"`

	// Code is the base64-encoded program for code based mappings.
	Code       string `json:"code,omitempty"`
	LastUpdate int64  `json:"lastUpdate,omitempty"`

	// Location of the definition inside the store. Not part of the wire model.
	SourceFile  string `json:"-"`
	SourceIndex int    `json:"-"`
}

// Clone returns a deep copy so a run never observes concurrent edits.
func (m *Mapping) Clone() *Mapping {
	if m == nil {
		return nil
	}
	c := *m
	if m.Substitutions != nil {
		c.Substitutions = make([]Substitution, len(m.Substitutions))
		copy(c.Substitutions, m.Substitutions)
	}
	return &c
}

// UsesCode reports whether substitutions come from a user program instead of declarations.
func (m *Mapping) UsesCode() bool {
	return m.MappingType == TypeCodeBased || m.TransformationType == TransformationSubstitutionAsCode
}
