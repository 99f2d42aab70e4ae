// Package stepper resolves the effective runtime configuration of a mapping from its
// metadata through an ordered list of overrides.
package stepper

import (
	"fmt"
	"strings"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// EditorMode is the mode the mapping is opened in.
type EditorMode string

const (
	ModeCreate   EditorMode = "CREATE"
	ModeUpdate   EditorMode = "UPDATE"
	ModeReadOnly EditorMode = "READ_ONLY"
	ModeCopy     EditorMode = "COPY"
)

// ParseEditorMode accepts a mode name in any case. An empty name is UPDATE.
func ParseEditorMode(s string) (EditorMode, error) {
	if s == "" {
		return ModeUpdate, nil
	}
	switch mode := EditorMode(strings.ToUpper(s)); mode {
	case ModeCreate, ModeUpdate, ModeReadOnly, ModeCopy:
		return mode, nil
	}
	return "", fmt.Errorf("unknown editor mode %q", s)
}

// Editor step indices.
const (
	StepSelectConnector = iota
	StepGeneralSettings
	StepSelectTemplates
	StepDefineSubstitutions
	StepTestMapping
)

// Config is the effective configuration. A nil field is unset; a patch only
// overwrites the fields it sets.
type Config struct {
	ShowEditorSource                    *bool `json:"showEditorSource,omitempty"`
	ShowEditorTarget                    *bool `json:"showEditorTarget,omitempty"`
	ShowProcessorExtensionsSource       *bool `json:"showProcessorExtensionsSource,omitempty"`
	ShowProcessorExtensionsSourceTarget *bool `json:"showProcessorExtensionsSourceTarget,omitempty"`
	ShowProcessorExtensionsInternal     *bool `json:"showProcessorExtensionsInternal,omitempty"`
	ShowProcessorExtensionsTarget       *bool `json:"showProcessorExtensionsTarget,omitempty"`
	ShowCodeEditor                      *bool `json:"showCodeEditor,omitempty"`
	ShowFilterExpression                *bool `json:"showFilterExpression,omitempty"`
	AllowNoDefinedIdentifier            *bool `json:"allowNoDefinedIdentifier,omitempty"`
	AllowDefiningSubstitutions          *bool `json:"allowDefiningSubstitutions,omitempty"`
	AllowTestTransformation             *bool `json:"allowTestTransformation,omitempty"`
	AllowTestSending                    *bool `json:"allowTestSending,omitempty"`
	AdvanceFromStepToEndStep            *int  `json:"advanceFromStepToEndStep,omitempty"`

	Direction  mapping.Direction `json:"direction,omitempty"`
	EditorMode EditorMode        `json:"editorMode,omitempty"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n.
func Int(n int) *int { return &n }

func isTrue(b *bool) bool { return b != nil && *b }

// CodeEditor reports whether substitutions are defined as code.
func (c Config) CodeEditor() bool { return isTrue(c.ShowCodeEditor) }

// TestSendingAllowed reports whether a test run may hand requests to the transport.
func (c Config) TestSendingAllowed() bool { return isTrue(c.AllowTestSending) }

// TestTransformationAllowed reports whether the pipeline may run for tests.
func (c Config) TestTransformationAllowed() bool { return isTrue(c.AllowTestTransformation) }

// NoIdentifierAllowed reports whether a mapping may omit the device identifier.
func (c Config) NoIdentifierAllowed() bool { return isTrue(c.AllowNoDefinedIdentifier) }

// IdentifierCheckLenient reports whether a broken identifier rule is tolerated
// at step: always when the configuration allows no identifier, otherwise only
// before substitutions are defined.
func (c Config) IdentifierCheckLenient(step int) bool {
	return c.NoIdentifierAllowed() || step < StepDefineSubstitutions
}

// SubstitutionsAllowed reports whether declarative substitutions may be defined.
func (c Config) SubstitutionsAllowed() bool { return isTrue(c.AllowDefiningSubstitutions) }

// apply overwrites every field set in patch.
func (c Config) apply(patch Config) Config {
	for _, f := range boolFields {
		if v := f.get(&patch); *v != nil {
			*f.get(&c) = Bool(**v)
		}
	}
	if patch.AdvanceFromStepToEndStep != nil {
		c.AdvanceFromStepToEndStep = Int(*patch.AdvanceFromStepToEndStep)
	}
	if patch.Direction != "" {
		c.Direction = patch.Direction
	}
	if patch.EditorMode != "" {
		c.EditorMode = patch.EditorMode
	}
	return c
}

// SetFields lists the names of the fields set in c, in declaration order.
func (c Config) SetFields() []string {
	var names []string
	for _, f := range boolFields {
		if *f.get(&c) != nil {
			names = append(names, f.name)
		}
	}
	if c.AdvanceFromStepToEndStep != nil {
		names = append(names, "advanceFromStepToEndStep")
	}
	if c.Direction != "" {
		names = append(names, "direction")
	}
	if c.EditorMode != "" {
		names = append(names, "editorMode")
	}
	return names
}

type boolField struct {
	name string
	get  func(*Config) **bool
}

var boolFields = []boolField{
	{"showEditorSource", func(c *Config) **bool { return &c.ShowEditorSource }},
	{"showEditorTarget", func(c *Config) **bool { return &c.ShowEditorTarget }},
	{"showProcessorExtensionsSource", func(c *Config) **bool { return &c.ShowProcessorExtensionsSource }},
	{"showProcessorExtensionsSourceTarget", func(c *Config) **bool { return &c.ShowProcessorExtensionsSourceTarget }},
	{"showProcessorExtensionsInternal", func(c *Config) **bool { return &c.ShowProcessorExtensionsInternal }},
	{"showProcessorExtensionsTarget", func(c *Config) **bool { return &c.ShowProcessorExtensionsTarget }},
	{"showCodeEditor", func(c *Config) **bool { return &c.ShowCodeEditor }},
	{"showFilterExpression", func(c *Config) **bool { return &c.ShowFilterExpression }},
	{"allowNoDefinedIdentifier", func(c *Config) **bool { return &c.AllowNoDefinedIdentifier }},
	{"allowDefiningSubstitutions", func(c *Config) **bool { return &c.AllowDefiningSubstitutions }},
	{"allowTestTransformation", func(c *Config) **bool { return &c.AllowTestTransformation }},
	{"allowTestSending", func(c *Config) **bool { return &c.AllowTestSending }},
}

// BaseConfig returns the configuration each mapping type starts from.
func BaseConfig(t mapping.Type) Config {
	switch t {
	case mapping.TypeJSON, mapping.TypeXML, mapping.TypeFlatFile, mapping.TypeHex:
		return Config{
			ShowCodeEditor:                Bool(false),
			ShowEditorSource:              Bool(true),
			ShowEditorTarget:              Bool(true),
			AllowNoDefinedIdentifier:      Bool(false),
			AllowDefiningSubstitutions:    Bool(true),
			ShowProcessorExtensionsSource: Bool(false),
			AllowTestTransformation:       Bool(true),
			AllowTestSending:              Bool(true),
		}
	case mapping.TypeProtobufInternal:
		return Config{
			ShowProcessorExtensionsSource:   Bool(false),
			ShowProcessorExtensionsInternal: Bool(true),
			AllowDefiningSubstitutions:      Bool(false),
			ShowCodeEditor:                  Bool(false),
			ShowEditorSource:                Bool(false),
			ShowEditorTarget:                Bool(true),
			AllowNoDefinedIdentifier:        Bool(true),
			AllowTestTransformation:         Bool(false),
			AllowTestSending:                Bool(false),
		}
	case mapping.TypeExtensionSource:
		return Config{
			ShowProcessorExtensionsSource:       Bool(true),
			ShowProcessorExtensionsSourceTarget: Bool(false),
			AllowDefiningSubstitutions:          Bool(false),
			ShowCodeEditor:                      Bool(false),
			ShowEditorSource:                    Bool(false),
			ShowEditorTarget:                    Bool(true),
			AllowNoDefinedIdentifier:            Bool(true),
			AllowTestTransformation:             Bool(false),
			AllowTestSending:                    Bool(false),
			AdvanceFromStepToEndStep:            Int(2),
		}
	case mapping.TypeExtensionSourceTarget, mapping.TypeExtensionJava:
		return Config{
			ShowProcessorExtensionsSource:       Bool(false),
			ShowProcessorExtensionsSourceTarget: Bool(true),
			AllowDefiningSubstitutions:          Bool(false),
			ShowEditorSource:                    Bool(false),
			ShowEditorTarget:                    Bool(false),
			AllowNoDefinedIdentifier:            Bool(true),
			AllowTestTransformation:             Bool(false),
			AllowTestSending:                    Bool(false),
			AdvanceFromStepToEndStep:            Int(2),
		}
	case mapping.TypeCodeBased:
		return Config{
			ShowEditorSource:              Bool(true),
			ShowEditorTarget:              Bool(true),
			ShowCodeEditor:                Bool(true),
			AllowNoDefinedIdentifier:      Bool(false),
			AllowDefiningSubstitutions:    Bool(true),
			ShowProcessorExtensionsSource: Bool(false),
			AllowTestTransformation:       Bool(true),
			AllowTestSending:              Bool(false),
		}
	}
	return Config{}
}
