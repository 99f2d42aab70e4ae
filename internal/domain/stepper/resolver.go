package stepper

import (
	"fmt"
	"strings"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// Context carries the mapping metadata overrides are matched against.
type Context struct {
	MappingType         mapping.Type
	TransformationType  mapping.TransformationType
	Direction           mapping.Direction
	EditorMode          EditorMode
	SubstitutionsAsCode bool
	SnoopStatus         mapping.SnoopStatus
}

// ContextFor derives the override context of m.
func ContextFor(m *mapping.Mapping, mode EditorMode) Context {
	return Context{
		MappingType:         m.MappingType,
		TransformationType:  m.TransformationType,
		Direction:           m.Direction,
		EditorMode:          mode,
		SubstitutionsAsCode: m.UsesCode(),
		SnoopStatus:         m.SnoopStatus,
	}
}

// Override is a conditional patch.
type Override struct {
	When  func(Context) bool
	Patch Config
}

// Overrides is evaluated top to bottom; a later patch wins over an earlier one.
var Overrides = []Override{
	{
		When:  func(c Context) bool { return c.Direction == mapping.Outbound },
		Patch: Config{AllowTestSending: Bool(false)},
	},
	{
		When:  func(c Context) bool { return c.Direction == mapping.Outbound && c.SnoopStatus == mapping.SnoopEnabled },
		Patch: Config{AdvanceFromStepToEndStep: Int(0)},
	},
	{
		When: func(c Context) bool { return c.SubstitutionsAsCode },
		Patch: Config{
			ShowCodeEditor:          Bool(true),
			AllowTestSending:        Bool(false),
			AllowTestTransformation: Bool(true),
		},
	},
	{
		When: func(c Context) bool { return c.TransformationType == mapping.TransformationSmartFunction },
		Patch: Config{
			ShowEditorTarget:        Bool(false),
			AllowTestSending:        Bool(false),
			AllowTestTransformation: Bool(true),
		},
	},
	{
		When: func(c Context) bool {
			return c.TransformationType == mapping.TransformationExtensionJava && c.Direction == mapping.Outbound
		},
		Patch: Config{
			ShowProcessorExtensionsTarget: Bool(true),
			ShowEditorTarget:              Bool(false),
			AllowTestSending:              Bool(false),
			AllowTestTransformation:       Bool(false),
			AdvanceFromStepToEndStep:      Int(2),
		},
	},
	{
		When: func(c Context) bool {
			return c.MappingType == mapping.TypeExtensionJava &&
				c.TransformationType == mapping.TransformationExtensionJava &&
				c.Direction == mapping.Outbound
		},
		Patch: Config{ShowProcessorExtensionsSource: Bool(false)},
	},
	{
		When: func(c Context) bool {
			return c.TransformationType == mapping.TransformationExtensionJava && c.Direction == mapping.Inbound
		},
		Patch: Config{
			ShowEditorTarget:        Bool(false),
			ShowFilterExpression:    Bool(false),
			AllowTestSending:        Bool(false),
			AllowTestTransformation: Bool(false),
		},
	},
	{
		When: func(c Context) bool {
			return c.MappingType == mapping.TypeExtensionJava && c.Direction == mapping.Inbound
		},
		Patch: Config{
			ShowEditorTarget:     Bool(false),
			ShowFilterExpression: Bool(false),
		},
	},
}

// Resolve merges base with the context's direction and editor mode, applies every
// matching override in order, then drops advanceFromStepToEndStep for code based
// substitutions.
func Resolve(base Config, ctx Context) Config {
	cfg := base.apply(Config{Direction: ctx.Direction, EditorMode: ctx.EditorMode})
	for _, o := range Overrides {
		if o.When(ctx) {
			cfg = cfg.apply(o.Patch)
		}
	}
	if ctx.SubstitutionsAsCode {
		cfg.AdvanceFromStepToEndStep = nil
	}
	return cfg
}

// ForMapping resolves the effective configuration of m.
func ForMapping(m *mapping.Mapping, mode EditorMode) Config {
	return Resolve(BaseConfig(m.MappingType), ContextFor(m, mode))
}

// AppliedOverrides returns the indices of the overrides matching ctx.
func AppliedOverrides(ctx Context) []int {
	var idx []int
	for i, o := range Overrides {
		if o.When(ctx) {
			idx = append(idx, i)
		}
	}
	return idx
}

// AppliedOverrideDescriptions renders the matching overrides for diagnostics.
func AppliedOverrideDescriptions(ctx Context) []string {
	var out []string
	for _, i := range AppliedOverrides(ctx) {
		out = append(out, fmt.Sprintf("Override %d: sets %s", i, strings.Join(Overrides[i].Patch.SetFields(), ", ")))
	}
	if ctx.SubstitutionsAsCode {
		out = append(out, "Post-processing: removed advanceFromStepToEndStep")
	}
	return out
}
