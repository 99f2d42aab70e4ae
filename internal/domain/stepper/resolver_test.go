package stepper_test

import (
	"reflect"
	"testing"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/stepper"
)

func boolOf(t *testing.T, name string, b *bool) bool {
	t.Helper()
	if b == nil {
		t.Fatalf("%s is unset", name)
	}
	return *b
}

func TestResolve_SubstitutionAsCodeDropsAdvance(t *testing.T) {
	base := stepper.Config{
		ShowCodeEditor:           stepper.Bool(false),
		AllowTestSending:         stepper.Bool(true),
		AdvanceFromStepToEndStep: stepper.Int(2),
	}
	ctx := stepper.Context{
		MappingType:         mapping.TypeJSON,
		TransformationType:  mapping.TransformationSubstitutionAsCode,
		Direction:           mapping.Inbound,
		EditorMode:          stepper.ModeUpdate,
		SubstitutionsAsCode: true,
	}

	cfg := stepper.Resolve(base, ctx)

	if !boolOf(t, "showCodeEditor", cfg.ShowCodeEditor) {
		t.Error("expected showCodeEditor=true")
	}
	if boolOf(t, "allowTestSending", cfg.AllowTestSending) {
		t.Error("expected allowTestSending=false")
	}
	if !boolOf(t, "allowTestTransformation", cfg.AllowTestTransformation) {
		t.Error("expected allowTestTransformation=true")
	}
	if cfg.AdvanceFromStepToEndStep != nil {
		t.Errorf("expected advanceFromStepToEndStep unset, got %d", *cfg.AdvanceFromStepToEndStep)
	}
	if cfg.Direction != mapping.Inbound || cfg.EditorMode != stepper.ModeUpdate {
		t.Errorf("direction/editorMode not merged: %q %q", cfg.Direction, cfg.EditorMode)
	}
	if *base.AdvanceFromStepToEndStep != 2 || *base.ShowCodeEditor {
		t.Error("base configuration was mutated")
	}
}

func TestResolve_LaterOverrideWins(t *testing.T) {
	ctx := stepper.Context{
		MappingType:        mapping.TypeExtensionJava,
		TransformationType: mapping.TransformationExtensionJava,
		Direction:          mapping.Outbound,
		SnoopStatus:        mapping.SnoopEnabled,
	}
	cfg := stepper.Resolve(stepper.BaseConfig(mapping.TypeExtensionJava), ctx)

	if got := stepper.AppliedOverrides(ctx); !reflect.DeepEqual(got, []int{0, 1, 4, 5}) {
		t.Fatalf("unexpected applied overrides: %v", got)
	}
	// Rule 1 sets 0, rule 4 sets it back to 2.
	if cfg.AdvanceFromStepToEndStep == nil || *cfg.AdvanceFromStepToEndStep != 2 {
		t.Errorf("expected advance=2 from the later rule, got %v", cfg.AdvanceFromStepToEndStep)
	}
	if !boolOf(t, "showProcessorExtensionsTarget", cfg.ShowProcessorExtensionsTarget) {
		t.Error("expected showProcessorExtensionsTarget=true")
	}
	if boolOf(t, "showProcessorExtensionsSource", cfg.ShowProcessorExtensionsSource) {
		t.Error("expected showProcessorExtensionsSource=false")
	}
}

func TestResolve_OutboundSnoopSetsAdvanceZero(t *testing.T) {
	ctx := stepper.Context{MappingType: mapping.TypeJSON, TransformationType: mapping.TransformationDefault, Direction: mapping.Outbound, SnoopStatus: mapping.SnoopEnabled}
	cfg := stepper.Resolve(stepper.BaseConfig(mapping.TypeJSON), ctx)
	if cfg.AdvanceFromStepToEndStep == nil || *cfg.AdvanceFromStepToEndStep != 0 {
		t.Errorf("expected advance=0, got %v", cfg.AdvanceFromStepToEndStep)
	}
	if cfg.TestSendingAllowed() {
		t.Error("outbound mappings must not allow test sending")
	}
}

func TestAppliedOverrides(t *testing.T) {
	tests := []struct {
		name string
		ctx  stepper.Context
		want []int
	}{
		{
			name: "inbound json default",
			ctx:  stepper.Context{MappingType: mapping.TypeJSON, TransformationType: mapping.TransformationDefault, Direction: mapping.Inbound},
			want: nil,
		},
		{
			name: "smart function",
			ctx:  stepper.Context{MappingType: mapping.TypeJSON, TransformationType: mapping.TransformationSmartFunction, Direction: mapping.Inbound},
			want: []int{3},
		},
		{
			name: "inbound extension java",
			ctx:  stepper.Context{MappingType: mapping.TypeExtensionJava, TransformationType: mapping.TransformationExtensionJava, Direction: mapping.Inbound},
			want: []int{6, 7},
		},
		{
			name: "outbound code",
			ctx:  stepper.Context{MappingType: mapping.TypeCodeBased, Direction: mapping.Outbound, SubstitutionsAsCode: true},
			want: []int{0, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stepper.AppliedOverrides(tt.ctx); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppliedOverrideDescriptions(t *testing.T) {
	ctx := stepper.Context{MappingType: mapping.TypeCodeBased, Direction: mapping.Outbound, SubstitutionsAsCode: true}
	got := stepper.AppliedOverrideDescriptions(ctx)
	want := []string{
		"Override 0: sets allowTestSending",
		"Override 2: sets showCodeEditor, allowTestTransformation, allowTestSending",
		"Post-processing: removed advanceFromStepToEndStep",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestForMapping(t *testing.T) {
	tests := []struct {
		name        string
		m           mapping.Mapping
		codeEditor  bool
		testSending bool
		testRun     bool
	}{
		{
			name:        "inbound json",
			m:           mapping.Mapping{MappingType: mapping.TypeJSON, Direction: mapping.Inbound, TransformationType: mapping.TransformationDefault},
			testSending: true,
			testRun:     true,
		},
		{
			name:       "code based",
			m:          mapping.Mapping{MappingType: mapping.TypeCodeBased, Direction: mapping.Inbound},
			codeEditor: true,
			testRun:    true,
		},
		{
			name: "protobuf",
			m:    mapping.Mapping{MappingType: mapping.TypeProtobufInternal, Direction: mapping.Inbound},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := stepper.ForMapping(&tt.m, stepper.ModeCreate)
			if cfg.CodeEditor() != tt.codeEditor {
				t.Errorf("codeEditor: got %v, want %v", cfg.CodeEditor(), tt.codeEditor)
			}
			if cfg.TestSendingAllowed() != tt.testSending {
				t.Errorf("testSending: got %v, want %v", cfg.TestSendingAllowed(), tt.testSending)
			}
			if cfg.TestTransformationAllowed() != tt.testRun {
				t.Errorf("testTransformation: got %v, want %v", cfg.TestTransformationAllowed(), tt.testRun)
			}
		})
	}
}

func TestParseEditorMode(t *testing.T) {
	tests := []struct {
		in      string
		want    stepper.EditorMode
		wantErr bool
	}{
		{"", stepper.ModeUpdate, false},
		{"read_only", stepper.ModeReadOnly, false},
		{"COPY", stepper.ModeCopy, false},
		{"edit", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := stepper.ParseEditorMode(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseEditorMode(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestConfig_IdentifierCheckLenient(t *testing.T) {
	strict := stepper.ForMapping(&mapping.Mapping{MappingType: mapping.TypeJSON, Direction: mapping.Inbound}, stepper.ModeUpdate)
	noID := stepper.ForMapping(&mapping.Mapping{MappingType: mapping.TypeExtensionSource, Direction: mapping.Inbound}, stepper.ModeUpdate)

	tests := []struct {
		name string
		cfg  stepper.Config
		step int
		want bool
	}{
		{"templates step", strict, stepper.StepSelectTemplates, true},
		{"substitutions step", strict, stepper.StepDefineSubstitutions, false},
		{"test step", strict, stepper.StepTestMapping, false},
		{"no identifier allowed", noID, stepper.StepTestMapping, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.IdentifierCheckLenient(tt.step); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
