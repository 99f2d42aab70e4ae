package processing_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/testutil"
)

func inboundMapping(subs ...mapping.Substitution) *mapping.Mapping {
	return &mapping.Mapping{
		ID:                 "m1",
		Direction:          mapping.Inbound,
		MappingType:        mapping.TypeJSON,
		TransformationType: mapping.TransformationDefault,
		TargetAPI:          mapping.APIMeasurement,
		UseExternalID:      true,
		ExternalIDType:     "c8y_Serial",
		Substitutions:      subs,
	}
}

func TestExtract_PartialFailure(t *testing.T) {
	eval := &testutil.FakeEvaluator{
		Results: map[string]*jsonval.Value{
			"$.id":   jsonval.String("dev-1"),
			"$.temp": jsonval.MustParse("21.5"),
		},
		Errors: map[string]error{"$.broken(": errors.New("syntax error")},
	}
	m := inboundMapping(
		mapping.Substitution{PathSource: "$.id", PathTarget: "_IDENTITY_.externalId"},
		mapping.Substitution{PathSource: "$.broken(", PathTarget: "x"},
		mapping.Substitution{PathSource: "$.temp", PathTarget: "c8y_Temp.value", RepairStrategy: mapping.RepairCreateIfMissing},
	)

	cache, errs := processing.NewExtractor(eval, nil, time.Second).Extract(context.Background(), m, "t", jsonval.Object())

	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	var extErr *processing.ExtractionError
	if !errors.As(errs[0], &extErr) || extErr.Index != 1 {
		t.Fatalf("expected extraction error for substitution 1, got %v", errs[0])
	}
	if want := []string{"_IDENTITY_.externalId", "c8y_Temp.value"}; !reflect.DeepEqual(cache.Keys(), want) {
		t.Errorf("expected keys %v, got %v", want, cache.Keys())
	}
	temp := cache.Get("c8y_Temp.value")[0]
	if temp.Type != processing.TypeNumber || temp.RepairStrategy != mapping.RepairCreateIfMissing {
		t.Errorf("unexpected temp entry %+v", temp)
	}
	if got := cache.Get("_IDENTITY_.externalId")[0].RepairStrategy; got != mapping.RepairDefault {
		t.Errorf("expected empty strategy to default, got %s", got)
	}
}

func TestExtract_SameTargetAppends(t *testing.T) {
	eval := &testutil.FakeEvaluator{Results: map[string]*jsonval.Value{
		"$.a": jsonval.Number(1),
		"$.b": jsonval.Number(2),
	}}
	m := inboundMapping(
		mapping.Substitution{PathSource: "$.a", PathTarget: "v"},
		mapping.Substitution{PathSource: "$.b", PathTarget: "v"},
	)
	cache, errs := processing.NewExtractor(eval, nil, 0).Extract(context.Background(), m, "t", jsonval.Object())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if got := len(cache.Get("v")); got != 2 {
		t.Errorf("expected 2 values, got %d", got)
	}
}

func TestExtract_Timeout(t *testing.T) {
	eval := &testutil.FakeEvaluator{}
	m := inboundMapping(mapping.Substitution{PathSource: testutil.ExprBlock, PathTarget: "x"})

	start := time.Now()
	cache, errs := processing.NewExtractor(eval, nil, 20*time.Millisecond).Extract(context.Background(), m, "t", jsonval.Object())

	if time.Since(start) > 2*time.Second {
		t.Fatal("evaluation was not bounded")
	}
	if len(errs) != 1 || !errors.Is(errs[0], processing.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", errs)
	}
	if cache.Has("x") {
		t.Error("timed out substitution must not be cached")
	}
}

func TestExtract_EvaluatorPanic(t *testing.T) {
	eval := &testutil.FakeEvaluator{Results: map[string]*jsonval.Value{"$.ok": jsonval.Bool(true)}}
	m := inboundMapping(
		mapping.Substitution{PathSource: testutil.ExprPanic, PathTarget: "x"},
		mapping.Substitution{PathSource: "$.ok", PathTarget: "y"},
	)
	cache, errs := processing.NewExtractor(eval, nil, 0).Extract(context.Background(), m, "t", jsonval.Object())
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if !cache.Has("y") {
		t.Error("sibling substitution lost after panic")
	}
}

func TestExtract_OutboundUsesAPIPath(t *testing.T) {
	eval := &testutil.FakeEvaluator{Results: map[string]*jsonval.Value{"source.id": jsonval.String("4711")}}
	m := &mapping.Mapping{
		Direction:          mapping.Outbound,
		MappingType:        mapping.TypeJSON,
		TransformationType: mapping.TransformationDefault,
		TargetAPI:          mapping.APIMeasurement,
		Substitutions: []mapping.Substitution{
			{PathSource: "_IDENTITY_.c8ySourceId", PathTarget: "_TOPIC_LEVEL_[1]"},
			{PathSource: "$.c8y_Temp.T.value", PathTarget: "temp"},
		},
	}

	cache, errs := processing.NewExtractor(eval, nil, 0).Extract(context.Background(), m, "", jsonval.Object())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if want := []string{"source.id", "$.c8y_Temp.T.value"}; !reflect.DeepEqual(eval.Calls, want) {
		t.Errorf("expected calls %v, got %v", want, eval.Calls)
	}
	if got := cache.Get("_TOPIC_LEVEL_[1]")[0].Value.Text(); got != "4711" {
		t.Errorf("expected 4711, got %s", got)
	}
}

func TestExtract_UnsupportedTransformations(t *testing.T) {
	for _, tt := range []mapping.TransformationType{mapping.TransformationSmartFunction, mapping.TransformationExtensionJava} {
		t.Run(string(tt), func(t *testing.T) {
			m := inboundMapping()
			m.TransformationType = tt
			_, errs := processing.NewExtractor(&testutil.FakeEvaluator{}, nil, 0).Extract(context.Background(), m, "t", jsonval.Object())
			if len(errs) != 1 || !errors.Is(errs[0], processing.ErrUnsupported) {
				t.Errorf("expected ErrUnsupported, got %v", errs)
			}
		})
	}
}

func TestExtract_Code(t *testing.T) {
	var seen processing.SubstitutionContext
	var seenCode string
	runner := &testutil.FakeCodeRunner{Fn: func(_ context.Context, code string, sc processing.SubstitutionContext) (*processing.SubstitutionResult, error) {
		seen, seenCode = sc, code
		res := processing.NewSubstitutionResult()
		res.AddSubstitution("_IDENTITY_.externalId", jsonval.String("dev-9"), mapping.RepairDefault, false)
		res.AddSubstitution("c8y_Temp.value", jsonval.Number(3), "", false)
		res.AddError("soft failure")
		return res, nil
	}}
	m := inboundMapping()
	m.TransformationType = mapping.TransformationSubstitutionAsCode
	m.Code = mapping.EncodeCode("return 1")
	payload := jsonval.MustParse(`{"_IDENTITY_":{"externalId":"dev-9"}}`)

	cache, errs := processing.NewExtractor(&testutil.FakeEvaluator{}, runner, time.Second).Extract(context.Background(), m, "dev/t", payload)

	if seenCode != "return 1" {
		t.Errorf("expected decoded code, got %q", seenCode)
	}
	if seen.Topic != "dev/t" || seen.GenericDeviceIdentifier != "_IDENTITY_.externalId" || seen.ExternalIdentifier() != "dev-9" {
		t.Errorf("unexpected substitution context %+v", seen)
	}
	if len(errs) != 1 || errs[0].Error() != "extraction: soft failure" {
		t.Errorf("expected program error surfaced, got %v", errs)
	}
	if cache.Len() != 2 {
		t.Errorf("expected 2 keys, got %v", cache.Keys())
	}
	if !processing.CheckIdentifiers(m, cache, false) {
		t.Error("expected identifiers valid from cache")
	}
}

func TestExtract_CodeFailures(t *testing.T) {
	m := inboundMapping()
	m.MappingType = mapping.TypeCodeBased
	m.Code = mapping.EncodeCode("x")

	_, errs := processing.NewExtractor(&testutil.FakeEvaluator{}, nil, 0).Extract(context.Background(), m, "t", jsonval.Object())
	if len(errs) != 1 || !errors.Is(errs[0], processing.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported without runner, got %v", errs)
	}

	runner := &testutil.FakeCodeRunner{Err: context.DeadlineExceeded}
	_, errs = processing.NewExtractor(&testutil.FakeEvaluator{}, runner, 0).Extract(context.Background(), m, "t", jsonval.Object())
	if len(errs) != 1 || !errors.Is(errs[0], processing.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", errs)
	}

	m.Code = ""
	_, errs = processing.NewExtractor(&testutil.FakeEvaluator{}, runner, 0).Extract(context.Background(), m, "t", jsonval.Object())
	if len(errs) != 1 {
		t.Errorf("expected missing code error, got %v", errs)
	}
}

func TestFilter(t *testing.T) {
	eval := &testutil.FakeEvaluator{Results: map[string]*jsonval.Value{
		"pass": jsonval.Bool(true),
		"drop": jsonval.Bool(false),
		"text": jsonval.String("true"),
	}}
	ext := processing.NewExtractor(eval, nil, 0)

	tests := []struct {
		filter   string
		want     bool
		mismatch bool
	}{
		{"", true, false},
		{"pass", true, false},
		{"drop", false, false},
		{"text", false, true},
		{"unknown", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			m := inboundMapping()
			m.FilterMapping = tt.filter
			got, err := ext.Filter(context.Background(), m, jsonval.Object())
			if tt.mismatch {
				if !errors.Is(err, processing.ErrTypeMismatch) {
					t.Fatalf("expected ErrTypeMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCheckIdentifiers(t *testing.T) {
	valid := inboundMapping(mapping.Substitution{PathSource: "$.id", PathTarget: "_IDENTITY_.externalId"})
	none := inboundMapping(mapping.Substitution{PathSource: "$.t", PathTarget: "t"})

	if !processing.CheckIdentifiers(valid, nil, false) {
		t.Error("expected declared identifier to be valid")
	}
	if processing.CheckIdentifiers(none, nil, false) {
		t.Error("expected missing identifier to be invalid")
	}
	if !processing.CheckIdentifiers(none, nil, true) {
		t.Error("expected lenient check to pass")
	}

	code := inboundMapping()
	code.MappingType = mapping.TypeCodeBased
	if processing.CheckIdentifiers(code, processing.NewCache(), false) {
		t.Error("expected code mapping without identifier in cache to be invalid")
	}
}
