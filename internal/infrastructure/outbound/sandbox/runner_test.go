package sandbox_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/sandbox"
)

func substitutionContext(payload string) processing.SubstitutionContext {
	return processing.SubstitutionContext{
		GenericDeviceIdentifier: mapping.IdentityExternalID,
		Topic:                   "device/dev-1/telemetry",
		Payload:                 jsonval.MustParse(payload),
	}
}

func TestRunner_AddSubstitution(t *testing.T) {
	r := sandbox.NewRunner()
	code := `add(genericDeviceIdentifier, topicLevels[1]);
addSubstitution("c8y_Temp.T.value", payload.temp, "CREATE_IF_MISSING", false);
addSubstitution("c8y_Reading.value", payload.readings, "DEFAULT", true)`

	res, err := r.Run(context.Background(), code, substitutionContext(`{"temp": 21.5, "readings": [1, 2]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cache := res.Cache()
	if got := cache.Keys(); len(got) != 3 {
		t.Fatalf("expected 3 keys, got %v", got)
	}
	id := cache.Get(mapping.IdentityExternalID)[0]
	if id.Value.Text() != "dev-1" || id.RepairStrategy != mapping.RepairDefault {
		t.Errorf("unexpected identifier %+v", id)
	}
	temp := cache.Get("c8y_Temp.T.value")[0]
	if temp.RepairStrategy != mapping.RepairCreateIfMissing || temp.Value.String() != "21.5" {
		t.Errorf("unexpected temp %+v", temp)
	}
	if !cache.Get("c8y_Reading.value")[0].IsExpandable() {
		t.Error("expected expandable readings")
	}
	if len(res.Errors()) != 0 {
		t.Errorf("unexpected errors %v", res.Errors())
	}
}

func TestRunner_ReturnedMap(t *testing.T) {
	r := sandbox.NewRunner()
	res, err := r.Run(context.Background(), `{"b": payload.x, "a": externalIdentifier()}`,
		substitutionContext(`{"x": "y", "_IDENTITY_": {"externalId": "ext-1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(res.Cache().Keys(), ","); got != "a,b" {
		t.Errorf("expected sorted keys a,b, got %s", got)
	}
	if got := res.Cache().Get("a")[0].Value.Text(); got != "ext-1" {
		t.Errorf("expected ext-1, got %s", got)
	}
}

func TestRunner_ReportedErrors(t *testing.T) {
	r := sandbox.NewRunner()
	res, err := r.Run(context.Background(), `addError("temperature missing"); addSubstitution("x", 1, "SOMETIMES", false)`, substitutionContext(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	errs := res.Errors()
	if len(errs) != 2 || errs[0] != "temperature missing" || !strings.Contains(errs[1], "SOMETIMES") {
		t.Errorf("unexpected errors %v", errs)
	}
	if res.Cache().Has("x") {
		t.Error("substitution with invalid strategy must be rejected")
	}
}

func TestRunner_CompileAndRuntimeErrors(t *testing.T) {
	r := sandbox.NewRunner()
	if _, err := r.Run(context.Background(), `add(`, substitutionContext(`{}`)); err == nil {
		t.Error("expected compile error")
	}
	if _, err := r.Run(context.Background(), `unknownFn(1)`, substitutionContext(`{}`)); err == nil {
		t.Error("expected unknown identifier error")
	}
	if _, err := r.Run(context.Background(), `payload.a.b.c`, substitutionContext(`{}`)); err == nil {
		t.Error("expected runtime error for nil member access")
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	r := sandbox.NewRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, `add("a", 1)`, substitutionContext(`{}`))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunner_MemoryBudget(t *testing.T) {
	r := sandbox.NewRunner()

	_, err := r.Run(context.Background(), `len(1..5000000)`, substitutionContext(`{}`))
	if err == nil || !strings.Contains(err.Error(), "memory budget exceeded") {
		t.Errorf("expected memory budget error, got %v", err)
	}

	res, err := r.Run(context.Background(), `add("n", len(1..1000))`, substitutionContext(`{}`))
	if err != nil || len(res.Errors()) != 0 {
		t.Fatalf("small range should run, got %v", err)
	}
}
