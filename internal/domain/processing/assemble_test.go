package processing_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
)

func sv(raw string, strategy mapping.RepairStrategy, expand bool) processing.SubstituteValue {
	return processing.NewSubstituteValue(jsonval.MustParse(raw), strategy, expand)
}

func texts(payloads []*jsonval.Value) []string {
	out := make([]string, len(payloads))
	for i, p := range payloads {
		out[i] = p.String()
	}
	return out
}

func TestAssemble_SingleValue(t *testing.T) {
	cache := processing.NewCache()
	cache.Add("c8y_Temp.value", sv("21.5", mapping.RepairDefault, false))
	tmpl := jsonval.MustParse(`{"c8y_Temp":{"value":0},"type":"c8y_TemperatureMeasurement"}`)

	payloads, pathErrs, err := processing.Assemble(cache, tmpl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pathErrs) != 0 {
		t.Fatalf("unexpected path errors: %v", pathErrs)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}
	want := `{"c8y_Temp":{"value":21.5},"type":"c8y_TemperatureMeasurement"}`
	if got := payloads[0].String(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestAssemble_ExpandArray(t *testing.T) {
	cache := processing.NewCache()
	cache.Add("c8y_Reading.value", sv("[1,2,3]", mapping.RepairDefault, true))
	cache.Add("type", sv(`"reading"`, mapping.RepairDefault, false))
	tmpl := jsonval.MustParse(`{"c8y_Reading":{"value":0}}`)

	payloads, pathErrs, err := processing.Assemble(cache, tmpl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pathErrs) != 0 {
		t.Fatalf("unexpected path errors: %v", pathErrs)
	}
	want := []string{
		`{"c8y_Reading":{"value":1},"type":"reading"}`,
		`{"c8y_Reading":{"value":2},"type":"reading"}`,
		`{"c8y_Reading":{"value":3},"type":"reading"}`,
	}
	got := texts(payloads)
	if len(got) != len(want) {
		t.Fatalf("expected %d payloads, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("payload %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestAssemble_EqualFanOut(t *testing.T) {
	cache := processing.NewCache()
	cache.Add("_IDENTITY_.externalId", sv(`["a","b","c"]`, mapping.RepairDefault, true))
	cache.Add("c8y_Temp.value", sv("[10,20,30]", mapping.RepairDefault, true))

	payloads, _, err := processing.Assemble(cache, jsonval.MustParse(`{"c8y_Temp":{}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payloads) != 3 {
		t.Fatalf("expected 3 payloads, got %d", len(payloads))
	}
	want := `{"c8y_Temp":{"value":20},"_IDENTITY_":{"externalId":"b"}}`
	if got := payloads[1].String(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestAssemble_FanOutMismatch(t *testing.T) {
	cache := processing.NewCache()
	cache.Add("a", sv("[1,2,3]", mapping.RepairDefault, true))
	cache.Add("b", sv("[1,2]", mapping.RepairDefault, true))

	payloads, _, err := processing.Assemble(cache, jsonval.Object())
	if !errors.Is(err, processing.ErrFanOutMismatch) {
		t.Fatalf("expected ErrFanOutMismatch, got %v", err)
	}
	var mismatch *processing.FanOutMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *FanOutMismatchError, got %T", err)
	}
	if mismatch.Path != "a" || mismatch.Other != "b" || mismatch.Length != 3 || mismatch.OtherLen != 2 {
		t.Errorf("unexpected mismatch details: %+v", mismatch)
	}
	if payloads != nil {
		t.Errorf("expected no payloads, got %d", len(payloads))
	}
}

func TestFanOut(t *testing.T) {
	tests := []struct {
		name  string
		build func(c *processing.Cache)
		want  int
	}{
		{"empty cache", func(*processing.Cache) {}, 1},
		{"scalar only", func(c *processing.Cache) {
			c.Add("a", sv("1", mapping.RepairDefault, false))
		}, 1},
		{"array without expand", func(c *processing.Cache) {
			c.Add("a", sv("[1,2]", mapping.RepairDefault, false))
		}, 1},
		{"expand on scalar", func(c *processing.Cache) {
			c.Add("a", sv("1", mapping.RepairDefault, true))
		}, 1},
		{"empty expand array", func(c *processing.Cache) {
			c.Add("a", sv("[]", mapping.RepairDefault, true))
		}, 0},
		{"multiple values under one key", func(c *processing.Cache) {
			c.Add("a", sv("1", mapping.RepairDefault, false))
			c.Add("a", sv("2", mapping.RepairDefault, false))
		}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := processing.NewCache()
			tt.build(c)
			got, err := processing.FanOut(c)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	build := func() *processing.Cache {
		c := processing.NewCache()
		c.Add("z.value", sv("[1.50,2.25]", mapping.RepairDefault, true))
		c.Add("a", sv(`{"k":"v","b":[true,null]}`, mapping.RepairDefault, false))
		c.Add("_CONTEXT_DATA_.deviceName", sv(`"dev"`, mapping.RepairDefault, false))
		c.Add("m", sv(`"<&>"`, mapping.RepairCreateIfMissing, false))
		return c
	}
	tmpl := `{"z":{"value":0},"t":"x"}`

	first, _, err := processing.Assemble(build(), jsonval.MustParse(tmpl))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for run := 0; run < 5; run++ {
		again, _, err := processing.Assemble(build(), jsonval.MustParse(tmpl))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		a, b := texts(first), texts(again)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("run %d payload %d differs: %s vs %s", run, i, a[i], b[i])
			}
		}
	}
	if got := first[0].String(); got != `{"z":{"value":1.50},"t":"x","_CONTEXT_DATA_":{"deviceName":"dev"},"a":{"k":"v","b":[true,null]},"m":"<&>"}` {
		t.Errorf("unexpected payload %s", got)
	}
}

func TestAssemble_DoesNotModifyInputs(t *testing.T) {
	cache := processing.NewCache()
	cache.Add("a.b", sv(`[{"x":1},{"x":2}]`, mapping.RepairDefault, true))
	tmpl := jsonval.MustParse(`{"a":{"b":null}}`)

	before, _ := json.Marshal(cache)
	tmplBefore := tmpl.String()

	payloads, _, err := processing.Assemble(cache, tmpl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payloads[0].Put("extra", jsonval.Bool(true))
	if v, ok := jsonval.Lookup(payloads[1], "a.b"); ok {
		v.Put("y", jsonval.Number(3))
	}

	after, _ := json.Marshal(cache)
	if string(before) != string(after) {
		t.Errorf("cache modified:\nbefore %s\nafter  %s", before, after)
	}
	if tmpl.String() != tmplBefore {
		t.Errorf("template modified: %s", tmpl)
	}
}

func TestAssemble_ReservedCombination(t *testing.T) {
	cache := processing.NewCache()
	cache.Add("a", sv("null", mapping.RepairRemoveIfMissingOrNull, false))
	cache.Add("a", sv("1", mapping.RepairCreateIfMissing, false))

	payloads, pathErrs, err := processing.Assemble(cache, jsonval.MustParse(`{"a":0}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n := 0
	for _, perr := range pathErrs {
		if errors.Is(perr, processing.ErrReservedRepairCombination) {
			n++
		}
	}
	if n != 2 {
		t.Errorf("expected a diagnostic per payload, got %d: %v", n, pathErrs)
	}
	want := []string{`{}`, `{"a":1}`}
	got := texts(payloads)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("payload %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestAssemble_RootMerge(t *testing.T) {
	cache := processing.NewCache()
	cache.Add("$", sv(`{"x":1,"y":{"z":2}}`, mapping.RepairDefault, false))

	payloads, pathErrs, err := processing.Assemble(cache, jsonval.MustParse(`{"y":0,"w":true}`))
	if err != nil || len(pathErrs) != 0 {
		t.Fatalf("unexpected errors: %v %v", err, pathErrs)
	}
	if got := payloads[0].String(); got != `{"y":{"z":2},"w":true,"x":1}` {
		t.Errorf("unexpected payload %s", got)
	}
}

func TestAssemble_RootMergeRejectsScalar(t *testing.T) {
	cache := processing.NewCache()
	cache.Add("$", sv(`"text"`, mapping.RepairDefault, false))

	_, pathErrs, err := processing.Assemble(cache, jsonval.Object())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pathErrs) != 1 || !errors.Is(pathErrs[0], processing.ErrTypeMismatch) {
		t.Fatalf("expected one type mismatch, got %v", pathErrs)
	}
	var perr *processing.PathError
	if !errors.As(pathErrs[0], &perr) || perr.Path != "$" || perr.Index != 0 {
		t.Errorf("unexpected path error %v", pathErrs[0])
	}
}

func TestAssemble_PathErrorsAreNonFatal(t *testing.T) {
	cache := processing.NewCache()
	cache.Add("missing.parent.value", sv("1", mapping.RepairDefault, false))
	cache.Add("ok", sv("2", mapping.RepairDefault, false))
	cache.Add("_IDENTITY_.externalId", sv(`"dev-1"`, mapping.RepairDefault, false))

	payloads, pathErrs, err := processing.Assemble(cache, jsonval.Object())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pathErrs) != 1 || !errors.Is(pathErrs[0], jsonval.ErrPathNotFound) {
		t.Fatalf("expected one ErrPathNotFound, got %v", pathErrs)
	}
	if got := payloads[0].String(); got != `{"ok":2,"_IDENTITY_":{"externalId":"dev-1"}}` {
		t.Errorf("unexpected payload %s", got)
	}
}

func TestAssemble_CreateIfMissing(t *testing.T) {
	cache := processing.NewCache()
	cache.Add("c8y_Temp.T.value", sv("7", mapping.RepairCreateIfMissing, false))
	cache.Add("c8y_Empty.inner", sv("null", mapping.RepairCreateIfMissing, false))

	payloads, pathErrs, err := processing.Assemble(cache, jsonval.Object())
	if err != nil || len(pathErrs) != 0 {
		t.Fatalf("unexpected errors: %v %v", err, pathErrs)
	}
	if got := payloads[0].String(); got != `{"c8y_Temp":{"T":{"value":7}},"c8y_Empty":{}}` {
		t.Errorf("unexpected payload %s", got)
	}
}
