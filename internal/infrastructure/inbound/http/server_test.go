package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/domain/trace"
	inboundhttp "github.com/sophialabs/mapforge/internal/infrastructure/inbound/http"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/expression"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/template"
	"github.com/sophialabs/mapforge/internal/infrastructure/services"
	"github.com/sophialabs/mapforge/internal/infrastructure/usecases"
	"github.com/sophialabs/mapforge/internal/testutil"
)

type testEnv struct {
	srv    *inboundhttp.Server
	repo   *testutil.MapRepository
	sender *testutil.RecordingSender
}

func temperatureMapping() *mapping.Mapping {
	return &mapping.Mapping{
		ID:                 "m-temp",
		Identifier:         "m-temp",
		Name:               "Temperature",
		MappingTopic:       "measure/+/temp",
		MappingTopicSample: "measure/dev-1/temp",
		TargetAPI:          mapping.APIMeasurement,
		Direction:          mapping.Inbound,
		MappingType:        mapping.TypeJSON,
		TransformationType: mapping.TransformationDefault,
		TargetTemplate:     `{"type":"c8y_Temperature","c8y_Temperature":{"T":{"value":0,"unit":"C"}}}`,
		Substitutions: []mapping.Substitution{
			{PathSource: "_TOPIC_LEVEL_[1]", PathTarget: mapping.IdentityExternalID, RepairStrategy: mapping.RepairDefault},
			{PathSource: "value", PathTarget: "c8y_Temperature.T.value", RepairStrategy: mapping.RepairDefault},
		},
		Active:         true,
		UseExternalID:  true,
		ExternalIDType: "c8y_Serial",
	}
}

func outboundMapping() *mapping.Mapping {
	return &mapping.Mapping{
		ID:                 "m-out",
		Identifier:         "m-out",
		Name:               "Temperature out",
		MappingTopic:       "measurements/out",
		PublishTopic:       "evt/out",
		TargetAPI:          mapping.APIMeasurement,
		Direction:          mapping.Outbound,
		MappingType:        mapping.TypeJSON,
		TransformationType: mapping.TransformationDefault,
		TargetTemplate:     `{}`,
		Substitutions: []mapping.Substitution{
			{PathSource: mapping.IdentityC8YSource, PathTarget: "deviceId", RepairStrategy: mapping.RepairDefault},
			{PathSource: "c8y_Temperature.T.value", PathTarget: "temp", RepairStrategy: mapping.RepairDefault},
		},
		Active: true,
	}
}

func buildTestServer(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:   testutil.NewMapRepository(temperatureMapping(), outboundMapping()),
		sender: &testutil.RecordingSender{},
	}
	env.repo.Templates = map[string]mapping.CodeTemplate{
		"greet": {ID: "greet", Name: "Greeting", TemplateType: mapping.TemplateShared, Code: "// {{ mappingName }} {{ greeting }}"},
	}

	clk := &testutil.FixedClock{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	logger := &testutil.NoopLogger{}
	traceBuf := trace.NewRingBuffer(50)

	extractor := processing.NewExtractor(expression.NewJSONata(32), &testutil.FakeCodeRunner{Err: errors.New("no code runner")}, time.Second)
	builder := processing.NewBuilder(&testutil.FakeIdentityResolver{IDs: map[string]string{"dev-1": "100"}}, time.Second)
	process := usecases.NewProcessMessageUseCase(extractor, builder, env.sender, clk, logger, traceBuf)

	env.srv = inboundhttp.NewServer(inboundhttp.UseCases{
		Load:    usecases.NewLoadMappingsUseCase(env.repo, logger),
		Save:    usecases.NewSaveMappingUseCase(env.repo, clk, logger),
		Delete:  usecases.NewDeleteMappingUseCase(env.repo, logger),
		Process: process,
		Batch:   usecases.NewProcessBatchUseCase(process, 2),
		Route:   usecases.NewRouteMessageUseCase(process, logger),
		Render:  usecases.NewRenderTemplateUseCase(env.repo, template.NewCodeTemplateRenderer(clk)),
	}, env.repo, traceBuf, logger)

	if err := env.srv.Reload(context.Background()); err != nil {
		t.Fatalf("initial reload failed: %v", err)
	}
	return env
}

func (env *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return v
}

type contextJSON struct {
	ID       string `json:"id"`
	Requests []struct {
		Method    string          `json:"method"`
		TargetAPI string          `json:"targetAPI"`
		Topic     string          `json:"topic"`
		SourceID  string          `json:"sourceId"`
		DryRun    bool            `json:"dryRun"`
		Body      json.RawMessage `json:"request"`
	} `json:"requests"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Filtered bool     `json:"filtered"`
}

func TestHealth(t *testing.T) {
	env := buildTestServer(t)

	rec := env.do(t, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["status"] != "ok" || got["mappings"] != float64(2) {
		t.Errorf("unexpected health %v", got)
	}
}

func TestMappings_List(t *testing.T) {
	env := buildTestServer(t)

	tests := []struct {
		name  string
		query string
		ids   []string
		total int
	}{
		{"all", "", []string{"m-out", "m-temp"}, 2},
		{"paged", "?size=1&page=2", []string{"m-temp"}, 2},
		{"search", "?q=OUT", []string{"m-out"}, 1},
		{"direction", "?direction=inbound", []string{"m-temp"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "GET", "/api/mappings"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			page := decode[services.Page[mapping.Mapping]](t, rec)
			if page.TotalItems != tt.total || len(page.Data) != len(tt.ids) {
				t.Fatalf("unexpected page %+v", page)
			}
			for i, id := range tt.ids {
				if page.Data[i].ID != id {
					t.Errorf("item %d: expected %s, got %s", i, id, page.Data[i].ID)
				}
			}
		})
	}
}

func TestMappings_CRUD(t *testing.T) {
	env := buildTestServer(t)

	rec := env.do(t, "GET", "/api/mappings/m-temp", "")
	if rec.Code != http.StatusOK || decode[mapping.Mapping](t, rec).Name != "Temperature" {
		t.Fatalf("unexpected get response %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "GET", "/api/mappings/nope", "")
	if rec.Code != http.StatusNotFound || decode[map[string]string](t, rec)["error"] != "not_found" {
		t.Fatalf("expected not_found, got %d %s", rec.Code, rec.Body.String())
	}

	created := temperatureMapping()
	created.ID = "m-new"
	created.MappingTopic = "new/+/temp"
	body, _ := json.Marshal(created)
	rec = env.do(t, "POST", "/api/mappings", string(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, env.do(t, "GET", "/health", "")); got["mappings"] != float64(3) {
		t.Errorf("expected index rebuilt with 3 mappings, got %v", got["mappings"])
	}

	rec = env.do(t, "POST", "/api/mappings", string(body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for duplicate create, got %d", rec.Code)
	}
	rec = env.do(t, "POST", "/api/mappings", "{")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for broken JSON, got %d", rec.Code)
	}

	created.Name = "Renamed"
	body, _ = json.Marshal(created)
	rec = env.do(t, "PUT", "/api/mappings/m-new", string(body))
	if rec.Code != http.StatusOK || decode[mapping.Mapping](t, rec).Name != "Renamed" {
		t.Fatalf("unexpected update response %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, "PUT", "/api/mappings/m-temp", string(body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for id mismatch, got %d", rec.Code)
	}

	rec = env.do(t, "DELETE", "/api/mappings/m-new", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = env.do(t, "DELETE", "/api/mappings/m-new", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestTestMapping(t *testing.T) {
	env := buildTestServer(t)

	rec := env.do(t, "POST", "/api/mappings/m-temp/test", `{"value":21.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	pc := decode[contextJSON](t, rec)
	if len(pc.Errors) != 0 {
		t.Fatalf("unexpected errors %v", pc.Errors)
	}
	if len(pc.Requests) != 1 || !pc.Requests[0].DryRun || pc.Requests[0].SourceID != "100" {
		t.Fatalf("unexpected requests %+v", pc.Requests)
	}
	if len(env.sender.Requests()) != 0 {
		t.Error("test without send must not dispatch")
	}

	rec = env.do(t, "POST", "/api/mappings/m-temp/test?send=true&topic=measure/dev-1/temp", `{"value":3}`)
	if pc := decode[contextJSON](t, rec); len(pc.Requests) != 1 || pc.Requests[0].DryRun {
		t.Errorf("expected a dispatched request, got %+v", pc.Requests)
	}
	if len(env.sender.Requests()) != 1 {
		t.Errorf("expected 1 sent request, got %d", len(env.sender.Requests()))
	}

	rec = env.do(t, "POST", "/api/mappings/m-temp/test", `not json`)
	if pc := decode[contextJSON](t, rec); len(pc.Errors) == 0 {
		t.Error("expected decode error in context")
	}

	rec = env.do(t, "POST", "/api/mappings/nope/test", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestTestMapping_Gating(t *testing.T) {
	env := buildTestServer(t)
	ext := temperatureMapping()
	ext.ID, ext.Identifier = "m-ext", "m-ext"
	ext.MappingType = mapping.TypeExtensionSource
	if err := env.repo.Save(context.Background(), ext); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"extension refused", "/api/mappings/m-ext/test", http.StatusConflict, "test_not_allowed"},
		{"extension batch refused", "/api/mappings/m-ext/batch", http.StatusConflict, "test_not_allowed"},
		{"unknown mode", "/api/mappings/m-temp/test?mode=edit", http.StatusBadRequest, "invalid_mode"},
		{"step out of range", "/api/mappings/m-temp/test?step=7", http.StatusBadRequest, "invalid_step"},
		{"step not a number", "/api/mappings/m-temp/batch?step=x", http.StatusBadRequest, "invalid_step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", tt.target, `[]`)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decode[map[string]string](t, rec); got["error"] != tt.code {
				t.Errorf("expected error %q, got %v", tt.code, got)
			}
		})
	}

	t.Run("outbound send downgraded", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/mappings/m-out/test?send=true&mode=create",
			`{"source":{"id":"100"},"c8y_Temperature":{"T":{"value":30}}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
		}
		pc := decode[contextJSON](t, rec)
		if len(pc.Requests) != 1 || !pc.Requests[0].DryRun {
			t.Errorf("expected a dry-run publish, got %+v", pc.Requests)
		}
		if len(pc.Warnings) == 0 || !strings.Contains(pc.Warnings[0], "test sending is not allowed") {
			t.Errorf("expected sending warning, got %v", pc.Warnings)
		}
		if len(env.sender.Requests()) != 0 {
			t.Error("outbound test run must not publish")
		}
	})
}

func TestBatchMapping(t *testing.T) {
	env := buildTestServer(t)

	body := `[
		{"topic":"measure/dev-1/temp","payload":{"value":1}},
		{"payload":"{\"value\":2}"},
		{"topic":"measure/dev-1/temp","payload":"garbage"}
	]`
	rec := env.do(t, "POST", "/api/mappings/m-temp/batch", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	results := decode[[]contextJSON](t, rec)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if len(results[0].Errors) != 0 || len(results[1].Errors) != 0 {
		t.Errorf("expected first two to succeed, got %v / %v", results[0].Errors, results[1].Errors)
	}
	if len(results[2].Errors) == 0 {
		t.Error("expected raw text payload to fail JSON decoding")
	}

	rec = env.do(t, "POST", "/api/mappings/m-temp/batch", `{"topic":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-array body, got %d", rec.Code)
	}
}

func TestStepper(t *testing.T) {
	env := buildTestServer(t)

	rec := env.do(t, "GET", "/api/mappings/m-temp/stepper?mode=read_only", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Config    map[string]any `json:"config"`
		Overrides []string       `json:"overrides"`
	}](t, rec)
	if got.Config["editorMode"] != "READ_ONLY" || got.Config["direction"] != "INBOUND" {
		t.Errorf("unexpected config %v", got.Config)
	}
	if got.Overrides == nil {
		t.Error("expected overrides list")
	}

	rec = env.do(t, "GET", "/api/mappings/m-temp/stepper?mode=sideways", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown mode, got %d", rec.Code)
	}
}

func TestCodeTemplates(t *testing.T) {
	env := buildTestServer(t)

	rec := env.do(t, "GET", "/api/code-templates", "")
	if list := decode[[]mapping.CodeTemplate](t, rec); len(list) != 1 || list[0].ID != "greet" {
		t.Fatalf("unexpected templates %+v", list)
	}

	rec = env.do(t, "POST", "/api/code-templates/greet/render", `{"mappingId":"m-temp","vars":{"greeting":"hi"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	got := decode[map[string]string](t, rec)
	if got["code"] != "// Temperature hi" {
		t.Errorf("unexpected code %q", got["code"])
	}
	if got["encoded"] != mapping.EncodeCode(got["code"]) {
		t.Errorf("unexpected encoded code %q", got["encoded"])
	}

	tests := []struct {
		name, target, body string
		status             int
	}{
		{"unknown template", "/api/code-templates/nope/render", `{}`, http.StatusNotFound},
		{"unknown mapping", "/api/code-templates/greet/render", `{"mappingId":"nope"}`, http.StatusNotFound},
		{"broken body", "/api/code-templates/greet/render", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, "POST", tt.target, tt.body); rec.Code != tt.status {
				t.Errorf("expected %d, got %d %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOutbound(t *testing.T) {
	env := buildTestServer(t)

	rec := env.do(t, "POST", "/api/outbound/measurement", `{"source":{"id":"7"},"c8y_Temperature":{"T":{"value":3}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	results := decode[[]contextJSON](t, rec)
	if len(results) != 1 || len(results[0].Requests) != 1 || results[0].Requests[0].Topic != "evt/out" {
		t.Fatalf("unexpected outbound results %s", rec.Body.String())
	}
	if sent := env.sender.Requests(); len(sent) != 1 || sent[0].Method != processing.MethodPublish {
		t.Errorf("expected one PUBLISH, got %+v", sent)
	}

	rec = env.do(t, "POST", "/api/outbound/teleport", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown API, got %d", rec.Code)
	}
}

func TestTrace(t *testing.T) {
	env := buildTestServer(t)
	env.do(t, "POST", "/api/mappings/m-temp/test", `{"value":1}`)
	env.do(t, "POST", "/api/mappings/m-temp/test", `broken`)
	env.do(t, "POST", "/api/outbound/MEASUREMENT", `{"source":{"id":"7"}}`)

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?last=1", 1},
		{"?mapping=m-temp", 2},
		{"?mapping=m-temp&failed=true", 1},
		{"?mapping=unknown", 0},
		{"?after=2", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, "GET", "/api/trace"+tt.query, "")
			if entries := decode[[]trace.Entry](t, rec); len(entries) != tt.want {
				t.Errorf("expected %d entries, got %d", tt.want, len(entries))
			}
		})
	}
}

func TestReload(t *testing.T) {
	env := buildTestServer(t)

	var rebuilt []int
	env.srv.OnRebuild(func(idx *services.MappingIndex) { rebuilt = append(rebuilt, idx.Len()) })

	extra := outboundMapping()
	extra.ID = "m-extra"
	env.repo.Save(context.Background(), extra)

	rec := env.do(t, "POST", "/api/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(rebuilt) != 1 || rebuilt[0] != 3 {
		t.Errorf("expected listener called with 3 mappings, got %v", rebuilt)
	}

	env.repo.LoadErr = errors.New("disk gone")
	rec = env.do(t, "POST", "/api/reload", "")
	if rec.Code != http.StatusInternalServerError || decode[map[string]string](t, rec)["error"] != "reload_failed" {
		t.Errorf("expected reload_failed, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	env := buildTestServer(t)

	rec := env.do(t, "GET", "/nowhere", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error, got %q", ct)
	}
}
