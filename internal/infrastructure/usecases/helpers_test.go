package usecases_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/domain/trace"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/expression"
	"github.com/sophialabs/mapforge/internal/infrastructure/usecases"
	"github.com/sophialabs/mapforge/internal/testutil"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	uc     *usecases.ProcessMessageUseCase
	sender *testutil.RecordingSender
	ids    *testutil.FakeIdentityResolver
	trace  *trace.RingBuffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sender: &testutil.RecordingSender{},
		ids:    &testutil.FakeIdentityResolver{IDs: map[string]string{"dev-1": "100"}},
		trace:  trace.NewRingBuffer(10),
	}
	extractor := processing.NewExtractor(expression.NewJSONata(32), &testutil.FakeCodeRunner{Err: errors.New("no code runner")}, time.Second)
	builder := processing.NewBuilder(h.ids, time.Second)
	h.uc = usecases.NewProcessMessageUseCase(extractor, builder, h.sender, &testutil.FixedClock{T: fixedNow}, &testutil.NoopLogger{}, h.trace)
	return h
}

func temperatureMapping() *mapping.Mapping {
	return &mapping.Mapping{
		ID:                 "m-temp",
		Identifier:         "m-temp",
		Name:               "Temperature",
		MappingTopic:       "measure/+/temp",
		TargetAPI:          mapping.APIMeasurement,
		Direction:          mapping.Inbound,
		MappingType:        mapping.TypeJSON,
		TransformationType: mapping.TransformationDefault,
		TargetTemplate:     `{"type":"c8y_Temperature","c8y_Temperature":{"T":{"value":0,"unit":"C"}}}`,
		Substitutions: []mapping.Substitution{
			{PathSource: "_TOPIC_LEVEL_[1]", PathTarget: mapping.IdentityExternalID, RepairStrategy: mapping.RepairDefault},
			{PathSource: "value", PathTarget: "c8y_Temperature.T.value", RepairStrategy: mapping.RepairDefault},
		},
		Active:                  true,
		UseExternalID:           true,
		ExternalIDType:          "c8y_Serial",
		CreateNonExistingDevice: true,
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
		Qos:                mapping.QosAtLeastOnce,
		Substitutions: []mapping.Substitution{
			{PathSource: mapping.IdentityC8YSource, PathTarget: "deviceId", RepairStrategy: mapping.RepairDefault},
			{PathSource: "c8y_Temperature.T.value", PathTarget: "temp", RepairStrategy: mapping.RepairDefault},
		},
		Active: true,
	}
}

func textOf(t *testing.T, v *jsonval.Value, path string) string {
	t.Helper()
	got, ok := jsonval.Lookup(v, path)
	if !ok {
		t.Fatalf("path %s not found in %s", path, v)
	}
	return got.Text()
}
