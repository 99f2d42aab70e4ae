package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/domain/stepper"
	"github.com/sophialabs/mapforge/internal/domain/trace"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
	"github.com/sophialabs/mapforge/internal/infrastructure/services"
)

// ErrTestTransformationNotAllowed fails a test run of a mapping whose effective
// configuration forbids test transformations.
var ErrTestTransformationNotAllowed = errors.New("test transformation is not allowed for this mapping")

// Message is one payload to run through one mapping.
type Message struct {
	Mapping *mapping.Mapping
	Topic   string
	Payload []byte
	// Send dispatches the built requests; otherwise they are returned as a dry run.
	Send bool

	// Test marks a run started from the editor. The effective configuration of
	// the mapping in Mode then decides whether it may transform and send.
	Test bool
	Mode stepper.EditorMode
	// Step is the editor step the run starts from; nil is the test step.
	Step *int

	// RequireIdentifiers withholds dispatch when the identifier rule is broken.
	RequireIdentifiers bool
}

func (msg Message) effectiveConfig() stepper.Config {
	mode := msg.Mode
	if mode == "" {
		mode = stepper.ModeUpdate
	}
	return stepper.ForMapping(msg.Mapping, mode)
}

func (msg Message) step() int {
	if msg.Step == nil {
		return stepper.StepTestMapping
	}
	return *msg.Step
}

// CheckTestRun returns ErrTestTransformationNotAllowed when m may not be test
// transformed in mode.
func CheckTestRun(m *mapping.Mapping, mode stepper.EditorMode) error {
	if !(Message{Mapping: m, Mode: mode}).effectiveConfig().TestTransformationAllowed() {
		return testRunRefused(m)
	}
	return nil
}

func testRunRefused(m *mapping.Mapping) error {
	return fmt.Errorf("%w: %s %s mapping %s", ErrTestTransformationNotAllowed, m.Direction, m.MappingType, m.ID)
}

// ProcessMessageUseCase runs the transformation pipeline for a single message:
// decode, filter, extract, assemble, build and optionally dispatch.
type ProcessMessageUseCase struct {
	extractor *processing.Extractor
	builder   *processing.Builder
	sender    ports.Sender
	clock     ports.Clock
	logger    ports.Logger
	traceBuf  *trace.RingBuffer
	config    atomic.Pointer[mapping.ServiceConfiguration]
}

// NewProcessMessageUseCase creates a new use case.
func NewProcessMessageUseCase(
	extractor *processing.Extractor,
	builder *processing.Builder,
	sender ports.Sender,
	clock ports.Clock,
	logger ports.Logger,
	traceBuf *trace.RingBuffer,
) *ProcessMessageUseCase {
	uc := &ProcessMessageUseCase{
		extractor: extractor,
		builder:   builder,
		sender:    sender,
		clock:     clock,
		logger:    logger,
		traceBuf:  traceBuf,
	}
	uc.SetServiceConfiguration(mapping.DefaultServiceConfiguration())
	return uc
}

// SetServiceConfiguration replaces the runtime settings used by later runs.
func (uc *ProcessMessageUseCase) SetServiceConfiguration(cfg mapping.ServiceConfiguration) {
	uc.config.Store(&cfg)
}

// ServiceConfiguration returns the settings currently in effect.
func (uc *ProcessMessageUseCase) ServiceConfiguration() mapping.ServiceConfiguration {
	return *uc.config.Load()
}

// Execute runs msg and returns its processing context. Failures are recorded on
// the context; Execute itself never fails.
func (uc *ProcessMessageUseCase) Execute(ctx context.Context, msg Message) *processing.Context {
	started := uc.clock.Now()
	cfg := uc.ServiceConfiguration()
	pc := processing.NewContext(uuid.NewString(), msg.Mapping, msg.Topic, msg.Send)
	eff := msg.effectiveConfig()
	if !msg.Test || uc.admitTest(pc, eff) {
		uc.run(ctx, pc, msg, eff, cfg)
	}
	uc.record(pc, started)
	return pc
}

// admitTest applies the effective configuration to a test run. It reports
// whether the run may proceed.
func (uc *ProcessMessageUseCase) admitTest(pc *processing.Context, eff stepper.Config) bool {
	m := pc.Mapping
	if !eff.TestTransformationAllowed() {
		pc.Fail(testRunRefused(m))
		return false
	}
	if pc.SendPayload && !eff.TestSendingAllowed() {
		pc.SendPayload = false
		pc.Warn("test sending is not allowed for this mapping; requests are not sent")
	}
	if !eff.SubstitutionsAllowed() && !m.UsesCode() && len(m.Substitutions) > 0 {
		pc.Warn("this mapping type does not use declarative substitutions")
	}
	return true
}

func (uc *ProcessMessageUseCase) run(ctx context.Context, pc *processing.Context, msg Message, eff stepper.Config, cfg mapping.ServiceConfiguration) {
	m := pc.Mapping
	raw := msg.Payload
	budget := cfg.Budget()

	if m.Direction == mapping.Outbound && pc.SendPayload && !cfg.OutboundMappingEnabled {
		pc.SendPayload = false
		pc.Warn("outbound mapping is disabled; requests are not published")
	}

	payload, err := services.DecodePayload(m, raw)
	if err != nil {
		pc.Fail(fmt.Errorf("decode payload: %w", err))
		return
	}
	if m.Direction == mapping.Inbound {
		processing.AddTopicLevels(payload, pc.Topic)
	}
	pc.Payload = payload
	if cfg.LogPayload || m.Debug {
		uc.logger.Info("processing payload", "context", pc.ID, "mapping", m.ID, "topic", pc.Topic, "payload", payload.String())
	}

	pass, err := uc.filter(ctx, m, payload, raw, budget)
	if err != nil {
		pc.AddError(err)
		return
	}
	if !pass {
		pc.Filtered = true
		uc.logger.Debug("message filtered", "context", pc.ID, "mapping", m.ID, "filter", m.FilterMapping)
		return
	}

	cache, errs := uc.extractor.WithBudget(budget).Extract(ctx, m, pc.Topic, payload)
	pc.Cache = cache
	pc.AddErrors(errs)
	processing.AddDefaultTime(cache, m, uc.clock.Now())
	if cfg.LogSubstitution || m.Debug {
		for _, key := range cache.Keys() {
			for i, sv := range cache.Get(key) {
				uc.logger.Info("substitution", "context", pc.ID, "mapping", m.ID, "key", key, "index", i, "value", sv.Value.String(), "type", sv.Type)
			}
		}
	}
	pc.ProcessingType = processing.DetermineProcessingType(m, cache)

	pc.IdentifiersValid = processing.CheckIdentifiers(m, cache, eff.IdentifierCheckLenient(msg.step()))
	if !pc.IdentifiersValid {
		pc.Warn(identifierWarning(m))
		if pc.SendPayload && msg.RequireIdentifiers {
			pc.SendPayload = false
			pc.Warn("requests are not sent because the device identifier rule is not met")
		}
	}

	var template *jsonval.Value
	if m.TargetTemplate != "" {
		if template, err = jsonval.Parse([]byte(m.TargetTemplate)); err != nil {
			pc.Fail(fmt.Errorf("parse target template: %w", err))
			return
		}
	}
	payloads, pathErrs, err := processing.Assemble(cache, template)
	if err != nil {
		pc.Fail(err)
		return
	}
	pc.AddErrors(pathErrs)
	for _, p := range payloads {
		pc.Targets = append(pc.Targets, p.Clone())
	}
	if m.Direction == mapping.Outbound && len(payloads) > 0 {
		pc.ResolvedPublishTopic = processing.ResolvePublishTopic(m, payloads[0])
	}
	if len(payloads) > 0 {
		pc.DeviceName = textAt(payloads[0], mapping.ContextDeviceName)
		pc.DeviceType = textAt(payloads[0], mapping.ContextDeviceType)
	}

	pc.Requests = uc.builder.WithBudget(budget).Build(ctx, m, payloads, pc.SendPayload)
	for _, req := range pc.Requests {
		if !req.Hidden && req.SourceID != "" {
			pc.SourceID = req.SourceID
			break
		}
	}

	if pc.SendPayload {
		uc.dispatch(ctx, pc, budget)
	}
}

func (uc *ProcessMessageUseCase) filter(ctx context.Context, m *mapping.Mapping, payload *jsonval.Value, raw []byte, budget time.Duration) (bool, error) {
	if services.IsXPathFilter(m) {
		return services.FilterXML(m, raw)
	}
	return uc.extractor.WithBudget(budget).Filter(ctx, m, payload)
}

// dispatch sends the requests in order. A request waits for its predecessor and
// inherits its failure or created device id.
func (uc *ProcessMessageUseCase) dispatch(ctx context.Context, pc *processing.Context, budget time.Duration) {
	for i, req := range pc.Requests {
		if req.Failed() {
			continue
		}
		if req.Predecessor != processing.NoPredecessor {
			if !processing.LinkPredecessor(req, pc.Requests[req.Predecessor]) {
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			req.Error = err.Error()
			continue
		}

		sendCtx, cancel := processing.WithBudget(ctx, budget)
		resp, err := uc.sender.Send(sendCtx, req)
		cancel()
		if err != nil {
			req.Error = err.Error()
			uc.logger.Warn("request failed", "context", pc.ID, "mapping", pc.Mapping.ID, "index", i, "method", req.Method, "api", req.TargetAPI, "error", err)
			continue
		}
		req.Response = resp
		if req.SourceID == "" && req.TargetAPI == mapping.APIInventory {
			req.SourceID = textAt(resp, "id")
		}
	}
}

func (uc *ProcessMessageUseCase) record(pc *processing.Context, started time.Time) {
	now := uc.clock.Now()
	entry := trace.Entry{
		ID:             pc.ID,
		Timestamp:      started,
		Duration:       now.Sub(started),
		MappingID:      pc.Mapping.ID,
		MappingName:    pc.Mapping.Name,
		Direction:      string(pc.Mapping.Direction),
		Topic:          pc.Topic,
		ProcessingType: string(pc.ProcessingType),
		Filtered:       pc.Filtered,
		DryRun:         !pc.SendPayload,
		Requests:       make([]trace.RequestResult, 0, len(pc.Requests)),
		Errors:         pc.ErrorMessages(),
		Warnings:       pc.Warnings,
	}
	for _, req := range pc.VisibleRequests() {
		entry.Requests = append(entry.Requests, trace.RequestResult{
			Method:    req.Method,
			TargetAPI: string(req.TargetAPI),
			Topic:     req.Topic,
			SourceID:  req.SourceID,
			Error:     req.Error,
		})
	}
	if uc.traceBuf != nil {
		uc.traceBuf.Add(entry)
	}

	if entry.Failed() {
		uc.logger.Warn("mapping processed with errors", "context", pc.ID, "mapping", pc.Mapping.ID, "topic", pc.Topic, "errors", len(entry.Errors))
		return
	}
	uc.logger.Debug("mapping processed", "context", pc.ID, "mapping", pc.Mapping.ID, "topic", pc.Topic,
		"requests", len(entry.Requests), "processing_type", pc.ProcessingType, "filtered", pc.Filtered)
}

func identifierWarning(m *mapping.Mapping) string {
	want := "exactly one substitution"
	if m.Direction == mapping.Outbound {
		want = "at least one substitution"
	}
	return fmt.Sprintf("device identifier rule not met: expected %s targeting %s, found %d",
		want, mapping.GenericDeviceIdentifier(m), mapping.CountDeviceIdentifiers(m))
}

func textAt(v *jsonval.Value, path string) string {
	got, ok := jsonval.Lookup(v, path)
	if !ok || got.IsNull() {
		return ""
	}
	return got.Text()
}
