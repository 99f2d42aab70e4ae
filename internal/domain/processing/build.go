package processing

import (
	"context"
	"fmt"
	"time"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// DefaultDeviceType is the type given to implicitly created devices.
const DefaultDeviceType = "c8y_GeneratedDevice"

// IdentityResolver looks up the platform id registered for an external id.
type IdentityResolver interface {
	ResolveExternalID(ctx context.Context, idType, externalID string) (deviceID string, found bool, err error)
}

// Builder turns assembled payloads into requests.
type Builder struct {
	identity IdentityResolver
	budget   time.Duration
}

// NewBuilder creates a builder. budget bounds each identity lookup; zero disables it.
func NewBuilder(identity IdentityResolver, budget time.Duration) *Builder {
	return &Builder{identity: identity, budget: budget}
}

// WithBudget returns a copy of b using a different lookup budget.
func (b *Builder) WithBudget(budget time.Duration) *Builder {
	c := *b
	c.budget = budget
	return &c
}

// Build produces the requests for payloads in order. A request that cannot be built
// carries its error; siblings are unaffected. Payloads are consumed and must not be
// reused by the caller.
func (b *Builder) Build(ctx context.Context, m *mapping.Mapping, payloads []*jsonval.Value, sendPayload bool) []*Request {
	var out []*Request
	for _, p := range payloads {
		if m.Direction == mapping.Outbound {
			out = append(out, b.outbound(m, p, sendPayload))
			continue
		}
		out = b.inbound(ctx, out, m, p, sendPayload)
	}
	return out
}

func (b *Builder) outbound(m *mapping.Mapping, p *jsonval.Value, sendPayload bool) *Request {
	topic := ResolvePublishTopic(m, p)
	req := &Request{
		Predecessor: NoPredecessor,
		Method:      MethodPublish,
		TargetAPI:   m.TargetAPI,
		Topic:       topic,
		Qos:         m.Qos,
		SourceID:    textAt(p, mapping.IdentityC8YSource),
		DryRun:      !sendPayload,
	}
	StripReserved(p)
	req.Body = p
	if topic == "" {
		req.Error = "no publish topic configured"
	}
	return req
}

func (b *Builder) inbound(ctx context.Context, out []*Request, m *mapping.Mapping, p *jsonval.Value, sendPayload bool) []*Request {
	externalID := textAt(p, mapping.IdentityExternalID)
	sourceID := textAt(p, mapping.IdentityC8YSource)
	deviceName := textAt(p, mapping.ContextDeviceName)
	deviceType := textAt(p, mapping.ContextDeviceType)
	StripReserved(p)

	req := &Request{
		Predecessor: NoPredecessor,
		Method:      MethodPost,
		TargetAPI:   m.TargetAPI,
		Body:        p,
		DryRun:      !sendPayload,
	}

	found := sourceID != ""
	if mapping.GenericDeviceIdentifier(m) == mapping.IdentityExternalID {
		req.ExternalIDType = m.ExternalIDType
		req.ExternalID = externalID
		if externalID == "" {
			req.Error = fmt.Sprintf("payload defines no value for %s", mapping.IdentityExternalID)
			return append(out, req)
		}
		id, ok, err := b.resolve(ctx, m.ExternalIDType, externalID)
		if err != nil {
			req.Error = fmt.Sprintf("identity lookup for %s %q failed: %v", m.ExternalIDType, externalID, err)
			return append(out, req)
		}
		sourceID, found = id, ok
	}
	req.SourceID = sourceID

	// A resolved device is replaced with updateExistingDevice and merged into
	// without it.
	if m.TargetAPI == mapping.APIInventory {
		switch {
		case !found:
			req.Method = MethodPost
		case m.UpdateExistingDevice:
			req.Method = MethodPut
		default:
			req.Method = MethodPatch
		}
		return append(out, req)
	}

	if found {
		if err := jsonval.Set(p, m.TargetAPI.Identifier(), jsonval.String(sourceID), true); err != nil {
			req.Error = err.Error()
		}
		return append(out, req)
	}

	if externalID == "" {
		req.Error = fmt.Sprintf("payload defines no value for %s", mapping.IdentityC8YSource)
		return append(out, req)
	}

	implicit := implicitDevice(m, externalID, deviceName, deviceType, sendPayload)
	out = append(out, implicit)
	req.Predecessor = len(out) - 1
	if implicit.Failed() {
		req.Error = "unresolved device identity"
	}
	return append(out, req)
}

func (b *Builder) resolve(ctx context.Context, idType, externalID string) (string, bool, error) {
	if b.identity == nil {
		return "", false, nil
	}
	lookupCtx, cancel := WithBudget(ctx, b.budget)
	defer cancel()
	id, found, err := b.identity.ResolveExternalID(lookupCtx, idType, externalID)
	if err != nil {
		return "", false, asTimeout(err)
	}
	return id, found, nil
}

func implicitDevice(m *mapping.Mapping, externalID, name, typ string, sendPayload bool) *Request {
	if typ == "" {
		typ = DefaultDeviceType
	}
	if name == "" {
		name = "device_" + m.ExternalIDType + "_" + externalID
	}
	body := jsonval.Object(
		jsonval.Field{Key: "c8y_IsDevice", Value: jsonval.Object()},
		jsonval.Field{Key: "name", Value: jsonval.String(name)},
		jsonval.Field{Key: "type", Value: jsonval.String(typ)},
		jsonval.Field{Key: "d11r_device_generatedType", Value: jsonval.Object()},
	)
	req := &Request{
		Predecessor:    NoPredecessor,
		Method:         MethodPost,
		TargetAPI:      mapping.APIInventory,
		ExternalIDType: m.ExternalIDType,
		ExternalID:     externalID,
		Body:           body,
		Hidden:         !m.CreateNonExistingDevice,
		DryRun:         !sendPayload,
	}
	if !m.CreateNonExistingDevice {
		req.Error = fmt.Sprintf("device with %s %q does not exist; enable createNonExistingDevice to create it", m.ExternalIDType, externalID)
	}
	return req
}

// LinkPredecessor carries the outcome of pred into req: a failed predecessor fails
// req, a created device id becomes req's source id. It reports whether req may proceed.
func LinkPredecessor(req, pred *Request) bool {
	if pred.Failed() {
		if req.Error == "" {
			req.Error = "predecessor request failed: " + pred.Error
		}
		return false
	}
	id := textAt(pred.Response, "id")
	if id == "" {
		return true
	}
	req.SourceID = id
	if req.TargetAPI != mapping.APIInventory {
		if err := jsonval.Set(req.Body, req.TargetAPI.Identifier(), jsonval.String(id), true); err != nil {
			req.Error = err.Error()
			return false
		}
	}
	return true
}

func textAt(v *jsonval.Value, path string) string {
	got, ok := jsonval.Lookup(v, path)
	if !ok || got.IsNull() {
		return ""
	}
	return got.Text()
}
