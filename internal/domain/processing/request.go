package processing

import (
	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// Request methods. Publish is used for OUTBOUND broker messages.
const (
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodPublish = "PUBLISH"
)

// NoPredecessor marks a request that depends on no other request.
const NoPredecessor = -1

// Request is one assembled request. Error is set on failure without affecting siblings.
type Request struct {
	Predecessor    int            `json:"predecessor"`
	Method         string         `json:"method"`
	SourceID       string         `json:"sourceId,omitempty"`
	ExternalIDType string         `json:"externalIdType,omitempty"`
	ExternalID     string         `json:"externalId,omitempty"`
	TargetAPI      mapping.API    `json:"targetAPI"`
	Topic          string         `json:"topic,omitempty"`
	Qos            mapping.Qos    `json:"qos,omitempty"`
	Body           *jsonval.Value `json:"request"`
	Response       *jsonval.Value `json:"response,omitempty"`
	Error          string         `json:"error,omitempty"`
	Hidden         bool           `json:"hidden,omitempty"`
	DryRun         bool           `json:"dryRun,omitempty"`
}

// Failed reports whether an error was recorded.
func (r *Request) Failed() bool { return r.Error != "" }

// Sent reports whether a response was written back.
func (r *Request) Sent() bool { return r.Response != nil }
