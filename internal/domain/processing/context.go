package processing

import (
	"strconv"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// ProcessingType describes the device/value multiplicity of a run.
type ProcessingType string

const (
	ProcessingUndefined         ProcessingType = "UNDEFINED"
	OneDeviceOneValue           ProcessingType = "ONE_DEVICE_ONE_VALUE"
	OneDeviceMultipleValue      ProcessingType = "ONE_DEVICE_MULTIPLE_VALUE"
	MultipleDeviceOneValue      ProcessingType = "MULTIPLE_DEVICE_ONE_VALUE"
	MultipleDeviceMultipleValue ProcessingType = "MULTIPLE_DEVICE_MULTIPLE_VALUE"
)

// Context is the state of one execution. It is owned by a single goroutine.
type Context struct {
	ID                   string           `json:"id"`
	Mapping              *mapping.Mapping `json:"mapping"`
	Topic                string           `json:"topic"`
	ResolvedPublishTopic string           `json:"resolvedPublishTopic,omitempty"`
	ProcessingType       ProcessingType   `json:"processingType"`
	Payload              *jsonval.Value   `json:"payload,omitempty"`
	Cache                *Cache           `json:"processingCache"`
	Targets              []*jsonval.Value `json:"targets,omitempty"`
	Requests             []*Request       `json:"requests"`
	Errors               []error          `json:"-"`
	Warnings             []string         `json:"warnings,omitempty"`
	SendPayload          bool             `json:"sendPayload"`
	SourceID             string           `json:"sourceId,omitempty"`
	DeviceName           string           `json:"deviceName,omitempty"`
	DeviceType           string           `json:"deviceType,omitempty"`
	IdentifiersValid     bool             `json:"identifiersValid"`
	Filtered             bool             `json:"filtered,omitempty"`
	// Err is set when the whole context failed.
	Err error `json:"-"`
}

// NewContext starts an execution on a private copy of m.
func NewContext(id string, m *mapping.Mapping, topic string, sendPayload bool) *Context {
	return &Context{
		ID:             id,
		Mapping:        m.Clone(),
		Topic:          topic,
		ProcessingType: ProcessingUndefined,
		Cache:          NewCache(),
		SendPayload:    sendPayload,
	}
}

// AddError records a non-fatal error.
func (c *Context) AddError(err error) {
	if err != nil {
		c.Errors = append(c.Errors, err)
	}
}

// AddErrors records several non-fatal errors.
func (c *Context) AddErrors(errs []error) {
	for _, err := range errs {
		c.AddError(err)
	}
}

// Warn records a warning.
func (c *Context) Warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

// Fail marks the whole context as failed.
func (c *Context) Fail(err error) {
	c.Err = err
}

// Failed reports whether the context failed as a whole.
func (c *Context) Failed() bool { return c.Err != nil }

// VisibleRequests returns the requests not flagged hidden, in order.
func (c *Context) VisibleRequests() []*Request {
	var out []*Request
	for _, r := range c.Requests {
		if !r.Hidden {
			out = append(out, r)
		}
	}
	return out
}

// FailedRequests counts requests carrying an error.
func (c *Context) FailedRequests() int {
	n := 0
	for _, r := range c.Requests {
		if r.Failed() {
			n++
		}
	}
	return n
}

// ErrorMessages aggregates context and request errors for presentation.
func (c *Context) ErrorMessages() []string {
	var out []string
	if c.Err != nil {
		out = append(out, c.Err.Error())
	}
	for _, err := range c.Errors {
		out = append(out, err.Error())
	}
	for i, r := range c.Requests {
		if r.Failed() && !r.Hidden {
			out = append(out, "request "+strconv.Itoa(i)+": "+r.Error)
		}
	}
	return out
}
