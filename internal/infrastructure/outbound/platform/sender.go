package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

// IdentityCache learns identities registered while sending.
type IdentityCache interface {
	Remember(idType, externalID, deviceID string)
}

// SendLimits throttles requests per target API.
type SendLimits struct {
	Rate  float64
	Burst int
}

var _ ports.Sender = (*Sender)(nil)

// Sender delivers INBOUND requests to the platform REST API.
type Sender struct {
	client   *Client
	identity *IdentityAPI
	limiter  ports.RateLimiter
	limits   SendLimits
	cache    IdentityCache
}

// NewSender creates a sender. limiter may be nil for unthrottled sends.
func NewSender(client *Client, limiter ports.RateLimiter, limits SendLimits) *Sender {
	return &Sender{
		client:   client,
		identity: NewIdentityAPI(client),
		limiter:  limiter,
		limits:   limits,
	}
}

// WithIdentityCache makes the sender report external ids it registers.
func (s *Sender) WithIdentityCache(cache IdentityCache) *Sender {
	s.cache = cache
	return s
}

// Send posts or puts req and returns the platform response. Devices created
// for an external id get that id registered.
func (s *Sender) Send(ctx context.Context, req *processing.Request) (*jsonval.Value, error) {
	path := req.TargetAPI.Path()
	if path == "" {
		return nil, fmt.Errorf("target API %s cannot be sent to", req.TargetAPI)
	}
	body := req.Body

	switch req.Method {
	case processing.MethodPost:
	case processing.MethodPut, processing.MethodPatch:
		if req.SourceID == "" {
			return nil, errors.New("update without a device id")
		}
		path += "/" + url.PathEscape(req.SourceID)
		body = body.Clone()
		body.Remove("id")
	default:
		return nil, fmt.Errorf("method %s is not supported by the platform sender", req.Method)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, "api:"+string(req.TargetAPI), s.limits.Rate, s.limits.Burst); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := s.client.Do(ctx, req.Method, path, body)
	if err != nil {
		return nil, err
	}

	if req.TargetAPI == mapping.APIInventory && req.Method == processing.MethodPost && req.ExternalID != "" && req.ExternalIDType != "" {
		id, ok := jsonval.Lookup(resp, "id")
		if !ok || id.Text() == "" {
			return resp, errors.New("created device response has no id")
		}
		if err := s.identity.RegisterExternalID(ctx, id.Text(), req.ExternalIDType, req.ExternalID); err != nil {
			return resp, fmt.Errorf("register external id %s %q: %w", req.ExternalIDType, req.ExternalID, err)
		}
		if s.cache != nil {
			s.cache.Remember(req.ExternalIDType, req.ExternalID, id.Text())
		}
	}
	return resp, nil
}
