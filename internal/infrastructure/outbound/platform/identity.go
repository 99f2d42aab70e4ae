package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/processing"
)

var _ processing.IdentityResolver = (*IdentityAPI)(nil)

// IdentityAPI resolves and registers external ids through the identity API.
type IdentityAPI struct {
	client *Client
}

// NewIdentityAPI creates an identity API bound to client.
func NewIdentityAPI(client *Client) *IdentityAPI {
	return &IdentityAPI{client: client}
}

// ResolveExternalID looks up the managed object registered under externalID.
func (a *IdentityAPI) ResolveExternalID(ctx context.Context, idType, externalID string) (string, bool, error) {
	path := "/identity/externalIds/" + url.PathEscape(idType) + "/" + url.PathEscape(externalID)
	resp, err := a.client.Do(ctx, "GET", path, nil)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	id, ok := jsonval.Lookup(resp, "managedObject.id")
	if !ok || id.IsNull() || id.Text() == "" {
		return "", false, fmt.Errorf("identity response for %s %q has no managedObject.id", idType, externalID)
	}
	return id.Text(), true, nil
}

// RegisterExternalID links externalID to the managed object deviceID.
func (a *IdentityAPI) RegisterExternalID(ctx context.Context, deviceID, idType, externalID string) error {
	body := jsonval.Object(
		jsonval.Field{Key: "externalId", Value: jsonval.String(externalID)},
		jsonval.Field{Key: "type", Value: jsonval.String(idType)},
	)
	_, err := a.client.Do(ctx, "POST", "/identity/globalIds/"+url.PathEscape(deviceID)+"/externalIds", body)
	return err
}
