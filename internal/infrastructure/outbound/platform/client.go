// Package platform talks to the device management platform REST API.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("platform: not found")

// DefaultTimeout bounds a single platform call when the context has no deadline.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is quoted in errors.
const maxErrorBody = 512

// Config holds the platform endpoint and credentials.
type Config struct {
	BaseURL  string
	Tenant   string
	Username string
	Password string
	Timeout  time.Duration
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client performs JSON requests against the platform.
type Client struct {
	baseURL string
	user    string
	pass    string
	http    *http.Client
}

// NewClient creates a client. Username is sent as "<tenant>/<username>" when a
// tenant is configured.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	user := cfg.Username
	if cfg.Tenant != "" && user != "" {
		user = cfg.Tenant + "/" + user
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		user:    user,
		pass:    cfg.Password,
		http:    &http.Client{Timeout: timeout},
	}
}

// Do sends body (may be nil) and decodes the JSON response. Empty responses
// decode to null.
func (c *Client) Do(ctx context.Context, method, path string, body *jsonval.Value) (*jsonval.Value, error) {
	var reader io.Reader
	if body != nil {
		data, err := body.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("platform: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("platform: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("platform: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(data)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: msg}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return jsonval.Null(), nil
	}
	v, err := jsonval.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("platform: decode %s %s: %w", method, path, err)
	}
	return v, nil
}
