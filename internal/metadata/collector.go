// Package metadata fetches the sObject metadata listing with the access
// token of a session and persists it as an opaque JSON document.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/metadata-collector/internal/serviceerr"
	"github.com/openkcm/metadata-collector/internal/session"
)

const DefaultResourcePath = "/services/data/v57.0/sobjects"

// maxErrorBody bounds how much of a failed response ends up in the log.
const maxErrorBody = 4 << 10

var ErrInvalidPayload = errors.New("response is not valid JSON")

type Collector struct {
	store        Store
	resourcePath string
	httpClient   *http.Client
}

type CollectorOption func(*Collector)

// WithResourcePath overrides the path fetched relative to the instance URL.
func WithResourcePath(path string) CollectorOption {
	return func(c *Collector) {
		if path != "" {
			c.resourcePath = path
		}
	}
}

// WithHTTPClient sets the base client. Its transport and timeout are kept,
// the bearer token is added on top.
func WithHTTPClient(client *http.Client) CollectorOption {
	return func(c *Collector) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewCollector(store Store, opts ...CollectorOption) *Collector {
	c := &Collector{
		store:        store,
		resourcePath: DefaultResourcePath,
		httpClient:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Collect fetches the resource for the authenticated session s and inserts
// it into the store as a single record.
func (c *Collector) Collect(ctx context.Context, s session.Session) error {
	if s.AccessToken == "" || s.InstanceURL == "" {
		return serviceerr.ErrNotAuthenticated
	}

	body, err := c.fetch(ctx, s)
	if err != nil {
		return serviceerr.ErrResourceFetch.Wrap(err)
	}

	// Only insignificant whitespace is dropped, the document otherwise stays
	// byte for byte as the resource API sent it.
	var payload bytes.Buffer
	if err := json.Compact(&payload, body); err != nil {
		return serviceerr.ErrResourceFetch.Wrap(errors.Join(ErrInvalidPayload, err))
	}

	if err := c.store.Insert(ctx, Record{Payload: payload.String()}); err != nil {
		slogctx.Error(ctx, "Failed to store metadata", "error", err)
		return serviceerr.ErrStorageWrite.Wrap(err)
	}

	slogctx.Info(ctx, "Metadata stored", "instanceURL", s.InstanceURL, "bytes", payload.Len())

	return nil
}

func (c *Collector) fetch(ctx context.Context, s session.Session) ([]byte, error) {
	endpoint, err := url.JoinPath(s.InstanceURL, c.resourcePath)
	if err != nil {
		return nil, fmt.Errorf("joining instance url and resource path: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.bearerClient(ctx, s.AccessToken).Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", c.resourcePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slogctx.Error(ctx, "Resource API returned an error",
			"status", resp.StatusCode,
			"body", string(errBody),
		)

		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, nil
}

func (c *Collector) bearerClient(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = c.httpClient.Timeout

	return client
}
