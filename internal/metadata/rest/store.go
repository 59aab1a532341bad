// Package metadatarest persists metadata records through a PostgREST
// endpoint, as exposed by Supabase under /rest/v1.
package metadatarest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/openkcm/metadata-collector/internal/metadata"
)

const restPath = "/rest/v1/"

type row struct {
	JSONData string `json:"json_data"`
}

// apiError is the error document returned by PostgREST.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return e.Message
	}

	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

type Store struct {
	endpoint string
	key      string
	client   *http.Client
}

var _ = metadata.Store(&Store{})

// NewStore returns a store inserting into table below baseURL. The service
// key is sent both as apikey and as bearer token.
func NewStore(baseURL, key, table string, httpClient *http.Client) (*Store, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if key == "" {
		return nil, errors.New("api key is empty")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}))
	client.Timeout = httpClient.Timeout

	return &Store{
		endpoint: strings.TrimSuffix(baseURL, "/") + restPath + url.PathEscape(table),
		key:      key,
		client:   client,
	}, nil
}

func (s *Store) Insert(ctx context.Context, rec metadata.Record) error {
	body, err := json.Marshal([]row{{JSONData: rec.Payload}})
	if err != nil {
		return fmt.Errorf("encoding row: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending insert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	apiErr := &apiError{}
	if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
		apiErr = &apiError{Message: strings.TrimSpace(string(respBody))}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return fmt.Errorf("inserting metadata: status %d: %w", resp.StatusCode, apiErr)
}
