package oauth

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// maxTokenResponse matches the limit x/oauth2 applies to token responses.
const maxTokenResponse = 1 << 20

// jsonTokenTransport labels JSON token responses as application/json.
// x/oauth2 parses text/plain and unlabelled bodies as form data, while
// identity providers are known to send JSON with either.
type jsonTokenTransport struct {
	base http.RoundTripper
}

func (t jsonTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil || resp.Body == nil {
		return resp, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if isJSONObject(body) {
		resp.Header.Set("Content-Type", "application/json")
	}

	return resp, nil
}

func isJSONObject(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
