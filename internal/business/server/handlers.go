package server

import (
	"context"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/metadata-collector/internal/serviceerr"
	"github.com/openkcm/metadata-collector/internal/session"
)

const (
	welcomeText        = "Welcome to the Salesforce Metadata App!"
	flowCompleteText   = "OAuth2 flow complete! You can now fetch metadata."
	metadataStoredText = "Metadata stored successfully!"
)

type SessionManager interface {
	Get(ctx context.Context, r *http.Request) (*session.Session, error)
	Save(ctx context.Context, w http.ResponseWriter, s *session.Session) error
}

type Authorizer interface {
	AuthURI(ctx context.Context, s *session.Session) (string, error)
	Exchange(ctx context.Context, s *session.Session, code string) error
}

type Collector interface {
	Collect(ctx context.Context, s session.Session) error
}

// Dependencies are the collaborators the HTTP handlers work with.
type Dependencies struct {
	Sessions  SessionManager
	Flow      Authorizer
	Collector Collector
}

// toErrorText logs err and maps it to the plain text body and status of the
// error response.
func toErrorText(ctx context.Context, err error) (body string, status int) {
	status, body = serviceerr.ToHTTP(err)
	if status >= http.StatusInternalServerError {
		slogctx.Error(ctx, "Request failed", "status", status, "error", err)
	} else {
		slogctx.Info(ctx, "Request rejected", "status", status, "error", err)
	}

	return body, status
}

// writeError answers requests that fail before an operation produced a
// response object, e.g. when the session cannot be loaded.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	body, status := toErrorText(ctx, err)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		slogctx.Error(ctx, "Failed to write response", "error", err)
	}
}
