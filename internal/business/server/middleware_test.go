package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/metadata-collector/internal/config"
	"github.com/openkcm/metadata-collector/internal/openapi"
	"github.com/openkcm/metadata-collector/internal/pkce"
	"github.com/openkcm/metadata-collector/internal/session"
	sessionmock "github.com/openkcm/metadata-collector/internal/session/mock"
)

func TestNewSessionMiddleware(t *testing.T) {
	stored := session.Session{ID: "sid-1", AccessToken: "tok123", InstanceURL: "https://example.my.salesforce.com", Expiry: time.Now().Add(time.Hour)}

	tests := []struct {
		name        string
		operationID string
		repo        *sessionmock.Repository
		cookie      string
		wantSession *session.Session
		wantErr     bool
	}{
		{
			name:        "loads the session of the cookie",
			operationID: "StoreMetadata",
			repo:        sessionmock.NewInMemRepository(sessionmock.WithSession(stored)),
			cookie:      "sid-1",
			wantSession: &stored,
		},
		{
			name:        "starts a new session without a cookie",
			operationID: "Login",
			repo:        sessionmock.NewInMemRepository(),
		},
		{
			name:        "load failure",
			operationID: "Callback",
			repo:        sessionmock.NewInMemRepository(sessionmock.WithLoadError(errors.New("valkey unavailable"))),
			cookie:      "sid-1",
			wantErr:     true,
		},
		{
			name:        "root works without a session",
			operationID: "Root",
			repo:        sessionmock.NewInMemRepository(sessionmock.WithLoadError(errors.New("valkey unavailable"))),
			cookie:      "sid-1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := session.NewManager(tt.repo, pkce.Source{}, time.Hour, config.CookieTemplate{Name: cookieName})

			var (
				handlerCalled bool
				gotSession    *session.Session
				gotErr        error
			)
			next := func(ctx context.Context, _ http.ResponseWriter, _ *http.Request, _ interface{}) (interface{}, error) {
				handlerCalled = true
				gotSession, gotErr = sessionFromContext(ctx)
				return openapi.Root200TextResponse(welcomeText), nil
			}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: cookieName, Value: tt.cookie})
			}

			_, err := newSessionMiddleware(manager)(next, tt.operationID)(req.Context(), httptest.NewRecorder(), req, nil)

			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, handlerCalled)
				return
			}
			require.NoError(t, err)
			require.True(t, handlerCalled)

			switch {
			case tt.operationID == "Root":
				assert.ErrorIs(t, gotErr, errNoSession)
			case tt.wantSession != nil:
				require.NoError(t, gotErr)
				assert.Equal(t, tt.wantSession.AccessToken, gotSession.AccessToken)
			default:
				require.NoError(t, gotErr)
				assert.NotEmpty(t, gotSession.ID)
				assert.Empty(t, gotSession.AccessToken)
			}
		})
	}
}

func TestWriteRequestError(t *testing.T) {
	rec := httptest.NewRecorder()

	writeRequestError(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback", nil),
		&openapi.InvalidParamFormatError{ParamName: "code", Err: errors.New("bad escape")})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Invalid format for parameter code")
}
