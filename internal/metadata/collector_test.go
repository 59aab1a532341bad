package metadata_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/metadata-collector/internal/metadata"
	metadatamock "github.com/openkcm/metadata-collector/internal/metadata/mock"
	"github.com/openkcm/metadata-collector/internal/serviceerr"
	"github.com/openkcm/metadata-collector/internal/session"
)

type resourceAPI struct {
	*httptest.Server

	calls      atomic.Int32
	authHeader atomic.Value
	path       atomic.Value
}

func newResourceAPI(t *testing.T, status int, body string) *resourceAPI {
	t.Helper()

	api := &resourceAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.calls.Add(1)
		api.authHeader.Store(r.Header.Get("Authorization"))
		api.path.Store(r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(api.Close)

	return api
}

func TestCollector_Collect(t *testing.T) {
	storageErr := errors.New("permission denied for table metadata")

	tests := []struct {
		name        string
		status      int
		body        string
		storeOpts   []metadatamock.StoreOption
		wantRecords []metadata.Record
		wantErr     error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "empty listing",
			status:      http.StatusOK,
			body:        `{"sobjects":[]}`,
			wantRecords: []metadata.Record{{Payload: `{"sobjects":[]}`}},
		},
		{
			name:        "whitespace is compacted, key order kept",
			status:      http.StatusOK,
			body:        "{\n  \"sobjects\": [ {\"name\": \"Account\", \"custom\": false} ],\n  \"encoding\": \"UTF-8\"\n}",
			wantRecords: []metadata.Record{{Payload: `{"sobjects":[{"name":"Account","custom":false}],"encoding":"UTF-8"}`}},
		},
		{
			name:        "escapes and number forms are stored as sent",
			status:      http.StatusOK,
			body:        `{"label": "Caf\u00e9", "version": 1.0}`,
			wantRecords: []metadata.Record{{Payload: `{"label":"Caf\u00e9","version":1.0}`}},
		},
		{
			name:        "resource api failure",
			status:      http.StatusUnauthorized,
			body:        `[{"message":"Session expired or invalid","errorCode":"INVALID_SESSION_ID"}]`,
			wantErr:     serviceerr.ErrResourceFetch,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "fetch failed: unexpected status 401",
		},
		{
			name:       "not json",
			status:     http.StatusOK,
			body:       `<html>maintenance</html>`,
			wantErr:    serviceerr.ErrResourceFetch,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:        "storage failure",
			status:      http.StatusOK,
			body:        `{"sobjects":[]}`,
			storeOpts:   []metadatamock.StoreOption{metadatamock.WithInsertError(storageErr)},
			wantErr:     serviceerr.ErrStorageWrite,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "store failed: permission denied for table metadata",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newResourceAPI(t, tt.status, tt.body)
			store := metadatamock.NewStore(tt.storeOpts...)
			collector := metadata.NewCollector(store, metadata.WithHTTPClient(api.Client()))

			err := collector.Collect(t.Context(), session.Session{
				AccessToken: "tok123",
				InstanceURL: api.URL,
			})

			assert.Equal(t, int32(1), api.calls.Load())
			assert.Equal(t, "Bearer tok123", api.authHeader.Load())
			assert.Equal(t, metadata.DefaultResourcePath, api.path.Load())

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)

				status, msg := serviceerr.ToHTTP(err)
				assert.Equal(t, tt.wantStatus, status)
				if tt.wantMessage != "" {
					assert.Equal(t, tt.wantMessage, msg)
				}
				assert.Empty(t, store.Records())

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantRecords, store.Records())
		})
	}
}

func TestCollector_NotAuthenticated(t *testing.T) {
	tests := []struct {
		name string
		sess session.Session
	}{
		{name: "fresh session", sess: session.Session{ID: "sid"}},
		{name: "awaiting callback", sess: session.Session{ID: "sid", CodeVerifier: "verifier"}},
		{name: "token without instance", sess: session.Session{ID: "sid", AccessToken: "tok123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newResourceAPI(t, http.StatusOK, `{}`)
			store := metadatamock.NewStore()
			collector := metadata.NewCollector(store, metadata.WithHTTPClient(api.Client()))

			err := collector.Collect(t.Context(), tt.sess)

			require.ErrorIs(t, err, serviceerr.ErrNotAuthenticated)
			status, msg := serviceerr.ToHTTP(err)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "must complete OAuth flow first", msg)
			assert.Zero(t, api.calls.Load())
			assert.Empty(t, store.Records())
		})
	}
}

func TestCollector_ResourcePath(t *testing.T) {
	tests := []struct {
		name         string
		resourcePath string
		instanceSfx  string
		wantPath     string
	}{
		{
			name:         "leading slash",
			resourcePath: "/services/data/v60.0/sobjects",
			wantPath:     "/services/data/v60.0/sobjects",
		},
		{
			name:         "without leading slash",
			resourcePath: "services/data/v60.0/sobjects",
			wantPath:     "/services/data/v60.0/sobjects",
		},
		{
			name:         "instance url with trailing slash",
			resourcePath: "/services/data/v60.0/sobjects",
			instanceSfx:  "/",
			wantPath:     "/services/data/v60.0/sobjects",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newResourceAPI(t, http.StatusOK, `{"sobjects":[]}`)
			collector := metadata.NewCollector(metadatamock.NewStore(),
				metadata.WithHTTPClient(api.Client()),
				metadata.WithResourcePath(tt.resourcePath),
			)

			require.NoError(t, collector.Collect(t.Context(), session.Session{AccessToken: "tok", InstanceURL: api.URL + tt.instanceSfx}))
			assert.Equal(t, tt.wantPath, api.path.Load())
		})
	}
}
