package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/metadata-collector/internal/config"
	"github.com/openkcm/metadata-collector/internal/metadata"
	metadatamock "github.com/openkcm/metadata-collector/internal/metadata/mock"
	"github.com/openkcm/metadata-collector/internal/oauth"
	"github.com/openkcm/metadata-collector/internal/pkce"
	"github.com/openkcm/metadata-collector/internal/session"
	sessionmock "github.com/openkcm/metadata-collector/internal/session/mock"
)

const (
	cookieName   = "sid"
	authorizeURL = "https://login.example.com/services/oauth2/authorize"
)

// provider fakes both the token endpoint and the resource API of the
// identity provider.
type provider struct {
	*httptest.Server

	tokenCalls    atomic.Int32
	resourceCalls atomic.Int32
	lastVerifier  atomic.Value

	tokenStatus    atomic.Int32
	resourceStatus atomic.Int32
	resourceBody   atomic.Value
}

func newProvider(t *testing.T) *provider {
	t.Helper()

	p := &provider{}
	p.tokenStatus.Store(http.StatusOK)
	p.resourceStatus.Store(http.StatusOK)
	p.resourceBody.Store(`{"sobjects":[]}`)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenCalls.Add(1)
		_ = r.ParseForm()
		p.lastVerifier.Store(r.PostForm.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		status := int(p.tokenStatus.Load())
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = io.WriteString(w, `{"access_token":"tok123","instance_url":"`+p.URL+`","token_type":"Bearer"}`)
			return
		}
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"expired authorization code"}`)
	})
	mux.HandleFunc("GET /services/data/v57.0/sobjects", func(w http.ResponseWriter, r *http.Request) {
		p.resourceCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(p.resourceStatus.Load()))
		_, _ = io.WriteString(w, p.resourceBody.Load().(string))
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)

	return p
}

type testEnv struct {
	app      *httptest.Server
	client   *http.Client
	provider *provider
	sessions *sessionmock.Repository
	store    *metadatamock.Store
}

func newTestEnv(t *testing.T, storeOpts ...metadatamock.StoreOption) *testEnv {
	t.Helper()

	cfg := testConfig()
	require.NoError(t, initMeters(t.Context(), cfg))

	idp := newProvider(t)
	sessions := sessionmock.NewInMemRepository()
	store := metadatamock.NewStore(storeOpts...)

	src := pkce.Source{}
	deps := Dependencies{
		Sessions: session.NewManager(sessions, src, time.Hour, config.CookieTemplate{Name: cookieName, Path: "/", HTTPOnly: true}),
		Flow: oauth.NewFlow(oauth.Client{
			ID:           "client-id",
			Secret:       "client-secret",
			RedirectURI:  "http://localhost:3000/oauth/callback",
			AuthorizeURL: authorizeURL,
			TokenURL:     idp.URL + "/services/oauth2/token",
		}, src, oauth.WithHTTPClient(idp.Client())),
		Collector: metadata.NewCollector(store, metadata.WithHTTPClient(idp.Client())),
	}

	app := httptest.NewServer(newRouter(cfg, deps))
	t.Cleanup(app.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testEnv{app: app, client: client, provider: idp, sessions: sessions, store: store}
}

func (e *testEnv) get(t *testing.T, path string) (int, string, http.Header) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, e.app.URL+path, nil)
	require.NoError(t, err)

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body), resp.Header
}

// sessionOf returns the stored session the client's cookie points at.
func (e *testEnv) sessionOf(t *testing.T) session.Session {
	t.Helper()

	u, err := url.Parse(e.app.URL)
	require.NoError(t, err)

	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == cookieName {
			s, ok := e.sessions.Get(c.Value)
			require.True(t, ok, "cookie points at an unknown session")

			return s
		}
	}
	t.Fatal("no session cookie")

	return session.Session{}
}

func TestRoot(t *testing.T) {
	env := newTestEnv(t)

	status, body, header := env.get(t, "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, welcomeText, body)
	assert.Contains(t, header.Get("Content-Type"), "text/plain")
	assert.Equal(t, "nosniff", header.Get("X-Content-Type-Options"))
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	status, _, header := env.get(t, "/login")
	require.Equal(t, http.StatusFound, status)

	loc, err := url.Parse(header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, authorizeURL, loc.Scheme+"://"+loc.Host+loc.Path)

	q := loc.Query()
	assert.Len(t, q, 5)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:3000/oauth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))

	s := env.sessionOf(t)
	assert.Equal(t, session.StageAwaitingCallback, s.Stage())
	assert.Equal(t, pkce.Challenge(s.CodeVerifier), q.Get("code_challenge"))
}

func TestCallback(t *testing.T) {
	t.Run("without code", func(t *testing.T) {
		env := newTestEnv(t)
		env.get(t, "/login")

		status, body, _ := env.get(t, "/oauth/callback")

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "missing authorization code or verifier", body)
		assert.Zero(t, env.provider.tokenCalls.Load())
	})

	t.Run("without login", func(t *testing.T) {
		env := newTestEnv(t)

		status, _, _ := env.get(t, "/oauth/callback?code=auth-code")

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Zero(t, env.provider.tokenCalls.Load())
	})

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)
		env.get(t, "/login")
		verifier := env.sessionOf(t).CodeVerifier

		status, body, _ := env.get(t, "/oauth/callback?code=auth-code")

		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, flowCompleteText, body)
		assert.Equal(t, verifier, env.provider.lastVerifier.Load())

		s := env.sessionOf(t)
		assert.Equal(t, "tok123", s.AccessToken)
		assert.Equal(t, env.provider.URL, s.InstanceURL)
		assert.Empty(t, s.CodeVerifier)

		status, _, _ = env.get(t, "/oauth/callback?code=auth-code")
		assert.Equal(t, http.StatusBadRequest, status, "the verifier is single use")
		assert.Equal(t, int32(1), env.provider.tokenCalls.Load())
	})

	t.Run("token endpoint failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.provider.tokenStatus.Store(http.StatusBadRequest)
		env.get(t, "/login")

		status, body, _ := env.get(t, "/oauth/callback?code=auth-code")

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Contains(t, body, "token fetch failed")
		assert.Empty(t, env.sessionOf(t).AccessToken)
	})
}

func TestStoreMetadata(t *testing.T) {
	authenticate := func(t *testing.T, env *testEnv) {
		t.Helper()

		env.get(t, "/login")
		status, _, _ := env.get(t, "/oauth/callback?code=auth-code")
		require.Equal(t, http.StatusOK, status)
	}

	t.Run("before the flow completes", func(t *testing.T) {
		env := newTestEnv(t)
		env.get(t, "/login")

		status, body, _ := env.get(t, "/store-metadata")

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "must complete OAuth flow first", body)
		assert.Zero(t, env.provider.resourceCalls.Load())
		assert.Empty(t, env.store.Records())
	})

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)
		authenticate(t, env)

		status, body, _ := env.get(t, "/store-metadata")

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, metadataStoredText, body)
		assert.Equal(t, []metadata.Record{{Payload: `{"sobjects":[]}`}}, env.store.Records())
	})

	t.Run("storage failure", func(t *testing.T) {
		env := newTestEnv(t, metadatamock.WithInsertError(errors.New("duplicate key value")))
		authenticate(t, env)

		status, body, _ := env.get(t, "/store-metadata")

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "store failed: duplicate key value", body)
	})

	t.Run("resource api failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.provider.resourceStatus.Store(http.StatusForbidden)
		authenticate(t, env)

		status, body, _ := env.get(t, "/store-metadata")

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Contains(t, body, "fetch failed")
		assert.Empty(t, env.store.Records())
	})

	t.Run("resource is not json", func(t *testing.T) {
		env := newTestEnv(t)
		env.provider.resourceBody.Store("<html>maintenance</html>")
		authenticate(t, env)

		status, _, _ := env.get(t, "/store-metadata")

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Empty(t, env.store.Records())
	})
}

type panickingCollector struct{}

func (panickingCollector) Collect(context.Context, session.Session) error {
	panic("collector exploded")
}

func TestRecoverer(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, initMeters(t.Context(), cfg))

	src := pkce.Source{}
	router := newRouter(cfg, Dependencies{
		Sessions:  session.NewManager(sessionmock.NewInMemRepository(), src, time.Hour, config.CookieTemplate{Name: cookieName}),
		Collector: panickingCollector{},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/store-metadata", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "the router keeps serving after a panic")
}

func TestSessionLoadFailure(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, initMeters(t.Context(), cfg))

	repo := sessionmock.NewInMemRepository(sessionmock.WithLoadError(errors.New("valkey unavailable")))
	router := newRouter(cfg, Dependencies{
		Sessions: session.NewManager(repo, pkce.Source{}, time.Hour, config.CookieTemplate{Name: cookieName}),
	})

	req := httptest.NewRequest(http.MethodGet, "/store-metadata", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "some-session"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "valkey unavailable")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
