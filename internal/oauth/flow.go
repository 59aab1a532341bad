// Package oauth drives the client side of the authorization code flow with
// PKCE: it builds the authorization redirect and exchanges the returned code
// for an access token.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/metadata-collector/internal/pkce"
	"github.com/openkcm/metadata-collector/internal/serviceerr"
	"github.com/openkcm/metadata-collector/internal/session"
)

// instanceURLField is the token response field carrying the base URL of the
// API instance the token is valid for.
const instanceURLField = "instance_url"

// PKCESource generates PKCE verifier and challenge pairs.
type PKCESource interface {
	PKCE() (pkce.PKCE, error)
}

type Flow struct {
	conf        *oauth2.Config
	pkce        PKCESource
	httpClient  *http.Client
	tokenClient *http.Client
}

// Client holds the client registration at the identity provider.
type Client struct {
	ID           string
	Secret       string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string
	Scopes       []string
}

type FlowOption func(*Flow)

// WithHTTPClient sets the client used to call the token endpoint. Its
// transport is wrapped so JSON responses are decoded whatever their
// Content-Type.
func WithHTTPClient(c *http.Client) FlowOption {
	return func(f *Flow) {
		if c != nil {
			f.httpClient = c
		}
	}
}

func NewFlow(client Client, pkceSource PKCESource, opts ...FlowOption) *Flow {
	f := &Flow{
		conf: &oauth2.Config{
			ClientID:     client.ID,
			ClientSecret: client.Secret,
			RedirectURL:  client.RedirectURI,
			Scopes:       client.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   client.AuthorizeURL,
				TokenURL:  client.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		pkce:       pkceSource,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(f)
	}

	tokenClient := *f.httpClient
	tokenClient.Transport = jsonTokenTransport{base: f.httpClient.Transport}
	f.tokenClient = &tokenClient

	return f
}

// AuthURI starts a new authorization request for s. The freshly generated
// verifier replaces any previous one; an existing access token is left
// untouched until a new exchange succeeds.
func (f *Flow) AuthURI(ctx context.Context, s *session.Session) (string, error) {
	p, err := f.pkce.PKCE()
	if err != nil {
		return "", fmt.Errorf("generating PKCE: %w", err)
	}

	s.CodeVerifier = p.Verifier

	// The flow does not use the state parameter, an empty state is dropped.
	uri := f.conf.AuthCodeURL("",
		oauth2.SetAuthURLParam("code_challenge", p.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", p.Method),
	)
	slogctx.Debug(ctx, "Built authorization request", "sessionStage", s.Stage().String())

	return uri, nil
}

// Exchange redeems code with the verifier stored in s. On success the access
// token and instance URL are stored in s and the verifier is cleared, so a
// replayed callback fails with a missing parameter error.
func (f *Flow) Exchange(ctx context.Context, s *session.Session, code string) error {
	if code == "" || s.CodeVerifier == "" {
		return serviceerr.ErrMissingParameter
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.tokenClient)

	tok, err := f.conf.Exchange(ctx, code, oauth2.VerifierOption(s.CodeVerifier))
	if err != nil {
		logExchangeError(ctx, err)
		return serviceerr.ErrTokenFetch.Wrap(err)
	}

	instanceURL, _ := tok.Extra(instanceURLField).(string)
	if instanceURL == "" {
		return serviceerr.ErrTokenFetch.Wrap(errors.New("token response has no instance_url"))
	}

	s.AccessToken = tok.AccessToken
	s.InstanceURL = instanceURL
	s.CodeVerifier = ""

	slogctx.Info(ctx, "Access token obtained", "instanceURL", instanceURL)

	return nil
}

func logExchangeError(ctx context.Context, err error) {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		slogctx.Error(ctx, "Token request failed", "error", err)
		return
	}

	status := 0
	if retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}
	slogctx.Error(ctx, "Token endpoint rejected the exchange",
		"status", status,
		"errorCode", retrieveErr.ErrorCode,
		"errorDescription", retrieveErr.ErrorDescription,
	)
}
