package business

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/metadata-collector/internal/business/server"
	"github.com/openkcm/metadata-collector/internal/config"
	"github.com/openkcm/metadata-collector/internal/metadata"
	metadatarest "github.com/openkcm/metadata-collector/internal/metadata/rest"
	metadatasql "github.com/openkcm/metadata-collector/internal/metadata/sql"
	"github.com/openkcm/metadata-collector/internal/oauth"
	"github.com/openkcm/metadata-collector/internal/pkce"
	"github.com/openkcm/metadata-collector/internal/session"
	sessionmemory "github.com/openkcm/metadata-collector/internal/session/memory"
	sessionsql "github.com/openkcm/metadata-collector/internal/session/sql"
	sessionvalkey "github.com/openkcm/metadata-collector/internal/session/valkey"
)

// Main builds the collaborators from cfg and serves the HTTP API until ctx
// is done. Every secret is resolved before the listener starts.
func Main(ctx context.Context, cfg *config.Config) error {
	httpClient := newHTTPClient(cfg)

	oauthClient, err := oauthClientFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("loading oauth client: %w", err)
	}

	var db *pgxpool.Pool
	if cfg.UsesPostgres() {
		db, err = dbPoolFromConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialising the database pool: %w", err)
		}
		defer db.Close()
	}

	sessionRepo, closeSessions, err := sessionRepositoryFromConfig(cfg, db)
	if err != nil {
		return fmt.Errorf("initialising the session repository: %w", err)
	}
	defer closeSessions()

	if purger, ok := sessionRepo.(expiredSessionPurger); ok {
		go purgeExpiredSessions(ctx, purger, cfg.Session.CleanupInterval)
	}

	store, err := metadataStoreFromConfig(cfg, httpClient, db)
	if err != nil {
		return fmt.Errorf("initialising the metadata store: %w", err)
	}

	var src pkce.Source
	deps := server.Dependencies{
		Sessions:  session.NewManager(sessionRepo, src, cfg.Session.Duration, cfg.Session.Cookie),
		Flow:      oauth.NewFlow(oauthClient, src, oauth.WithHTTPClient(httpClient)),
		Collector: metadata.NewCollector(store, metadata.WithHTTPClient(httpClient), metadata.WithResourcePath(cfg.Metadata.ResourcePath)),
	}

	slogctx.Info(ctx, "Starting metadata collector",
		"sessionBackend", cfg.Session.Backend,
		"datastore", cfg.Datastore.Type,
		"tokenURL", cfg.OAuth.TokenURL,
	)

	return server.StartHTTPServer(ctx, cfg, deps)
}

func newHTTPClient(cfg *config.Config) *http.Client {
	if cfg.Upstream.Timeout <= 0 {
		return http.DefaultClient
	}

	return &http.Client{Timeout: cfg.Upstream.Timeout}
}

func oauthClientFromConfig(cfg *config.Config) (oauth.Client, error) {
	clientID, err := commoncfg.LoadValueFromSourceRef(cfg.OAuth.ClientID)
	if err != nil {
		return oauth.Client{}, fmt.Errorf("failed to load client id: %w", err)
	}

	clientSecret, err := commoncfg.LoadValueFromSourceRef(cfg.OAuth.ClientSecret)
	if err != nil {
		return oauth.Client{}, fmt.Errorf("failed to load client secret: %w", err)
	}

	return oauth.Client{
		ID:           string(clientID),
		Secret:       string(clientSecret),
		RedirectURI:  cfg.OAuth.RedirectURI,
		AuthorizeURL: cfg.OAuth.AuthorizeURL,
		TokenURL:     cfg.OAuth.TokenURL,
		Scopes:       cfg.OAuth.Scopes,
	}, nil
}

// sessionRepositoryFromConfig builds the configured session backend. db is
// only used by the postgres backend.
func sessionRepositoryFromConfig(cfg *config.Config, db *pgxpool.Pool) (_ session.Repository, closeFn func(), _ error) {
	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		return sessionmemory.NewRepository(cfg.Session.CleanupInterval), func() {}, nil
	case config.SessionBackendPostgres:
		if db == nil {
			return nil, nil, errors.New("postgres session backend without a database pool")
		}

		return sessionsql.NewRepository(db), func() {}, nil
	case config.SessionBackendValKey:
		valkeyClient, err := valkeyClientFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}

		return sessionvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix), valkeyClient.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

func valkeyClientFromConfig(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to load valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("failed to load valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to load valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return valkeyClient, nil
}

// metadataStoreFromConfig builds the configured datastore. db is only used
// by the postgres datastore.
func metadataStoreFromConfig(cfg *config.Config, httpClient *http.Client, db *pgxpool.Pool) (metadata.Store, error) {
	switch cfg.Datastore.Type {
	case config.DatastorePostgres:
		if db == nil {
			return nil, errors.New("postgres datastore without a database pool")
		}

		return metadatasql.NewStore(db, cfg.Datastore.Table), nil
	case config.DatastoreREST:
		baseURL, err := commoncfg.LoadValueFromSourceRef(cfg.Datastore.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to load datastore url: %w", err)
		}

		key, err := commoncfg.LoadValueFromSourceRef(cfg.Datastore.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load datastore key: %w", err)
		}

		store, err := metadatarest.NewStore(string(baseURL), string(key), cfg.Datastore.Table, httpClient)
		if err != nil {
			return nil, fmt.Errorf("creating rest store: %w", err)
		}

		return store, nil
	default:
		return nil, fmt.Errorf("unknown datastore type %q", cfg.Datastore.Type)
	}
}

func dbPoolFromConfig(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to make dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}
