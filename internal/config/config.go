// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type SessionBackend string

const (
	SessionBackendMemory   SessionBackend = "memory"
	SessionBackendValKey   SessionBackend = "valkey"
	SessionBackendPostgres SessionBackend = "postgres"
)

type DatastoreType string

const (
	DatastorePostgres DatastoreType = "postgres"
	DatastoreREST     DatastoreType = "rest"
)

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`

	OAuth     OAuth     `yaml:"oauth"`
	Upstream  Upstream  `yaml:"upstream"`
	Session   Session   `yaml:"session"`
	ValKey    ValKey    `yaml:"valkey"`
	Datastore Datastore `yaml:"datastore"`
	Database  Database  `yaml:"database"`
	Metadata  Metadata  `yaml:"metadata"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":3000"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

// OAuth configures the client side of the authorization code flow.
type OAuth struct {
	AuthorizeURL string              `yaml:"authorizeURL" default:"https://login.salesforce.com/services/oauth2/authorize"`
	TokenURL     string              `yaml:"tokenURL" default:"https://login.salesforce.com/services/oauth2/token"`
	RedirectURI  string              `yaml:"redirectURI" default:"http://localhost:3000/oauth/callback"`
	ClientID     commoncfg.SourceRef `yaml:"clientID"`
	ClientSecret commoncfg.SourceRef `yaml:"clientSecret"`
	Scopes       []string            `yaml:"scopes"`
}

// Upstream configures the HTTP client used for the identity provider and
// the resource API. A zero timeout leaves the transport defaults in place.
type Upstream struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Session configures where sessions are kept. The postgres backend shares
// the Database settings with the postgres datastore. CleanupInterval is how
// often expired sessions are evicted by the memory and postgres backends.
type Session struct {
	Backend         SessionBackend `yaml:"backend" default:"memory"`
	Duration        time.Duration  `yaml:"duration" default:"12h"`
	CleanupInterval time.Duration  `yaml:"cleanupInterval" default:"10m"`
	Cookie          CookieTemplate `yaml:"cookie"`
}

type CookieTemplate struct {
	Name     string         `yaml:"name" default:"metadata_collector_session"`
	Path     string         `yaml:"path" default:"/"`
	Domain   string         `yaml:"domain"`
	MaxAge   int            `yaml:"maxAge"`
	Secure   bool           `yaml:"secure"`
	HTTPOnly bool           `yaml:"httpOnly" default:"true"`
	SameSite CookieSameSite `yaml:"sameSite" default:"Lax"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix" default:"metadata-collector"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

// Datastore selects where fetched metadata is persisted. The postgres type
// connects with the Database settings, the rest type talks to a PostgREST
// endpoint at URL authenticated with Key.
type Datastore struct {
	Type  DatastoreType       `yaml:"type" default:"postgres"`
	URL   commoncfg.SourceRef `yaml:"url"`
	Key   commoncfg.SourceRef `yaml:"key"`
	Table string              `yaml:"table" default:"metadata"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port" default:"5432"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	SSLMode  string              `yaml:"sslMode"`
}

type Metadata struct {
	ResourcePath string `yaml:"resourcePath" default:"/services/data/v57.0/sobjects"`
}

// UsesPostgres reports whether any component connects to the Database.
func (c *Config) UsesPostgres() bool {
	return c.Datastore.Type == DatastorePostgres || c.Session.Backend == SessionBackendPostgres
}
