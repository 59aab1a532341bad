package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that everything required to serve requests is present, so
// that a misconfigured process stops at startup instead of mid-request.
func (c *Config) Validate() error {
	var errs []error

	if err := requireValue("oauth.clientID", c.OAuth.ClientID); err != nil {
		errs = append(errs, err)
	}
	if err := requireValue("oauth.clientSecret", c.OAuth.ClientSecret); err != nil {
		errs = append(errs, err)
	}
	if c.OAuth.RedirectURI == "" {
		errs = append(errs, errors.New("oauth.redirectURI is required"))
	}
	for name, raw := range map[string]string{
		"oauth.authorizeURL": c.OAuth.AuthorizeURL,
		"oauth.tokenURL":     c.OAuth.TokenURL,
		"oauth.redirectURI":  c.OAuth.RedirectURI,
	} {
		if raw == "" {
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s is not a valid URL: %w", name, err))
		}
	}

	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendPostgres:
	case SessionBackendValKey:
		if err := requireValue("valkey.host", c.ValKey.Host); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.Session.Backend))
	}
	if c.Session.Duration <= 0 {
		errs = append(errs, errors.New("session.duration must be positive"))
	}
	if c.Session.Cookie.Name == "" {
		errs = append(errs, errors.New("session.cookie.name is required"))
	}

	if c.UsesPostgres() {
		if err := requireValue("database.host", c.Database.Host); err != nil {
			errs = append(errs, err)
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required"))
		}
	}

	switch c.Datastore.Type {
	case DatastorePostgres:
	case DatastoreREST:
		if err := requireValue("datastore.url", c.Datastore.URL); err != nil {
			errs = append(errs, err)
		}
		if err := requireValue("datastore.key", c.Datastore.Key); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown datastore type %q", c.Datastore.Type))
	}
	if !tableNameRe.MatchString(c.Datastore.Table) {
		errs = append(errs, fmt.Errorf("datastore.table %q is not a valid table name", c.Datastore.Table))
	}

	return errors.Join(errs...)
}

func requireValue(name string, ref commoncfg.SourceRef) error {
	value, err := commoncfg.LoadValueFromSourceRef(ref)
	if err != nil {
		return fmt.Errorf("loading %s: %w", name, err)
	}
	if len(value) == 0 {
		return fmt.Errorf("%s is required", name)
	}

	return nil
}
