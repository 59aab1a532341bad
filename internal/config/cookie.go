package config

import (
	"net/http"
	"time"
)

// ToCookie renders the template into a cookie carrying value. When the
// template has no MaxAge the cookie expires together with the session.
func (ct *CookieTemplate) ToCookie(value string, expires time.Time) *http.Cookie {
	var sameSite http.SameSite
	switch ct.SameSite {
	case CookieSameSiteNone:
		sameSite = http.SameSiteNoneMode
	case CookieSameSiteLax:
		sameSite = http.SameSiteLaxMode
	case CookieSameSiteStrict:
		sameSite = http.SameSiteStrictMode
	}

	c := &http.Cookie{
		Name:     ct.Name,
		Value:    value,
		MaxAge:   ct.MaxAge,
		Path:     ct.Path,
		Domain:   ct.Domain,
		Secure:   ct.Secure,
		HttpOnly: ct.HTTPOnly,
		SameSite: sameSite,
	}
	if ct.MaxAge == 0 && !expires.IsZero() {
		c.Expires = expires.UTC()
	}

	return c
}
