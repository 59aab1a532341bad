package session

import "time"

// Stage is the position of a session in the authorization flow. Stages
// only move forward; there is no logout transition.
type Stage int

const (
	StageUnauthenticated Stage = iota
	StageAwaitingCallback
	StageAuthenticated
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingCallback:
		return "awaiting_callback"
	case StageAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Session is the per browser state of the flow.
type Session struct {
	ID           string    // Session ID carried in the session cookie
	CodeVerifier string    // PKCE verifier of the pending authorization request
	AccessToken  string    // Access token from the identity provider
	InstanceURL  string    // Base URL of the API instance the token is valid for
	Expiry       time.Time // Expiry time of the session
}

// Stage derives the flow stage from the fields that are set.
func (s Session) Stage() Stage {
	switch {
	case s.AccessToken != "" && s.InstanceURL != "":
		return StageAuthenticated
	case s.CodeVerifier != "":
		return StageAwaitingCallback
	default:
		return StageUnauthenticated
	}
}
