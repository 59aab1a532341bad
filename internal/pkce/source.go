package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const MethodS256 = "S256"

const (
	verifierBytes  = 32
	sessionIDBytes = 24 // 192 bits
)

// PKCE holds a code verifier and the challenge derived from it.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// Source generates PKCE pairs and session identifiers from a random reader.
// The zero value reads from crypto/rand.
type Source struct {
	rand io.Reader
}

// NewSource returns a Source reading from r.
func NewSource(r io.Reader) Source {
	return Source{rand: r}
}

func (p Source) randBytes(n int) ([]byte, error) {
	r := p.rand
	if r == nil {
		r = rand.Reader
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}

	return b, nil
}

// PKCE returns a fresh verifier with its S256 challenge.
func (p Source) PKCE() (PKCE, error) {
	b, err := p.randBytes(verifierBytes)
	if err != nil {
		return PKCE{}, err
	}

	verifier := base64.RawURLEncoding.EncodeToString(b)

	return PKCE{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}, nil
}

// SessionID returns an opaque URL-safe identifier.
func (p Source) SessionID() (string, error) {
	b, err := p.randBytes(sessionIDBytes)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Challenge derives the S256 challenge of verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
