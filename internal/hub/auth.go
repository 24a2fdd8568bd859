package hub

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthDisabled is returned by Validate when no secret was configured;
// callers treat this the same as "no token required".
var ErrAuthDisabled = errors.New("hub: auth disabled")

// ErrInvalidToken is returned for a malformed, expired, or mis-signed token.
var ErrInvalidToken = errors.New("hub: invalid token")

// TokenClaims identifies the caller a validated token represents.
type TokenClaims struct {
	Subject string `json:"sub,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates the bearer/header token carried on a WebSocket
// handshake (spec §6 "authenticate via header token when configured";
// DOMAIN STACK: golang-jwt/jwt/v5).
type Authenticator struct {
	secret []byte
}

// NewAuthenticator returns an Authenticator; an empty secret disables auth
// entirely (every Validate call returns ErrAuthDisabled, which callers
// treat as "allow").
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Enabled reports whether tokens are required at all.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Validate parses and verifies token, returning the subject it names.
func (a *Authenticator) Validate(token string) (*TokenClaims, error) {
	if !a.Enabled() {
		return nil, ErrAuthDisabled
	}
	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// tokenFromRequest extracts a bearer token from the Authorization header,
// falling back to an `?auth_token=` query parameter for clients (mobile
// WebView shells) that cannot set headers on a WS upgrade request.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("auth_token")
}

// HostAllowlist enforces spec §6's "Host allowlist": reject the WebSocket
// handshake unless Host matches a configured entry (a dot-prefixed entry is
// a suffix match), unless allowed is the literal sentinel "*" meaning any
// host is accepted.
type HostAllowlist struct {
	mu       sync.RWMutex
	entries  []string
	allowAll bool
}

// NewHostAllowlist builds an allowlist from config entries. entries == nil
// or containing "*" allows every host.
func NewHostAllowlist(entries []string) *HostAllowlist {
	hl := &HostAllowlist{}
	hl.Replace(entries)
	return hl
}

// Replace swaps the allowlist's entries, for config.Watcher's hot-reload
// (spec SPEC_FULL §C.1) without tearing down existing connections.
func (hl *HostAllowlist) Replace(entries []string) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	hl.allowAll = false
	hl.entries = nil
	for _, e := range entries {
		if e == "*" {
			hl.allowAll = true
			hl.entries = nil
			return
		}
		hl.entries = append(hl.entries, e)
	}
}

// Allows reports whether host (the request's Host header, without port) may
// connect.
func (hl *HostAllowlist) Allows(host string) bool {
	if hl == nil {
		return true
	}
	hl.mu.RLock()
	defer hl.mu.RUnlock()
	if hl.allowAll || len(hl.entries) == 0 {
		return true
	}
	host = stripPort(host)
	for _, entry := range hl.entries {
		if strings.HasPrefix(entry, ".") {
			if strings.HasSuffix(host, entry) || host == strings.TrimPrefix(entry, ".") {
				return true
			}
			continue
		}
		if host == entry {
			return true
		}
	}
	return false
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}
