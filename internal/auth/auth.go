package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// KeyPrefix starts every Palisade API key.
const KeyPrefix = "tsk_"

// lookupPrefixLen is how much of a key is stored in clear for lookup.
const lookupPrefixLen = 8

// Authenticator validates an API key and returns the calling project.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*Caller, error)
}

// Caller identifies the project an invocation is made for.
type Caller struct {
	ProjectID string
}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

// ExtractBearerToken reads a tsk_ API key from the Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrUnauthenticated
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		token, ok = strings.CutPrefix(header, "bearer ")
	}
	if !ok {
		return "", ErrUnauthenticated
	}
	token = strings.TrimSpace(token)
	if len(token) < lookupPrefixLen || !strings.HasPrefix(token, KeyPrefix) {
		return "", ErrUnauthenticated
	}
	return token, nil
}
