package auth

import (
	"context"
	"strings"
)

// StaticAuthenticator is a development-only authenticator that accepts any tsk_ key.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, apiKey string) (*Caller, error) {
	if len(apiKey) < lookupPrefixLen || !strings.HasPrefix(apiKey, KeyPrefix) {
		return nil, ErrUnauthenticated
	}
	return &Caller{ProjectID: "static-" + apiKey[:lookupPrefixLen]}, nil
}
