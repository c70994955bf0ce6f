package inventory

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Connection identifies one Central instance and the API token used to
// reach it. It is built once per caller and passed by value; there are no
// setters.
type Connection struct {
	baseURL string
	token   string
}

// NewConnection validates the base URL and token and returns a Connection.
// A trailing slash on baseURL is dropped.
func NewConnection(baseURL, token string) (Connection, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return Connection{}, errors.New("NewConnection: base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return Connection{}, fmt.Errorf("NewConnection: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Connection{}, fmt.Errorf("NewConnection: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Connection{}, fmt.Errorf("NewConnection: base URL %q has no host", baseURL)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Connection{}, errors.New("NewConnection: API token is required")
	}
	return Connection{baseURL: baseURL, token: token}, nil
}

// BaseURL returns the Central base URL without a trailing slash.
func (c Connection) BaseURL() string { return c.baseURL }

// String hides the token so a Connection can be logged safely.
func (c Connection) String() string { return c.baseURL }

// TokenExpiry reports the exp claim of the API token when the token is a
// JWT (Central issues RS256 tokens). The signature is not checked; Central
// owns the key and remains the authority on validity.
func (c Connection) TokenExpiry() (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (c Connection) authorization() string {
	return "Bearer " + c.token
}
