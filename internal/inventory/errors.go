package inventory

import (
	"errors"
	"fmt"
	"net/http"
)

// maxErrorBodyLen bounds how much of an upstream error body is kept.
const maxErrorBodyLen = 256

var errResponseTooLarge = errors.New("response body exceeds limit")

// UpstreamStatusError is returned when Central answers with a non-2xx status.
type UpstreamStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	msg := fmt.Sprintf("upstream status %d %s for url: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// TransportError wraps failures below HTTP: DNS, TLS, connection errors,
// timeouts and cancellation.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is returned when a 2xx response body cannot be used.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func snippet(body []byte) string {
	if len(body) > maxErrorBodyLen {
		return string(body[:maxErrorBodyLen]) + "..."
	}
	return string(body)
}
