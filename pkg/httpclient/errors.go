package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidRequest    = errors.New("httpclient: invalid request")
	ErrTransport         = errors.New("httpclient: request could not complete")
	ErrTimeout           = errors.New("httpclient: request timed out")
	ErrCircuitOpen       = errors.New("httpclient: circuit breaker is open")
	ErrMalformedResponse = errors.New("httpclient: malformed response")
)

// StatusError is returned alongside a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func newStatusError(resp *Response) *StatusError {
	return &StatusError{StatusCode: resp.StatusCode, Body: resp.Body, Header: resp.Header}
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("httpclient: unexpected status %d", e.StatusCode)
	if len(e.Body) > 0 {
		body := strings.ReplaceAll(string(e.Body), "\n", " ")
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		msg += ": " + body
	}
	return msg
}

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsUnauthorized reports a 401 or 403 status error.
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsNetwork reports failures where no HTTP response was received.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrCircuitOpen)
}
