package client

import (
	"errors"
	"fmt"

	"github.com/adamwoolhether/asynchttp/cookie"
	"github.com/adamwoolhether/asynchttp/endpoint"
)

const (
	// maxErrBodySize caps the amount of response body copied into a
	// [DecodeError], so a large unexpected payload does not end up in logs.
	maxErrBodySize = 4 << 10 // 4KB

	// maxBodySize caps how much of a response body is read into memory.
	maxBodySize = 32 << 20 // 32MB
)

var (
	// ErrMalformedURL is returned when the target cannot form a valid URL.
	// It is detected before any network I/O.
	ErrMalformedURL = endpoint.ErrMalformedURL
	// ErrEncoding is returned when the payload or headers cannot be serialized.
	ErrEncoding = errors.New("encoding request")
	// ErrTransport is returned when the request could not be exchanged
	// with the server: connection, TLS, timeout or body read failures.
	ErrTransport = errors.New("transport failure")
	// ErrDecode is wrapped by [DecodeError].
	ErrDecode = errors.New("decoding response")
	// ErrStorage is reported when the cookie store's backend fails. During
	// cookie capture it goes to the capture error handler instead of the caller.
	ErrStorage = cookie.ErrStorage
	// ErrBodyTooLarge is wrapped with ErrTransport when a response body
	// exceeds the in-memory limit.
	ErrBodyTooLarge = errors.New("response body too large")
)

// DecodeError is returned when the response body does not match the
// requested type, regardless of the status code.
type DecodeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: status %d: %v, body: %s", ErrDecode, e.StatusCode, e.Err, e.Body)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

func newDecodeError(status int, body []byte, err error) *DecodeError {
	if len(body) > maxErrBodySize {
		body = body[:maxErrBodySize]
	}

	return &DecodeError{StatusCode: status, Body: string(body), Err: err}
}
