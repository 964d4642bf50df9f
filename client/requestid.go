package client

import (
	"net/http"

	"github.com/google/uuid"
)

// requestID is an http.RoundTripper stamping a fresh UUID on each request
// that does not already carry one.
type requestID struct {
	header string
	base   http.RoundTripper
}

func (rid requestID) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get(rid.header) != "" {
		return rid.base.RoundTrip(r)
	}

	cpy := r.Clone(r.Context())
	cpy.Header.Set(rid.header, uuid.NewString())
	return rid.base.RoundTrip(cpy)
}
