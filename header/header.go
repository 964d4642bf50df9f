// Package header provides the name/value pairs sent with every request
// and the merge rules used to combine client defaults with per-call
// overrides.
package header

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// FormURLEncoded is the media type that switches query items into the request body.
const FormURLEncoded = "application/x-www-form-urlencoded"

// ErrInvalidHeader is returned by [Set.Validate] when a header cannot be put on the wire.
var ErrInvalidHeader = errors.New("invalid header")

// Header is a single HTTP header. Its identity is the name, compared
// case-insensitively. The value is opaque.
type Header struct {
	Name  string
	Value string
}

// New creates a custom header.
func New(name, value string) Header {
	return Header{Name: name, Value: value}
}

func (h Header) String() string {
	return h.Name + ": " + h.Value
}

// Accept creates an `Accept` header.
func Accept(value string) Header { return New("Accept", value) }

// AcceptEncoding creates an `Accept-Encoding` header.
func AcceptEncoding(value string) Header { return New("Accept-Encoding", value) }

// Authorization creates an `Authorization` header with the raw credential.
func Authorization(value string) Header { return New("Authorization", value) }

// Bearer creates an `Authorization: Bearer <token>` header.
func Bearer(token string) Header { return Authorization("Bearer " + token) }

// BasicAuth creates an `Authorization: Basic <credential>` header.
func BasicAuth(username, password string) Header {
	credential := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return Authorization("Basic " + credential)
}

// ContentDisposition creates a `Content-Disposition` header.
func ContentDisposition(value string) Header { return New("Content-Disposition", value) }

// ContentType creates a `Content-Type` header.
func ContentType(value string) Header { return New("Content-Type", value) }

// ContentLength creates a `Content-Length` header.
func ContentLength(value string) Header { return New("Content-Length", value) }

// UserAgent creates a `User-Agent` header.
func UserAgent(value string) Header { return New("User-Agent", value) }

// Cookie creates a `Cookie` header from an already rendered cookie string.
func Cookie(value string) Header { return New("Cookie", value) }

// Set is a collection of headers. Callers must not depend on its order.
type Set []Header

// Merge combines base and override. On a case-insensitive name collision
// the override wins; headers absent from override are carried from base
// unchanged. Neither input is modified.
func Merge(base, override []Header) Set {
	out := make(Set, 0, len(base)+len(override))
	index := make(map[string]int, len(base)+len(override))

	add := func(h Header) {
		key := strings.ToLower(h.Name)
		if i, ok := index[key]; ok {
			out[i] = h
			return
		}
		index[key] = len(out)
		out = append(out, h)
	}

	for _, h := range base {
		add(h)
	}
	for _, h := range override {
		add(h)
	}

	return out
}

// Get returns the value of the last header matching name case-insensitively.
func (s Set) Get(name string) (string, bool) {
	var (
		value string
		found bool
	)
	for _, h := range s {
		if strings.EqualFold(h.Name, name) {
			value, found = h.Value, true
		}
	}

	return value, found
}

// Map returns a last-write-wins dictionary keyed by header name as written.
func (s Set) Map() map[string]string {
	m := make(map[string]string, len(s))
	for _, h := range s {
		m[h.Name] = h.Value
	}

	return m
}

// HTTP converts the set into a canonicalized [http.Header].
// Later entries replace earlier ones with the same name.
func (s Set) HTTP() http.Header {
	hdr := make(http.Header, len(s))
	for _, h := range s {
		hdr.Set(h.Name, h.Value)
	}

	return hdr
}

// IsFormURLEncoded reports whether the set carries a Content-Type of
// application/x-www-form-urlencoded.
func (s Set) IsFormURLEncoded() bool {
	ct, ok := s.Get("Content-Type")
	if !ok {
		return false
	}

	return strings.EqualFold(strings.TrimSpace(ct), FormURLEncoded)
}

// Validate checks every header can be written on the wire.
func (s Set) Validate() error {
	for _, h := range s {
		if !httpguts.ValidHeaderFieldName(h.Name) {
			return fmt.Errorf("%w: name %q", ErrInvalidHeader, h.Name)
		}
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return fmt.Errorf("%w: value for %q", ErrInvalidHeader, h.Name)
		}
	}

	return nil
}
