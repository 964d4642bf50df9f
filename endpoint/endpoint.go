// Package endpoint composes a base location, an endpoint path and ordered
// query parameters into a validated absolute URL.
//
// Validation happens at build time so a malformed combination never
// reaches the network.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"

	"github.com/adamwoolhether/asynchttp/internal/validate"
)

// ErrMalformedURL is wrapped by every [Error] returned from this package.
var ErrMalformedURL = errors.New("malformed url")

// Error describes why a URL could not be composed.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func malformed(format string, args ...any) error {
	return &Error{Detail: fmt.Sprintf(format, args...), Err: ErrMalformedURL}
}

// QueryParam is a single name=value pair.
type QueryParam struct {
	Name  string
	Value string
}

// Param creates a QueryParam.
func Param(name, value string) QueryParam {
	return QueryParam{Name: name, Value: value}
}

func (p QueryParam) String() string {
	return p.Name + "=" + p.Value
}

// Params is an ordered list of query parameters.
type Params []QueryParam

// Encode renders the params as `&`-joined name=value pairs in the order
// supplied, percent-encoding reserved characters.
func (p Params) Encode() string {
	var b strings.Builder
	for i, qp := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(qp.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(qp.Value))
	}

	return b.String()
}

// Map returns a last-write-wins dictionary of the params.
func (p Params) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, qp := range p {
		m[qp.Name] = qp.Value
	}

	return m
}

// ParamsFromStruct encodes a struct tagged with `url:"..."` into Params.
// Keys are emitted in sorted order; repeated values keep their order.
func ParamsFromStruct(v any) (Params, error) {
	values, err := query.Values(v)
	if err != nil {
		return nil, fmt.Errorf("encoding query struct: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var params Params
	for _, k := range keys {
		for _, v := range values[k] {
			params = append(params, Param(k, v))
		}
	}

	return params, nil
}

// Base is the fixed part of every URL a client talks to.
type Base struct {
	Scheme string `json:"scheme" validate:"required,oneof=http https"`
	Host   string `json:"host" validate:"required,host_or_ip"`
	Port   int    `json:"port" validate:"gte=0,lte=65535"`
	Path   string `json:"path"`
}

// Validate reports whether the base can form a URL.
func (b Base) Validate() error {
	b.Scheme = strings.ToLower(b.Scheme)
	if err := validate.Check(b); err != nil {
		return malformed("%v", err)
	}

	return nil
}

// ParseBase splits a base URL such as "https://api.example.com:8443/v1"
// into its components. A missing scheme defaults to https.
func ParseBase(raw string) (Base, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Base{}, malformed("parsing base %q: %v", raw, err)
	}

	b := Base{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Hostname(),
		Path:   u.Path,
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Base{}, malformed("parsing port %q: %v", p, err)
		}
		b.Port = port
	}

	if err := b.Validate(); err != nil {
		return Base{}, err
	}

	return b, nil
}

// Target is a fully specified request location, resolved once per request.
type Target struct {
	Base
	Endpoint string
	Query    Params
}

// Hostname returns the lower-cased host without port, used as the cookie domain.
func (t Target) Hostname() string {
	return strings.ToLower(t.Host)
}

// URL builds the target. When withQuery is false the query params are
// left off, which the request builder uses when they travel in the body.
func (t Target) URL(withQuery bool) (*url.URL, error) {
	var q Params
	if withQuery {
		q = t.Query
	}

	return Build(t.Scheme, t.Host, t.Port, t.Path, t.Endpoint, q)
}

// Build composes scheme, host, optional port (0 for none), basePath + endpoint
// and params into an absolute URL. The path is a plain concatenation: callers
// own segment boundaries. It fails with [ErrMalformedURL].
func Build(scheme, host string, port int, basePath, endpoint string, params Params) (*url.URL, error) {
	b := Base{Scheme: strings.ToLower(scheme), Host: host, Port: port, Path: basePath}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	path := basePath + endpoint
	if path != "" && !strings.HasPrefix(path, "/") {
		return nil, malformed("path %q must begin with '/'", path)
	}

	hostport := host
	switch {
	case port > 0:
		hostport = net.JoinHostPort(host, strconv.Itoa(port))
	case strings.Contains(host, ":"):
		hostport = "[" + host + "]"
	}

	u := url.URL{
		Scheme:   b.Scheme,
		Host:     hostport,
		Path:     path,
		RawQuery: params.Encode(),
	}

	return &u, nil
}
