package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/adamwoolhether/asynchttp/endpoint"
	"github.com/adamwoolhether/asynchttp/header"
)

const contentTypeJSON = "application/json"

// Descriptor is a fully built request: method, absolute URL, merged
// headers and optional body. It holds no connection state.
type Descriptor struct {
	Method Method
	URL    *url.URL
	Header header.Set
	Body   []byte
}

// HTTPRequest converts the descriptor into an [http.Request] bound to ctx.
func (d *Descriptor) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body *bytes.Reader
	if d.Body != nil {
		body = bytes.NewReader(d.Body)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, d.Method.String(), d.URL.String(), body)
	} else {
		req, err = http.NewRequestWithContext(ctx, d.Method.String(), d.URL.String(), http.NoBody)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: instantiating request: %w", ErrEncoding, err)
	}

	req.Header = d.Header.HTTP()

	return req, nil
}

// BuildRequest resolves target into an absolute URL, merges overrides
// onto defaults and serializes the payload.
//
// With [PlaceAuto], form-url-encoded headers move the target's query items
// into the body and leave the URL without a query string; otherwise the
// query goes into the URL and a non-nil payload is encoded as JSON, adding
// a Content-Type of application/json unless one is already set.
func BuildRequest(method Method, target endpoint.Target, payload any, defaults, overrides header.Set, placement Placement) (*Descriptor, error) {
	merged := header.Merge(defaults, overrides)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	inBody := false
	switch placement {
	case PlaceBody:
		inBody = true
	case PlaceAuto:
		inBody = merged.IsFormURLEncoded()
	}

	u, err := target.URL(!inBody)
	if err != nil {
		return nil, err
	}

	d := Descriptor{
		Method: method,
		URL:    u,
		Header: merged,
	}

	switch {
	case inBody:
		d.Body = []byte(target.Query.Encode())
		if _, ok := merged.Get("Content-Type"); !ok {
			d.Header = append(d.Header, header.ContentType(header.FormURLEncoded))
		}

	case payload != nil && !method.HasBody():
		return nil, fmt.Errorf("%w: method %s does not carry a payload", ErrEncoding, method)

	case payload != nil:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshaling payload: %w", ErrEncoding, err)
		}
		d.Body = b
		if _, ok := merged.Get("Content-Type"); !ok {
			d.Header = append(d.Header, header.ContentType(contentTypeJSON))
		}
	}

	return &d, nil
}
