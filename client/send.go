package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/adamwoolhether/asynchttp/client/async"
	"github.com/adamwoolhether/asynchttp/header"
)

// Response is a decoded call result. Data is decoded whatever the status
// code, so callers check the status themselves.
type Response[T any] struct {
	Data T
	Status
	Header http.Header
}

// BodyUnmarshaler is implemented by result types that decode their own
// response body instead of going through JSON.
type BodyUnmarshaler interface {
	UnmarshalBody(body []byte) error
}

// NoContent is a result type that accepts any body, including none.
type NoContent struct{}

func (*NoContent) UnmarshalBody([]byte) error { return nil }

// Send executes a call and decodes the response body into T.
// A []byte or string T receives the raw body.
func Send[T any](ctx context.Context, c *Client, method Method, endpointPath string, opts ...CallOption) (*Response[T], error) {
	var settings callOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}

	raw, err := c.exec(ctx, method, endpointPath, &settings)
	if err != nil {
		return nil, err
	}

	data, err := decode[T](raw, &settings)
	if err != nil {
		return nil, err
	}

	return &Response[T]{
		Data:   data,
		Status: raw.Status,
		Header: raw.Header,
	}, nil
}

// Go starts Send in its own goroutine, bounded by [WithMaxInFlight].
// Wait on the result, or on [Client.Wait] for every outstanding call.
func Go[T any](ctx context.Context, c *Client, method Method, endpointPath string, opts ...CallOption) *async.Result[*Response[T]] {
	return async.Start(ctx, c.group, func(ctx context.Context) (*Response[T], error) {
		return Send[T](ctx, c, method, endpointPath, opts...)
	})
}

// Get sends a GET request.
func Get[T any](ctx context.Context, c *Client, endpointPath string, opts ...CallOption) (*Response[T], error) {
	return Send[T](ctx, c, GET, endpointPath, opts...)
}

// Post sends a POST request. Use [WithPayload] for a JSON body.
func Post[T any](ctx context.Context, c *Client, endpointPath string, opts ...CallOption) (*Response[T], error) {
	return Send[T](ctx, c, POST, endpointPath, opts...)
}

// Put sends a PUT request.
func Put[T any](ctx context.Context, c *Client, endpointPath string, opts ...CallOption) (*Response[T], error) {
	return Send[T](ctx, c, PUT, endpointPath, opts...)
}

// Patch sends a PATCH request.
func Patch[T any](ctx context.Context, c *Client, endpointPath string, opts ...CallOption) (*Response[T], error) {
	return Send[T](ctx, c, PATCH, endpointPath, opts...)
}

// Delete sends a DELETE request.
func Delete[T any](ctx context.Context, c *Client, endpointPath string, opts ...CallOption) (*Response[T], error) {
	return Send[T](ctx, c, DELETE, endpointPath, opts...)
}

// Update sends an UPDATE request.
func Update[T any](ctx context.Context, c *Client, endpointPath string, opts ...CallOption) (*Response[T], error) {
	return Send[T](ctx, c, UPDATE, endpointPath, opts...)
}

// Form sends a form-url-encoded POST, carrying the query items in the body.
// Headers passed through opts still override the Content-Type.
func Form[T any](ctx context.Context, c *Client, endpointPath string, opts ...CallOption) (*Response[T], error) {
	opts = append([]CallOption{WithHeaders(header.ContentType(header.FormURLEncoded))}, opts...)
	return Send[T](ctx, c, POST, endpointPath, opts...)
}

func decode[T any](raw *RawResponse, settings *callOpts) (T, error) {
	var dst T

	if settings.decoder != nil {
		if err := settings.decoder(raw.Body, &dst); err != nil {
			return dst, newDecodeError(raw.StatusCode, raw.Body, err)
		}
		return dst, nil
	}

	switch p := any(&dst).(type) {
	case *[]byte:
		*p = raw.Body
		return dst, nil

	case *string:
		*p = string(raw.Body)
		return dst, nil

	case BodyUnmarshaler:
		if err := p.UnmarshalBody(raw.Body); err != nil {
			return dst, newDecodeError(raw.StatusCode, raw.Body, err)
		}
		return dst, nil
	}

	d := json.NewDecoder(bytes.NewReader(raw.Body))
	if settings.useJSONNum {
		d.UseNumber()
	}

	if err := d.Decode(&dst); err != nil {
		return dst, newDecodeError(raw.StatusCode, raw.Body, err)
	}

	return dst, nil
}
