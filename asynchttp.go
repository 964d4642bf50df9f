// Package asynchttp exposes the client builder.
//
// The building blocks live in subpackages: [header] for header sets,
// [endpoint] for URL construction, [cookie] for the persistent cookie
// store and [client] for the request builder and transport.
package asynchttp

import (
	"context"
	"fmt"

	"github.com/adamwoolhether/asynchttp/client"
	"github.com/adamwoolhether/asynchttp/cookie"
)

// NewClient instantiates a new *Client with the provided options.
// If not specified, the default http.Transport and an in-memory cookie
// store are used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}

// NewPersistentClient instantiates a *Client whose cookies are kept in the
// JSON file at cookiePath, so a session survives restarts. Options passed
// after it may still replace the store.
func NewPersistentClient(ctx context.Context, cookiePath string, opts ...client.Option) (*client.Client, error) {
	store, err := cookie.Open(ctx, cookie.NewFileBackend(cookiePath))
	if err != nil {
		return nil, fmt.Errorf("opening cookie store: %w", err)
	}

	opts = append([]client.Option{client.WithCookieStore(store)}, opts...)

	return client.Build(opts...)
}
