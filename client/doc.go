// Package client provides the request builder and transport client built
// on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithBaseURL("https://api.example.com/v1"),
//		client.WithDefaultHeaders(header.Accept("application/json")),
//		client.WithTimeout(10 * time.Second),
//	)
//
// # Making Requests
//
// Generic helpers resolve the endpoint against the base URL, attach stored
// cookies, and decode the body into the type parameter:
//
//	resp, err := client.Get[[]Item](ctx, c, "/items",
//		client.WithQuery(endpoint.Param("limit", "5")),
//	)
//
// Responses are decoded whatever their status code; use the embedded
// [Status] helpers to branch on it. A body that does not fit the type
// yields a [*DecodeError].
//
// # Form Data
//
// When the merged headers are form-url-encoded the query items travel in
// the body instead of the URL. [Form] sets that header, and [WithPlacement]
// makes the choice explicit for any call:
//
//	resp, err := client.Form[Token](ctx, c, "/login",
//		client.WithQuery(endpoint.Param("user", "a"), endpoint.Param("pass", "b")),
//	)
//
// # Cookies
//
// Set-Cookie headers of every response are captured into the client's
// [cookie.Store], bound to the request host, and replayed on later calls
// to the same host. A store failure during capture never fails the call;
// it is reported to the handler set with [WithCaptureErrorHandler].
//
// # Async Calls
//
// [Go] runs a call in its own goroutine and returns a handle:
//
//	r := client.Go[Item](ctx, c, client.GET, "/items/1")
//	// ... do other work ...
//	item, err := r.Value()
//
// For lower-level control see the
// [github.com/adamwoolhether/asynchttp/client/async] package.
package client
