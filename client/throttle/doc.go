// Package throttle provides an [http.RoundTripper] that rate-limits
// outbound HTTP requests per destination host using a token-bucket
// algorithm from [golang.org/x/time/rate].
//
// # Usage
//
// Wrap an existing transport with [NewRoundTripper]:
//
//	rt, err := throttle.NewRoundTripper(
//		10, // requests per second, per host
//		5,  // burst capacity, per host
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// Every host gets its own bucket, so a slow API does not starve calls
// to another. When a host's bucket is empty, requests to it block until
// a token becomes available or the request context is cancelled.
package throttle
