// Package cookie provides a domain-scoped cookie store that survives
// process restarts.
//
// # Opening a Store
//
// A [Store] is constructed explicitly and shared by every client that
// should see the same cookies:
//
//	store, err := cookie.Open(ctx, cookie.NewFileBackend("/var/lib/app/cookies.json"))
//	c, err := client.Build(client.WithCookieStore(store))
//
// Tests and short-lived tools can use [NewMemoryStore].
//
// # Consistency
//
// Cookies are unique per (domain, name). Mutations are serialized by the
// store and applied copy-on-write: a batch is persisted through the
// [Backend] first and only then becomes visible to readers. A backend
// failure leaves the store unchanged and is reported as [ErrStorage].
//
// # Expiry
//
// Expired cookies are filtered by [Store.ActiveCookies] and
// [Store.CookieHeader], and removed by [Store.DeleteExpired], which can be
// run on a schedule with [Store.Sweep].
package cookie
