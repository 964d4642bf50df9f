package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adamwoolhether/asynchttp/internal/validate"
)

var (
	// ErrStorage wraps every failure of the backing storage.
	ErrStorage = errors.New("cookie storage failure")
	// ErrInvalidCookie is returned when a cookie cannot be stored.
	ErrInvalidCookie = errors.New("invalid cookie")
)

// Cookie is a stored cookie. It is unique per (Domain, Name).
// A nil Expires marks a session cookie, which never expires on its own.
type Cookie struct {
	Name    string     `json:"name" validate:"required,printascii,excludesall=;="`
	Value   string     `json:"value" validate:"printascii,excludesall=;"`
	Domain  string     `json:"domain" validate:"required,host_or_ip"`
	Path    string     `json:"path"`
	Expires *time.Time `json:"expires,omitempty"`
}

// Expired reports whether the cookie expired strictly before now.
func (c Cookie) Expired(now time.Time) bool {
	return c.Expires != nil && c.Expires.Before(now)
}

// HTTP converts the cookie for use with net/http.
func (c Cookie) HTTP() *http.Cookie {
	hc := &http.Cookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: c.Domain,
		Path:   c.Path,
	}
	if c.Expires != nil {
		hc.Expires = *c.Expires
	}

	return hc
}

func (c Cookie) String() string {
	return c.Name + "=" + c.Value
}

// FromHTTP converts a cookie parsed from a Set-Cookie header. Max-Age takes
// precedence over Expires, relative to now. The cookie is bound to domain
// regardless of its Domain attribute.
func FromHTTP(hc *http.Cookie, domain string, now time.Time) Cookie {
	c := Cookie{
		Name:   hc.Name,
		Value:  hc.Value,
		Domain: NormalizeDomain(domain),
		Path:   hc.Path,
	}

	switch {
	case hc.MaxAge > 0:
		exp := now.Add(time.Duration(hc.MaxAge) * time.Second)
		c.Expires = &exp
	case hc.MaxAge < 0:
		exp := now.Add(-time.Second)
		c.Expires = &exp
	case !hc.Expires.IsZero():
		exp := hc.Expires
		c.Expires = &exp
	}

	return c
}

// NormalizeDomain lower-cases the domain and strips a leading dot.
func NormalizeDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

func (c Cookie) validate() error {
	if err := validate.Check(c); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidCookie, c.Name, err)
	}

	return nil
}

type key struct {
	domain string
	name   string
}

func (c Cookie) key() key {
	return key{domain: c.Domain, name: c.Name}
}
