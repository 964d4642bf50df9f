package cookie

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adamwoolhether/asynchttp/header"
)

// Option is a functional option for [Open] and [NewMemoryStore].
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

// WithClock replaces time.Now as the store's notion of the current time.
func WithClock(now func() time.Time) Option {
	return func(opts *options) {
		opts.now = now
	}
}

// WithLogger injects a custom [slog.Logger] into the store.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// Store is the single source of truth for cookies. It is safe for
// concurrent use; all mutations are serialized.
type Store struct {
	backend Backend
	now     func() time.Time
	logger  *slog.Logger

	writeMu sync.Mutex // serializes load-modify-persist cycles

	mu    sync.RWMutex
	table map[key]Cookie
}

// Open loads the cookies previously persisted by backend.
func Open(ctx context.Context, backend Backend, optFns ...Option) (*Store, error) {
	opts := options{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range optFns {
		opt(&opts)
	}

	cookies, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", ErrStorage, err)
	}

	table := make(map[key]Cookie, len(cookies))
	for _, c := range cookies {
		c.Domain = NormalizeDomain(c.Domain)
		table[c.key()] = c
	}

	s := &Store{
		backend: backend,
		now:     opts.now,
		logger:  opts.logger,
		table:   table,
	}

	return s, nil
}

// NewMemoryStore returns an empty store that is not persisted.
func NewMemoryStore(optFns ...Option) *Store {
	s, err := Open(context.Background(), NewMemoryBackend(), optFns...)
	if err != nil {
		panic(fmt.Sprintf("cookie: memory backend failed to load: %v", err)) // unreachable
	}

	return s
}

// Len returns the number of stored cookies, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.table)
}

// Cookies returns every stored cookie for domain, expired ones included.
func (s *Store) Cookies(domain string) []Cookie {
	return s.filter(NormalizeDomain(domain), time.Time{})
}

// ActiveCookies returns the cookies for domain that have not expired.
func (s *Store) ActiveCookies(domain string) []Cookie {
	return s.filter(NormalizeDomain(domain), s.now())
}

// CookieHeader renders the active cookies for domain as a single Cookie
// header. It reports false when there are none.
func (s *Store) CookieHeader(domain string) (header.Header, bool) {
	cookies := s.ActiveCookies(domain)
	if len(cookies) == 0 {
		return header.Header{}, false
	}

	parts := make([]string, len(cookies))
	for i, c := range cookies {
		parts[i] = c.String()
	}

	return header.Cookie(strings.Join(parts, "; ")), true
}

// Save upserts cookies for domain keyed by (domain, name), replacing the
// value, path and expiry of an existing entry. The domain argument wins
// over each cookie's own Domain. The batch is stored entirely or not at all.
func (s *Store) Save(ctx context.Context, domain string, cookies ...Cookie) error {
	batch, err := s.prepare(domain, cookies)
	if err != nil {
		return err
	}

	return s.mutate(ctx, "save", func(table map[key]Cookie) bool {
		for _, c := range batch {
			table[c.key()] = c
		}
		return len(batch) > 0
	})
}

// Capture applies cookies received from domain in one batch. Cookies that
// are already expired remove the stored entry instead of replacing it.
func (s *Store) Capture(ctx context.Context, domain string, cookies ...Cookie) error {
	batch, err := s.prepare(domain, cookies)
	if err != nil {
		return err
	}

	now := s.now()
	return s.mutate(ctx, "capture", func(table map[key]Cookie) bool {
		changed := false
		for _, c := range batch {
			if c.Expired(now) {
				if _, ok := table[c.key()]; ok {
					delete(table, c.key())
					changed = true
				}
				continue
			}
			table[c.key()] = c
			changed = true
		}
		return changed
	})
}

// Delete removes every cookie stored for domain.
func (s *Store) Delete(ctx context.Context, domain string) error {
	domain = NormalizeDomain(domain)

	return s.mutate(ctx, "delete", func(table map[key]Cookie) bool {
		changed := false
		for k := range table {
			if k.domain == domain {
				delete(table, k)
				changed = true
			}
		}
		return changed
	})
}

// DeleteNamed removes the cookie named name stored for domain.
func (s *Store) DeleteNamed(ctx context.Context, domain, name string) error {
	k := key{domain: NormalizeDomain(domain), name: name}

	return s.mutate(ctx, "delete", func(table map[key]Cookie) bool {
		if _, ok := table[k]; !ok {
			return false
		}
		delete(table, k)
		return true
	})
}

// DeleteExpired removes every cookie whose expiry is strictly before now and
// returns how many were removed.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	now := s.now()

	var removed int
	err := s.mutate(ctx, "delete expired", func(table map[key]Cookie) bool {
		for k, c := range table {
			if c.Expired(now) {
				delete(table, k)
				removed++
			}
		}
		return removed > 0
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// Sweep calls DeleteExpired every interval until ctx is done. A
// non-positive interval is logged and Sweep returns without sweeping.
func (s *Store) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Error("cookie sweep needs a positive interval", "interval", interval)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.DeleteExpired(ctx)
			if err != nil {
				s.logger.Error("cookie sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("cookie sweep", "removed", n)
			}
		}
	}
}

// prepare binds cookies to domain and validates the whole batch.
func (s *Store) prepare(domain string, cookies []Cookie) ([]Cookie, error) {
	domain = NormalizeDomain(domain)

	batch := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		c.Domain = domain
		if c.Path == "" {
			c.Path = "/"
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		batch = append(batch, c)
	}

	return batch, nil
}

// mutate applies fn to a copy of the table, persists the copy and only then
// publishes it. fn reports whether it changed anything.
func (s *Store) mutate(ctx context.Context, op string, fn func(map[key]Cookie) bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	next := maps.Clone(s.table)
	s.mu.RUnlock()

	if !fn(next) {
		return nil
	}

	if err := s.backend.Replace(ctx, sortedCookies(next)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
	}

	s.mu.Lock()
	s.table = next
	s.mu.Unlock()

	s.logger.Debug("cookies persisted", "op", op, "count", len(next))

	return nil
}

// filter returns the cookies for domain sorted by name. A zero now disables
// the expiry check.
func (s *Store) filter(domain string, now time.Time) []Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Cookie
	for k, c := range s.table {
		if k.domain != domain {
			continue
		}
		if !now.IsZero() && c.Expired(now) {
			continue
		}
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b Cookie) int { return strings.Compare(a.Name, b.Name) })

	return out
}

func sortedCookies(table map[key]Cookie) []Cookie {
	out := slices.Collect(maps.Values(table))
	slices.SortFunc(out, func(a, b Cookie) int {
		if c := strings.Compare(a.Domain, b.Domain); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	return out
}
