package throttle

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Config defines the per-host Requests Per Second and Burst Rate.
type Config struct {
	RPS   int
	Burst int
}

// throttle is an http.RoundTripper holding one token bucket per host.
type throttle struct {
	cfg   Config
	next  http.RoundTripper
	logFn func() *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRoundTripper returns an http.RoundTripper that throttles outbound requests
// per host. logFn lazily resolves the logger at request time, making option
// ordering irrelevant. A nil-returning logFn disables wait logging.
func NewRoundTripper(rps, burst int, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	if rps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
	}

	t := &throttle{
		cfg:      Config{RPS: rps, Burst: burst},
		next:     next,
		logFn:    logFn,
		limiters: make(map[string]*rate.Limiter),
	}

	return t, nil
}

func (t *throttle) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	host := strings.ToLower(r.URL.Hostname())
	limiter := t.limiter(host)

	var waited time.Duration
	logger := t.logFn()
	if logger != nil && limiter.Tokens() < 1 {
		logger.Info("throttle tokens exhausted", "host", host, "rate", t.cfg.RPS, "burst", t.cfg.Burst)

		defer func() {
			logger.Info("throttle wait complete", "host", host, "waited", waited.String())
		}()
	}

	start := time.Now()

	err := limiter.Wait(ctx)
	waited = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil { // Check context hasn't expired again.
		return nil, fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return t.next.RoundTrip(r)
}

func (t *throttle) limiter(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(t.cfg.RPS), t.cfg.Burst)
		t.limiters[host] = l
	}

	return l
}
