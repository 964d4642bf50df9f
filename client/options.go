package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/asynchttp/client/throttle"
	"github.com/adamwoolhether/asynchttp/cookie"
	"github.com/adamwoolhether/asynchttp/endpoint"
	"github.com/adamwoolhether/asynchttp/header"
)

// DefaultTimeout bounds every request unless [WithTimeout] or [WithClient] says otherwise.
const DefaultTimeout = 60 * time.Second

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	userAgent         string
	throttle          *throttle.Config
	noFollowRedirects bool
	logger            *slog.Logger
	base              *endpoint.Base
	defaultHeaders    header.Set
	store             *cookie.Store
	onCaptureErr      func(error)
	tracerProvider    trace.TracerProvider
	registerer        prometheus.Registerer
	requestIDHeader   string
	maxInFlight       int
}

// WithBaseURL parses raw (for example "https://api.example.com/v1") as the
// base every endpoint is resolved against.
func WithBaseURL(raw string) Option {
	return func(c *options) error {
		b, err := endpoint.ParseBase(raw)
		if err != nil {
			return err
		}
		c.base = &b
		return nil
	}
}

// WithBase sets the base from its components.
func WithBase(b endpoint.Base) Option {
	return func(c *options) error {
		if err := b.Validate(); err != nil {
			return err
		}
		c.base = &b
		return nil
	}
}

// WithDefaultHeaders sets headers sent with every request. Per-call headers
// override them by case-insensitive name.
func WithDefaultHeaders(headers ...header.Header) Option {
	return func(c *options) error {
		set := header.Set(headers)
		if err := set.Validate(); err != nil {
			return err
		}
		c.defaultHeaders = header.Merge(nil, set)
		return nil
	}
}

// WithCookieStore shares store with the [Client]. Without it each client
// gets its own in-memory store.
func WithCookieStore(store *cookie.Store) Option {
	return func(c *options) error {
		if store == nil {
			return errors.New("cookie store must not be nil")
		}
		c.store = store
		return nil
	}
}

// WithClient replaces the default [http.Client] used by the [Client].
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout sets the overall request timeout on the underlying [http.Client].
// Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(value string) Option {
	return func(c *options) error {
		c.userAgent = value
		return nil
	}
}

// WithThrottle enables per-host token-bucket rate limiting with the given
// requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects.
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// WithCaptureErrorHandler receives cookie store failures that happen while
// capturing response cookies. Those failures never fail the call itself.
// The default handler logs a warning.
func WithCaptureErrorHandler(fn func(error)) Option {
	return func(c *options) error {
		if fn == nil {
			return errors.New("capture error handler must not be nil")
		}
		c.onCaptureErr = fn
		return nil
	}
}

// WithTracerProvider records a client span per call. Without it the
// global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *options) error {
		if tp == nil {
			return errors.New("tracer provider must not be nil")
		}
		c.tracerProvider = tp
		return nil
	}
}

// WithMetrics registers the client's request metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *options) error {
		if reg == nil {
			return errors.New("registerer must not be nil")
		}
		c.registerer = reg
		return nil
	}
}

// WithRequestID stamps every outgoing request with a fresh UUID in the
// named header, unless the request already carries one.
func WithRequestID(headerName string) Option {
	return func(c *options) error {
		if headerName == "" {
			return errors.New("request id header must not be empty")
		}
		c.requestIDHeader = headerName
		return nil
	}
}

// WithMaxInFlight bounds how many calls started with [Go] run at once.
func WithMaxInFlight(n int) Option {
	return func(c *options) error {
		if n <= 0 {
			return errors.New("max in flight must be positive")
		}
		c.maxInFlight = n
		return nil
	}
}

// CallOption is a functional option for a single call.
type CallOption func(*callOpts) error

type callOpts struct {
	query      endpoint.Params
	payload    any
	headers    header.Set
	placement  Placement
	useJSONNum bool
	decoder    func(body []byte, dst any) error
}

// WithQuery appends query items to the call, in order.
func WithQuery(params ...endpoint.QueryParam) CallOption {
	return func(opts *callOpts) error {
		opts.query = append(opts.query, params...)
		return nil
	}
}

// WithQueryStruct appends query items encoded from a struct tagged with
// `url:"..."` tags.
func WithQueryStruct(v any) CallOption {
	return func(opts *callOpts) error {
		params, err := endpoint.ParamsFromStruct(v)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEncoding, err)
		}
		opts.query = append(opts.query, params...)
		return nil
	}
}

// WithPayload sets the JSON-encoded request body.
func WithPayload(body any) CallOption {
	return func(opts *callOpts) error {
		opts.payload = body
		return nil
	}
}

// WithHeaders adds headers that override the client's defaults.
func WithHeaders(headers ...header.Header) CallOption {
	return func(opts *callOpts) error {
		opts.headers = append(opts.headers, headers...)
		return nil
	}
}

// WithPlacement decides where query items travel. Defaults to [PlaceAuto].
func WithPlacement(p Placement) CallOption {
	return func(opts *callOpts) error {
		if p < PlaceAuto || p > PlaceBody {
			return fmt.Errorf("unknown placement %d", p)
		}
		opts.placement = p
		return nil
	}
}

// WithJSONNumber tells the JSON decoder to use [json.Decoder.UseNumber],
// preserving number precision as [json.Number] instead of float64.
func WithJSONNumber() CallOption {
	return func(opts *callOpts) error {
		opts.useJSONNum = true
		return nil
	}
}

// WithDecoder replaces JSON decoding of the response body. dst is a
// pointer to the call's result type.
func WithDecoder(fn func(body []byte, dst any) error) CallOption {
	return func(opts *callOpts) error {
		if fn == nil {
			return errors.New("decoder must not be nil")
		}
		opts.decoder = fn
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}
