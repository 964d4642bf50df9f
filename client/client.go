package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"

	"github.com/adamwoolhether/asynchttp/client/async"
	"github.com/adamwoolhether/asynchttp/client/throttle"
	"github.com/adamwoolhether/asynchttp/cookie"
	"github.com/adamwoolhether/asynchttp/endpoint"
	"github.com/adamwoolhether/asynchttp/header"
)

const tracerName = "github.com/adamwoolhether/asynchttp/client"

// Client wraps the std-lib *http.Client.
// It resolves endpoints against a base URL, attaches and captures cookies
// through a [cookie.Store], and is safe for concurrent use.
type Client struct {
	c            *http.Client
	logger       *slog.Logger
	store        *cookie.Store
	headers      header.Set
	tracer       trace.Tracer
	metrics      *metrics
	group        *async.Group
	onCaptureErr func(error)

	mu   sync.RWMutex
	base *endpoint.Base
}

// RawResponse is the undecoded result of a call.
type RawResponse struct {
	Status
	Header http.Header
	Body   []byte
}

// Build constructs a [Client]. Without options it uses a fresh in-memory
// cookie store, a 60 second timeout and requires absolute endpoints.
func Build(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	m, err := newMetrics(opts.registerer)
	if err != nil {
		return nil, err
	}

	client := &Client{
		logger:  slog.Default(),
		headers: opts.defaultHeaders,
		base:    opts.base,
		metrics: m,
		group:   async.NewGroup(opts.maxInFlight),
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	client.store = opts.store
	if client.store == nil {
		client.store = cookie.NewMemoryStore(cookie.WithLogger(client.logger))
	}

	client.onCaptureErr = opts.onCaptureErr
	if client.onCaptureErr == nil {
		client.onCaptureErr = func(err error) {
			client.logger.Warn("capturing response cookies", "error", err)
		}
	}

	tp := opts.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	client.tracer = tp.Tracer(tracerName)

	// The caller's *http.Client is copied so its Transport and
	// CheckRedirect are left alone.
	hc := http.Client{Timeout: DefaultTimeout}
	if opts.client != nil {
		hc = *opts.client
	}
	if opts.timeout != nil {
		hc.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	if opts.requestIDHeader != "" {
		transport = requestID{header: opts.requestIDHeader, base: transport}
	}
	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(opts.throttle.RPS, opts.throttle.Burst, func() *slog.Logger { return client.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	hc.Transport = transport
	client.c = &hc

	return client, nil
}

// SetBaseURL replaces the base URL used to resolve endpoints.
// Calls already building their request keep the previous base.
func (c *Client) SetBaseURL(raw string) error {
	b, err := endpoint.ParseBase(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = &b

	return nil
}

// BaseURL returns the current base, if any.
func (c *Client) BaseURL() (endpoint.Base, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.base == nil {
		return endpoint.Base{}, false
	}
	return *c.base, true
}

// Cookies returns the store the client captures cookies into.
func (c *Client) Cookies() *cookie.Store {
	return c.store
}

// Wait blocks until every call started with [Go] completes and returns
// the errors recorded since the previous Wait joined.
func (c *Client) Wait() error {
	return c.group.Wait()
}

// Shutdown stops calls started with [Go] that have not begun yet.
func (c *Client) Shutdown() {
	c.group.Shutdown()
}

// Do builds and executes a single call and returns the undecoded response.
// The endpoint is appended to the base URL, or used as is when it is an
// absolute URL.
func (c *Client) Do(ctx context.Context, method Method, endpointPath string, opts ...CallOption) (*RawResponse, error) {
	var settings callOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}

	return c.exec(ctx, method, endpointPath, &settings)
}

// exec runs one call through building, the exchange, cookie capture and
// body read. The status code is not checked: every response is returned.
func (c *Client) exec(ctx context.Context, method Method, endpointPath string, settings *callOpts) (*RawResponse, error) {
	started := time.Now()
	status := 0
	defer func() {
		c.metrics.observe(method, status, started)
	}()

	target, err := c.target(endpointPath, settings.query)
	if err != nil {
		return nil, err
	}

	domain := target.Hostname()
	overrides := settings.headers
	if ch, ok := c.store.CookieHeader(domain); ok {
		overrides = header.Merge(overrides, []header.Header{ch})
	}

	desc, err := BuildRequest(method, target, settings.payload, c.headers, overrides, settings.placement)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "asynchttp.client", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method.String()),
		attribute.String("server.address", domain),
		attribute.String("url.path", desc.URL.Path),
	)

	req, err := desc.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	c.metrics.inFlight.Inc()
	resp, err := c.c.Do(req)
	c.metrics.inFlight.Dec()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange failed")
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, desc.URL.Redacted(), err)
	}

	defer func() {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			c.logger.Error("failed to discard unused body", "error", err)
		}
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	// Redirects may end on another host; cookies belong to the one that set them.
	captureDomain := domain
	if resp.Request != nil && resp.Request.URL != nil {
		captureDomain = strings.ToLower(resp.Request.URL.Hostname())
	}
	c.capture(ctx, captureDomain, resp)

	raw, err := readLimited(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reading body")
		return nil, fmt.Errorf("%w: reading body: %w", ErrTransport, err)
	}

	body, err := decompress(resp.Header, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decompressing body")
		return nil, newDecodeError(status, raw, err)
	}

	if Classify(status) == ClassServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}

	return &RawResponse{
		Status: Status{StatusCode: status},
		Header: resp.Header,
		Body:   body,
	}, nil
}

// target resolves endpointPath and the call's query into an [endpoint.Target].
func (c *Client) target(endpointPath string, query endpoint.Params) (endpoint.Target, error) {
	if strings.Contains(endpointPath, "://") {
		u, err := url.Parse(endpointPath)
		if err != nil {
			return endpoint.Target{}, fmt.Errorf("%w: parsing %q: %v", ErrMalformedURL, endpointPath, err)
		}

		b, err := endpoint.ParseBase(u.Scheme + "://" + u.Host)
		if err != nil {
			return endpoint.Target{}, err
		}
		b.Path = u.Path

		params, err := splitQuery(u.RawQuery)
		if err != nil {
			return endpoint.Target{}, err
		}

		return endpoint.Target{Base: b, Query: append(params, query...)}, nil
	}

	c.mu.RLock()
	base := c.base
	c.mu.RUnlock()

	if base == nil {
		return endpoint.Target{}, fmt.Errorf("%w: no base URL for endpoint %q", ErrMalformedURL, endpointPath)
	}

	return endpoint.Target{Base: *base, Endpoint: endpointPath, Query: query}, nil
}

// splitQuery parses a raw query keeping the order of its items.
func splitQuery(raw string) (endpoint.Params, error) {
	var params endpoint.Params
	for pair := range strings.SplitSeq(raw, "&") {
		if pair == "" {
			continue
		}

		name, value, _ := strings.Cut(pair, "=")
		n, err := url.QueryUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("%w: query name %q: %v", ErrMalformedURL, name, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("%w: query value for %q: %v", ErrMalformedURL, n, err)
		}
		params = append(params, endpoint.Param(n, v))
	}

	return params, nil
}

// capture stores the response's Set-Cookie headers under domain. It runs
// detached from ctx cancellation and reports store failures to the
// capture error handler instead of failing the call.
func (c *Client) capture(ctx context.Context, domain string, resp *http.Response) {
	received := resp.Cookies()
	if len(received) == 0 {
		return
	}

	now := time.Now()
	batch := make([]cookie.Cookie, 0, len(received))
	for _, hc := range received {
		if !acceptDomain(domain, hc.Domain) {
			c.logger.Warn("dropping cookie for foreign domain", "cookie", hc.Name, "host", domain, "domain", hc.Domain)
			continue
		}
		batch = append(batch, cookie.FromHTTP(hc, domain, now))
	}

	if err := c.store.Capture(context.WithoutCancel(ctx), domain, batch...); err != nil {
		c.metrics.captureErrors.Inc()
		trace.SpanFromContext(ctx).AddEvent("cookie capture failed", trace.WithAttributes(attribute.String("error", err.Error())))
		c.onCaptureErr(err)
	}
}

// acceptDomain reports whether a cookie with the given Domain attribute
// may be stored for host. An empty attribute always matches. A public
// suffix is only accepted when it is the host itself.
func acceptDomain(host, attr string) bool {
	d := cookie.NormalizeDomain(attr)
	if d == "" || d == host {
		return true
	}

	if net.ParseIP(host) != nil {
		return false
	}

	if !strings.HasSuffix(host, "."+d) {
		return false
	}

	if ps, _ := publicsuffix.PublicSuffix(d); ps == d {
		return false
	}

	return true
}
