package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/asynchttp/client"
	"github.com/adamwoolhether/asynchttp/client/throttle"
	"github.com/adamwoolhether/asynchttp/cookie"
	"github.com/adamwoolhether/asynchttp/endpoint"
	"github.com/adamwoolhether/asynchttp/header"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// failingBackend loads nothing and fails every write.
type failingBackend struct{}

func (failingBackend) Load(context.Context) ([]cookie.Cookie, error) { return nil, nil }
func (failingBackend) Replace(context.Context, []cookie.Cookie) error {
	return errors.New("disk full")
}

// newTestClient starts a server for h and builds a client whose base URL
// points at it.
func newTestClient(t *testing.T, h http.HandlerFunc, opts ...client.Option) *client.Client {
	t.Helper()

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	opts = append([]client.Option{client.WithBaseURL(ts.URL)}, opts...)
	c, err := client.Build(opts...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	return c
}

// fakeResponse builds a response served by a roundTripFunc.
func fakeResponse(r *http.Request, status int, hdr http.Header, body string) *http.Response {
	if hdr == nil {
		hdr = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     hdr,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

func TestClient_WithUserAgent(t *testing.T) {
	expectedUA := "TestUserAgent/1.0"

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != expectedUA {
			t.Errorf("expected User-Agent %q, got %q", expectedUA, ua)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}, client.WithUserAgent(expectedUA))

	resp, err := c.Do(t.Context(), client.GET, "/")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !resp.IsSuccess() {
		t.Errorf("expected success, got status %d", resp.StatusCode)
	}
}

func TestClient_WithThrottleAndUserAgent(t *testing.T) {
	expectedUA := "ThrottledAgent/1.0"

	// WithThrottle applied before WithUserAgent; order shouldn't matter.
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != expectedUA {
			t.Errorf("expected User-Agent %q, got %q", expectedUA, ua)
		}
		w.WriteHeader(http.StatusOK)
	}, client.WithThrottle(100, 10), client.WithUserAgent(expectedUA))

	if _, err := c.Do(t.Context(), client.GET, "/"); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestClient_WithThrottleValidation(t *testing.T) {
	_, err := client.Build(client.WithThrottle(0, 1))
	if !errors.Is(err, throttle.ErrMustNotBeZero) {
		t.Fatalf("expected ErrMustNotBeZero, got: %v", err)
	}
}

func TestClient_WithTransport(t *testing.T) {
	var called atomic.Bool
	custom := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called.Store(true)
		return http.DefaultTransport.RoundTrip(r)
	})

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, client.WithTransport(custom))

	if _, err := c.Do(t.Context(), client.GET, "/"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if !called.Load() {
		t.Error("custom transport was not called")
	}
}

func TestClient_InvalidOptions(t *testing.T) {
	tests := map[string]client.Option{
		"nil transport":       client.WithTransport(nil),
		"nil client":          client.WithClient(nil),
		"negative timeout":    client.WithTimeout(-1),
		"nil store":           client.WithCookieStore(nil),
		"nil handler":         client.WithCaptureErrorHandler(nil),
		"nil registerer":      client.WithMetrics(nil),
		"nil tracer provider": client.WithTracerProvider(nil),
		"empty request id":    client.WithRequestID(""),
		"zero in flight":      client.WithMaxInFlight(0),
		"bad base url":        client.WithBaseURL("ftp://example.com"),
		"bad base":            client.WithBase(endpoint.Base{Scheme: "https"}),
		"bad default header":  client.WithDefaultHeaders(header.New("Bad Name", "x")),
	}

	for name, opt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := client.Build(opt); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestClient_WithTracerProvider(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, client.WithTracerProvider(noop.NewTracerProvider()))

	if _, err := c.Do(t.Context(), client.GET, "/"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestClient_WithTimeoutZero(t *testing.T) {
	// Zero means no timeout per stdlib.
	if _, err := client.Build(client.WithTimeout(0)); err != nil {
		t.Fatalf("expected no error for zero timeout, got: %v", err)
	}
}

func TestClient_WithTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, client.WithTimeout(50*time.Millisecond))

	_, err := c.Do(t.Context(), client.GET, "/slow")
	if !errors.Is(err, client.ErrTransport) {
		t.Fatalf("expected ErrTransport, got: %v", err)
	}
}

func TestClient_WithClientIsNotMutated(t *testing.T) {
	hc := &http.Client{Timeout: 5 * time.Second}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}, client.WithClient(hc), client.WithNoFollowRedirects(), client.WithTimeout(time.Second))

	resp, err := c.Do(t.Context(), client.GET, "/")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !resp.IsRedirect() {
		t.Errorf("expected a redirect status, got %d", resp.StatusCode)
	}

	if hc.CheckRedirect != nil {
		t.Error("caller's CheckRedirect was modified")
	}
	if hc.Timeout != 5*time.Second {
		t.Errorf("caller's timeout was modified: %v", hc.Timeout)
	}
	if hc.Transport != nil {
		t.Error("caller's transport was modified")
	}
}

func TestClient_FollowsRedirectsByDefault(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/final" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/final", http.StatusFound)
	})

	resp, err := c.Do(t.Context(), client.GET, "/start")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after redirect, got %d", resp.StatusCode)
	}
}

func TestClient_GetItems(t *testing.T) {
	want := []item{{ID: 1, Name: "one"}, {ID: 2, Name: "two"}}

	var gotURI string
	var gotAccept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		gotAccept = r.Header.Get("Accept")
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer ts.Close()

	c, err := client.Build(
		client.WithBaseURL(ts.URL+"/v1"),
		client.WithDefaultHeaders(header.Accept("application/json")),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	resp, err := client.Get[[]item](t.Context(), c, "/items", client.WithQuery(endpoint.Param("limit", "5")))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if gotURI != "/v1/items?limit=5" {
		t.Errorf("request uri = %q, want %q", gotURI, "/v1/items?limit=5")
	}
	if gotAccept != "application/json" {
		t.Errorf("accept = %q, want application/json", gotAccept)
	}
	if diff := cmp.Diff(want, resp.Data); diff != "" {
		t.Errorf("decoded items mismatch (-want +got):\n%s", diff)
	}
	if resp.Class() != client.ClassSuccess {
		t.Errorf("class = %v, want 2xx", resp.Class())
	}
}

func TestClient_CookieCaptureAndReplay(t *testing.T) {
	var calls atomic.Int32
	var replayed string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123", Path: "/"})
		default:
			replayed = r.Header.Get("Cookie")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if _, err := c.Do(t.Context(), client.GET, "/login"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	stored := c.Cookies().Cookies("127.0.0.1")
	if len(stored) != 1 || stored[0].Name != "session" || stored[0].Value != "abc123" {
		t.Fatalf("stored cookies = %+v, want session=abc123", stored)
	}

	if _, err := c.Do(t.Context(), client.GET, "/me"); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if replayed != "session=abc123" {
		t.Errorf("Cookie header = %q, want %q", replayed, "session=abc123")
	}
}

func TestClient_CookieMaxAgeDeletes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/logout" {
			w.Header().Add("Set-Cookie", "session=; Path=/; Max-Age=0")
		} else {
			w.Header().Add("Set-Cookie", "session=abc123; Path=/; Max-Age=3600")
		}
		w.WriteHeader(http.StatusOK)
	})

	if _, err := c.Do(t.Context(), client.GET, "/login"); err != nil {
		t.Fatalf("login: %v", err)
	}

	stored := c.Cookies().Cookies("127.0.0.1")
	if len(stored) != 1 || stored[0].Expires == nil {
		t.Fatalf("stored cookies = %+v, want one cookie with an expiry", stored)
	}

	if _, err := c.Do(t.Context(), client.GET, "/logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if n := c.Cookies().Len(); n != 0 {
		t.Errorf("store holds %d cookies after Max-Age=0, want 0", n)
	}
}

func TestClient_CookieDomainPolicy(t *testing.T) {
	tests := []struct {
		name      string
		setCookie string
		stored    bool
	}{
		{name: "host only", setCookie: "a=1", stored: true},
		{name: "exact host", setCookie: "a=1; Domain=api.example.com", stored: true},
		{name: "parent domain", setCookie: "a=1; Domain=.example.com", stored: true},
		{name: "public suffix", setCookie: "a=1; Domain=com", stored: false},
		{name: "foreign domain", setCookie: "a=1; Domain=other.org", stored: false},
		{name: "sibling", setCookie: "a=1; Domain=www.example.com", stored: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
				return fakeResponse(r, http.StatusOK, http.Header{"Set-Cookie": {tc.setCookie}}, ""), nil
			})

			c, err := client.Build(client.WithBaseURL("https://api.example.com"), client.WithTransport(rt))
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}

			if _, err := c.Do(t.Context(), client.GET, "/"); err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}

			got := len(c.Cookies().Cookies("api.example.com")) == 1
			if got != tc.stored {
				t.Errorf("stored = %v, want %v", got, tc.stored)
			}
			if n := c.Cookies().Len(); n > 1 {
				t.Errorf("cookie stored under another domain, total %d", n)
			}
		})
	}
}

func TestClient_CaptureStorageFailureDoesNotFailCall(t *testing.T) {
	store, err := cookie.Open(t.Context(), failingBackend{})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	var mu sync.Mutex
	var captured []error
	reg := prometheus.NewRegistry()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
		_ = json.NewEncoder(w).Encode(item{ID: 7, Name: "seven"})
	},
		client.WithCookieStore(store),
		client.WithMetrics(reg),
		client.WithCaptureErrorHandler(func(err error) {
			mu.Lock()
			defer mu.Unlock()
			captured = append(captured, err)
		}),
	)

	resp, err := client.Get[item](t.Context(), c, "/items/7")
	if err != nil {
		t.Fatalf("expected the call to succeed, got: %v", err)
	}
	if resp.Data.ID != 7 {
		t.Errorf("decoded id = %d, want 7", resp.Data.ID)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(captured) != 1 || !errors.Is(captured[0], client.ErrStorage) {
		t.Fatalf("capture errors = %v, want one ErrStorage", captured)
	}

	if store.Len() != 0 {
		t.Errorf("store holds %d cookies after failed write, want 0", store.Len())
	}

	const want = `
# HELP asynchttp_cookies_capture_errors_total Count of cookie store failures while capturing response cookies
# TYPE asynchttp_cookies_capture_errors_total counter
asynchttp_cookies_capture_errors_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "asynchttp_cookies_capture_errors_total"); err != nil {
		t.Error(err)
	}
}

func TestClient_Form(t *testing.T) {
	var gotQuery, gotBody, gotCT, gotMethod string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotQuery = r.URL.RawQuery
		gotCT = r.Header.Get("Content-Type")
		gotMethod = r.Method
		_, _ = w.Write([]byte(`{"id":1,"name":"token"}`))
	})

	resp, err := client.Form[item](t.Context(), c, "/search", client.WithQuery(endpoint.Param("q", "x")))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotBody != "q=x" {
		t.Errorf("body = %q, want %q", gotBody, "q=x")
	}
	if gotQuery != "" {
		t.Errorf("url query = %q, want none", gotQuery)
	}
	if gotCT != header.FormURLEncoded {
		t.Errorf("content type = %q, want %q", gotCT, header.FormURLEncoded)
	}
	if resp.Data.Name != "token" {
		t.Errorf("decoded name = %q, want token", resp.Data.Name)
	}
}

func TestClient_PostJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		var in item
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		in.ID = 42
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(in)
	})

	resp, err := client.Post[item](t.Context(), c, "/items", client.WithPayload(item{Name: "new"}))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if diff := cmp.Diff(item{ID: 42, Name: "new"}, resp.Data); diff != "" {
		t.Errorf("echoed item mismatch (-want +got):\n%s", diff)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
}

func TestClient_Verbs(t *testing.T) {
	type call func(context.Context, *client.Client) error
	wrap := func(fn func(context.Context, *client.Client, string, ...client.CallOption) (*client.Response[client.NoContent], error)) call {
		return func(ctx context.Context, c *client.Client) error {
			_, err := fn(ctx, c, "/verb")
			return err
		}
	}

	tests := map[string]call{
		http.MethodGet:    wrap(client.Get[client.NoContent]),
		http.MethodPost:   wrap(client.Post[client.NoContent]),
		http.MethodPut:    wrap(client.Put[client.NoContent]),
		http.MethodPatch:  wrap(client.Patch[client.NoContent]),
		http.MethodDelete: wrap(client.Delete[client.NoContent]),
		"UPDATE":          wrap(client.Update[client.NoContent]),
	}

	for want, fn := range tests {
		t.Run(want, func(t *testing.T) {
			var got string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				got = r.Method
				w.WriteHeader(http.StatusNoContent)
			})

			if err := fn(t.Context(), c); err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if got != want {
				t.Errorf("method = %q, want %q", got, want)
			}
		})
	}
}

func TestClient_DecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := client.Get[item](t.Context(), c, "/items/1")
	if !errors.Is(err, client.ErrDecode) {
		t.Fatalf("expected ErrDecode, got: %v", err)
	}

	var de *client.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if de.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", de.StatusCode)
	}
	if de.Body != "not json" {
		t.Errorf("body = %q, want %q", de.Body, "not json")
	}
}

func TestClient_DecodeErrorBodyCapped(t *testing.T) {
	large := strings.Repeat("x", 10<<10)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(large))
	})

	_, err := client.Get[item](t.Context(), c, "/")

	var de *client.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got: %v", err)
	}
	if len(de.Body) != 4<<10 {
		t.Errorf("body length = %d, want %d", len(de.Body), 4<<10)
	}
}

func TestClient_DecodesErrorStatus(t *testing.T) {
	type problem struct {
		Error string `json:"error"`
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	})

	resp, err := client.Get[problem](t.Context(), c, "/")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if resp.Data.Error != "boom" {
		t.Errorf("decoded error = %q, want boom", resp.Data.Error)
	}
	if resp.IsSuccess() || !resp.IsServerError() || !resp.IsInternalServerError() {
		t.Errorf("status helpers wrong for %d", resp.StatusCode)
	}
}

func TestClient_RawTargets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte("plain text"))
	})

	s, err := client.Get[string](t.Context(), c, "/text")
	if err != nil || s.Data != "plain text" {
		t.Errorf("string target = %q, %v", s.Data, err)
	}

	b, err := client.Get[[]byte](t.Context(), c, "/text")
	if err != nil || !bytes.Equal(b.Data, []byte("plain text")) {
		t.Errorf("[]byte target = %q, %v", b.Data, err)
	}

	if _, err := client.Get[client.NoContent](t.Context(), c, "/empty"); err != nil {
		t.Errorf("NoContent target: %v", err)
	}

	if _, err := client.Get[item](t.Context(), c, "/empty"); !errors.Is(err, client.ErrDecode) {
		t.Errorf("empty body into struct: expected ErrDecode, got %v", err)
	}
}

func TestClient_WithJSONNumber(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"big":12345678901234567890}`))
	})

	resp, err := client.Get[map[string]any](t.Context(), c, "/", client.WithJSONNumber())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	n, ok := resp.Data["big"].(json.Number)
	if !ok {
		t.Fatalf("expected json.Number, got %T", resp.Data["big"])
	}
	if n.String() != "12345678901234567890" {
		t.Errorf("number = %s", n)
	}
}

func TestClient_WithDecoder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("7,seven"))
	})

	csv := func(body []byte, dst any) error {
		id, name, ok := strings.Cut(string(body), ",")
		if !ok {
			return errors.New("missing comma")
		}
		it := dst.(*item)
		it.Name = name
		return json.Unmarshal([]byte(id), &it.ID)
	}

	resp, err := client.Get[item](t.Context(), c, "/", client.WithDecoder(csv))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if diff := cmp.Diff(item{ID: 7, Name: "seven"}, resp.Data); diff != "" {
		t.Errorf("decoded mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_Decompression(t *testing.T) {
	const body = `{"id":3,"name":"three"}`

	compress := map[string]func(io.Writer) io.WriteCloser{
		"gzip": func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
		"deflate": func(w io.Writer) io.WriteCloser {
			return zlib.NewWriter(w)
		},
		"zstd": func(w io.Writer) io.WriteCloser {
			zw, _ := zstd.NewWriter(w)
			return zw
		},
	}

	for encoding, newWriter := range compress {
		t.Run(encoding, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", encoding)
				zw := newWriter(w)
				_, _ = zw.Write([]byte(body))
				_ = zw.Close()
			})

			resp, err := client.Get[item](t.Context(), c, "/",
				client.WithHeaders(header.AcceptEncoding(encoding)),
			)
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if diff := cmp.Diff(item{ID: 3, Name: "three"}, resp.Data); diff != "" {
				t.Errorf("decoded mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClient_CorruptCompressedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte("definitely not gzip"))
	})

	_, err := client.Get[item](t.Context(), c, "/", client.WithHeaders(header.AcceptEncoding("gzip")))
	if !errors.Is(err, client.ErrDecode) {
		t.Fatalf("expected ErrDecode, got: %v", err)
	}
}

func TestClient_MalformedURL(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer ts.Close()

	noBase, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	withBase, err := client.Build(client.WithBaseURL(ts.URL))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	tests := []struct {
		name     string
		c        *client.Client
		endpoint string
	}{
		{name: "no base", c: noBase, endpoint: "/items"},
		{name: "missing slash", c: withBase, endpoint: "items"},
		{name: "absolute without host", c: noBase, endpoint: "https:///items"},
		{name: "absolute bad scheme", c: noBase, endpoint: "ftp://example.com/items"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.c.Do(t.Context(), client.GET, tc.endpoint)
			if !errors.Is(err, client.ErrMalformedURL) {
				t.Fatalf("expected ErrMalformedURL, got: %v", err)
			}
		})
	}

	if n := hits.Load(); n != 0 {
		t.Errorf("server was hit %d times", n)
	}
}

func TestClient_EncodingError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be reached")
	})

	tests := map[string][]client.CallOption{
		"unmarshalable payload": {client.WithPayload(map[string]any{"ch": make(chan int)})},
		"header with newline":   {client.WithHeaders(header.New("X-Bad", "a\r\nb"))},
		"query struct":          {client.WithQueryStruct(42)},
	}

	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Do(t.Context(), client.POST, "/", opts...)
			if !errors.Is(err, client.ErrEncoding) {
				t.Fatalf("expected ErrEncoding, got: %v", err)
			}
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	c, err := client.Build(client.WithBaseURL(ts.URL))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = c.Do(t.Context(), client.GET, "/")
	if !errors.Is(err, client.ErrTransport) {
		t.Fatalf("expected ErrTransport, got: %v", err)
	}
}

func TestClient_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := c.Do(ctx, client.GET, "/")
	if !errors.Is(err, client.ErrTransport) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrTransport wrapping context.Canceled, got: %v", err)
	}
}

func TestClient_AbsoluteEndpoint(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := c.Do(t.Context(), client.GET, ts.URL+"/search?a=1", client.WithQuery(endpoint.Param("b", "2 3"))); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if gotQuery != "a=1&b=2+3" {
		t.Errorf("query = %q, want %q", gotQuery, "a=1&b=2+3")
	}
}

func TestClient_WithQueryStruct(t *testing.T) {
	type filter struct {
		Limit int    `url:"limit"`
		Sort  string `url:"sort,omitempty"`
	}

	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
	})

	if _, err := c.Do(t.Context(), client.GET, "/items", client.WithQueryStruct(filter{Limit: 5, Sort: "name"})); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if gotQuery != "limit=5&sort=name" {
		t.Errorf("query = %q, want %q", gotQuery, "limit=5&sort=name")
	}
}

func TestClient_HeaderOverrides(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}, client.WithDefaultHeaders(header.Accept("text/plain"), header.New("X-Team", "core")))

	if _, err := c.Do(t.Context(), client.GET, "/", client.WithHeaders(header.New("accept", "application/json"))); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if v := got.Values("Accept"); len(v) != 1 || v[0] != "application/json" {
		t.Errorf("Accept = %v, want [application/json]", v)
	}
	if v := got.Get("X-Team"); v != "core" {
		t.Errorf("X-Team = %q, want core", v)
	}
}

func TestClient_WithRequestID(t *testing.T) {
	var ids []string
	var mu sync.Mutex
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-ID"))
		mu.Unlock()
	}, client.WithRequestID("X-Request-ID"))

	for range 2 {
		if _, err := c.Do(t.Context(), client.GET, "/"); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
	}
	if _, err := c.Do(t.Context(), client.GET, "/", client.WithHeaders(header.New("X-Request-ID", "fixed"))); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	for _, id := range ids[:2] {
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("request id %q is not a uuid: %v", id, err)
		}
	}
	if ids[0] == ids[1] {
		t.Error("request ids repeated")
	}
	if ids[2] != "fixed" {
		t.Errorf("caller's request id replaced: %q", ids[2])
	}
}

func TestClient_SetBaseURL(t *testing.T) {
	serve := func(name string) *httptest.Server {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(name))
		}))
		t.Cleanup(ts.Close)
		return ts
	}
	a, b := serve("a"), serve("b")

	c, err := client.Build(client.WithBaseURL(a.URL))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	first, err := client.Get[string](t.Context(), c, "/")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	if err := c.SetBaseURL(b.URL); err != nil {
		t.Fatalf("SetBaseURL: %v", err)
	}
	second, err := client.Get[string](t.Context(), c, "/")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if first.Data != "a" || second.Data != "b" {
		t.Errorf("responses = %q, %q, want a, b", first.Data, second.Data)
	}

	if err := c.SetBaseURL("ftp://nope"); !errors.Is(err, client.ErrMalformedURL) {
		t.Errorf("expected ErrMalformedURL, got: %v", err)
	}
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}, client.WithMetrics(reg))

	for range 3 {
		if _, err := c.Do(t.Context(), client.GET, "/"); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
	}

	const want = `
# HELP asynchttp_client_requests_total Count of completed calls by method and status code (0 when no response arrived)
# TYPE asynchttp_client_requests_total counter
asynchttp_client_requests_total{code="418",method="GET"} 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "asynchttp_client_requests_total"); err != nil {
		t.Error(err)
	}

	if n, err := testutil.GatherAndCount(reg, "asynchttp_client_request_duration_seconds"); err != nil || n != 1 {
		t.Errorf("duration series = %d, %v, want 1", n, err)
	}
}

func TestClient_MetricsSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	handler := func(w http.ResponseWriter, r *http.Request) {}

	first := newTestClient(t, handler, client.WithMetrics(reg))
	second := newTestClient(t, handler, client.WithMetrics(reg))

	for _, c := range []*client.Client{first, second} {
		if _, err := c.Do(t.Context(), client.GET, "/"); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
	}

	const want = `
# HELP asynchttp_client_requests_total Count of completed calls by method and status code (0 when no response arrived)
# TYPE asynchttp_client_requests_total counter
asynchttp_client_requests_total{code="200",method="GET"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "asynchttp_client_requests_total"); err != nil {
		t.Error(err)
	}
}

func TestClient_MetricsRegistrationConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "asynchttp_client_requests_total",
		Help: "conflicting",
	}))

	if _, err := client.Build(client.WithMetrics(reg)); err == nil {
		t.Fatal("expected a registration error")
	}
}

func TestClient_ConcurrentCalls(t *testing.T) {
	var n atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: r.URL.Query().Get("name"), Value: "v"})
		n.Add(1)
	})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			name := "c" + string(rune('a'+i))
			if _, err := c.Do(t.Context(), client.GET, "/", client.WithQuery(endpoint.Param("name", name))); err != nil {
				t.Errorf("call %d: %v", i, err)
			}
		})
	}
	wg.Wait()

	if got := c.Cookies().Len(); got != 20 {
		t.Errorf("stored %d cookies, want 20", got)
	}
}
