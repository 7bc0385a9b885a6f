// Package provider forwards authentication requests to the external identity
// provider.
package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"

	dErrors "afenda/pkg/domain-errors"
)

//go:generate mockgen -source=provider.go -destination=mocks/mocks.go -package=mocks

// MaxResponseBytes caps a buffered sign-in response.
const MaxResponseBytes = 1 << 20

// Provider delegates requests to the identity provider.
type Provider interface {
	// Forward sends r upstream and buffers the reply so the caller can act on
	// the status before anything reaches the client.
	Forward(ctx context.Context, r *http.Request) (*Response, error)
	// ServeHTTP streams any other request straight through.
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Response is a buffered upstream reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Success reports a 2xx status.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// WriteTo replays the response verbatim.
func (r *Response) WriteTo(w http.ResponseWriter) {
	dst := w.Header()
	for k, vv := range r.Header {
		dst[k] = append([]string(nil), vv...)
	}
	w.WriteHeader(r.StatusCode)
	_, _ = w.Write(r.Body)
}

// HTTPProvider is a reverse proxy to a single upstream.
type HTTPProvider struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
	logger *slog.Logger
}

type Option func(*HTTPProvider)

func WithTransport(rt http.RoundTripper) Option {
	return func(p *HTTPProvider) {
		if rt != nil {
			p.proxy.Transport = rt
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *HTTPProvider) {
		p.logger = logger
	}
}

func New(target *url.URL, opts ...Option) (*HTTPProvider, error) {
	if target == nil || !target.IsAbs() {
		return nil, fmt.Errorf("identity provider url must be absolute")
	}
	p := &HTTPProvider{target: target, logger: slog.Default()}
	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: p.handleStreamError,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *HTTPProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}

func (p *HTTPProvider) handleStreamError(w http.ResponseWriter, r *http.Request, err error) {
	if capture, ok := w.(*captureWriter); ok {
		capture.setErr(err)
		return
	}
	if r.Context().Err() != nil {
		return
	}
	p.logger.WarnContext(r.Context(), "identity provider request failed", "path", r.URL.Path, "error", err)
	w.WriteHeader(http.StatusBadGateway)
}

// Forward errors carry CodeTimeout when ctx hit its deadline and
// CodeUpstream for any other transport failure. Cancellation of ctx is
// returned as the context error.
func (p *HTTPProvider) Forward(ctx context.Context, r *http.Request) (*Response, error) {
	capture := newCaptureWriter()
	p.serveCapture(capture, r.WithContext(ctx))

	if err := capture.err(); err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "identity provider timed out")
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, ctx.Err()
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "identity provider unreachable")
		}
	}
	return capture.response(), nil
}

// serveCapture converts the proxy's abort panic, raised when copying the
// upstream body fails inside a live server, into a capture error.
func (p *HTTPProvider) serveCapture(capture *captureWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec != http.ErrAbortHandler {
				panic(rec)
			}
			capture.setErr(errCopyAborted)
		}
	}()
	p.proxy.ServeHTTP(capture, r)
}

var errCopyAborted = errors.New("identity provider response copy aborted")

var errResponseTooLarge = errors.New("identity provider response too large")

type captureWriter struct {
	mu      sync.Mutex
	header  http.Header
	status  int
	body    bytes.Buffer
	failure error
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header)}
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	if c.body.Len()+len(b) > MaxResponseBytes {
		c.setErr(errResponseTooLarge)
		return 0, errResponseTooLarge
	}
	return c.body.Write(b)
}

// Flush is a no-op; the body is replayed once complete.
func (c *captureWriter) Flush() {}

func (c *captureWriter) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure == nil {
		c.failure = err
	}
}

func (c *captureWriter) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

func (c *captureWriter) response() *Response {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{
		StatusCode: status,
		Header:     c.header.Clone(),
		Body:       bytes.Clone(c.body.Bytes()),
	}
}
