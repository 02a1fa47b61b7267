package request

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/dcshock/respipe/internal/logattr"
	"github.com/dcshock/respipe/pipeline"
	"github.com/dcshock/respipe/response"
)

// DefaultTimeout bounds a whole Execute call (send, handler, release) unless
// overridden by WithTimeout or Request.Timeout.
const DefaultTimeout = 30 * time.Second

const tracerName = "github.com/dcshock/respipe/request"

// Executor performs requests on a shared *http.Client and runs a handler on
// each response. It is safe for concurrent use.
type Executor struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
	limiter *rate.Limiter

	tracing bool
	tracer  trace.TracerProvider

	proxied sync.Map // proxy URL string -> *http.Transport
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets the default per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithLogger logs one debug line per call. Without it the executor is silent.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracing wraps the transport with otelhttp so each call gets a client
// span, and opens an "execute" span around the whole call. The client span and
// any spans started by observers or handlers from the call's context are its
// children. A nil provider uses the global one.
func WithTracing(tp trace.TracerProvider) Option {
	return func(e *Executor) {
		e.tracing = true
		e.tracer = tp
	}
}

// WithRateLimit makes every call wait for l before sending.
func WithRateLimit(l *rate.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// New returns an executor using client. A nil client uses a zero http.Client.
// The client is never modified; per-request policies are applied to a copy.
func New(client *http.Client, opts ...Option) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	e := &Executor{
		client:  client,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs one request and runs h on the response with an empty bag.
// h may be nil, in which case the response is only released.
//
// The result is either the handler's bag with a nil error, or an empty bag
// with the error: transport failures are *response.ClientError, handler errors
// are returned unchanged, and a partial bag from a failing handler is
// discarded. The response is released exactly once before Execute returns.
// Panics raised by h propagate after the response is released.
func (e *Executor) Execute(ctx context.Context, req Request, h pipeline.Handler, opts pipeline.Options) (pipeline.Bag, error) {
	if !e.tracing {
		return e.execute(ctx, req, h, opts)
	}
	tp := e.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	ctx, span := tp.Tracer(tracerName).Start(ctx, "execute "+req.method(),
		trace.WithAttributes(attribute.String("http.request.method", req.method())))
	defer span.End()

	bag, err := e.execute(ctx, req, h, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return bag, err
}

func (e *Executor) execute(ctx context.Context, req Request, h pipeline.Handler, opts pipeline.Options) (pipeline.Bag, error) {
	start := time.Now()
	timeout := e.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := req.build(ctx)
	if err != nil {
		e.log(ctx, req.method(), req.URL, 0, start, err)
		return pipeline.Bag{}, err
	}
	redacted := httpReq.URL.Redacted()

	client, err := e.clientFor(req)
	if err != nil {
		e.log(ctx, httpReq.Method, redacted, 0, start, err)
		return pipeline.Bag{}, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			cerr := &response.ClientError{Op: "rate limit", Method: httpReq.Method, URL: redacted, Err: err}
			e.log(ctx, httpReq.Method, redacted, 0, start, cerr)
			return pipeline.Bag{}, cerr
		}
	}

	raw, err := client.Do(httpReq)
	if err != nil {
		cerr := &response.ClientError{Op: "send", Method: httpReq.Method, URL: redacted, Err: err}
		e.log(ctx, httpReq.Method, redacted, 0, start, cerr)
		return pipeline.Bag{}, cerr
	}
	resp := response.New(raw)
	defer func() {
		if rerr := resp.Release(); rerr != nil {
			e.logger.DebugContext(ctx, "release response", logattr.URL(redacted), logattr.Error(rerr))
		}
	}()

	if h == nil {
		e.log(ctx, httpReq.Method, redacted, raw.StatusCode, start, nil)
		return pipeline.Bag{}, nil
	}
	bag, err := h.Process(ctx, pipeline.Bag{}, resp, opts)
	e.log(ctx, httpReq.Method, redacted, raw.StatusCode, start, err)
	if err != nil {
		return pipeline.Bag{}, err
	}
	if bag == nil {
		bag = pipeline.Bag{}
	}
	return bag, nil
}

// Execute runs one request with a fresh Executor over client. Connections
// opened through a proxy transport are closed before it returns.
func Execute(ctx context.Context, client *http.Client, req Request, h pipeline.Handler, opts pipeline.Options) (pipeline.Bag, error) {
	e := New(client)
	defer e.CloseIdleConnections()
	return e.Execute(ctx, req, h, opts)
}

// CloseIdleConnections closes idle connections of the proxy transports the
// executor created. The caller's client transport is left alone.
func (e *Executor) CloseIdleConnections() {
	e.proxied.Range(func(_, v any) bool {
		v.(*http.Transport).CloseIdleConnections()
		return true
	})
}

// clientFor derives the client for one request: redirect policy, optional
// proxy, optional tracing transport. The client's own CheckRedirect still runs
// after the executor's checks pass.
func (e *Executor) clientFor(req Request) (*http.Client, error) {
	c := *e.client

	maxRedirects := req.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = DefaultMaxRedirects
	}
	noRedirects := req.NoRedirects
	next := e.client.CheckRedirect
	c.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		if noRedirects {
			return http.ErrUseLastResponse
		}
		if maxRedirects > 0 && len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if next != nil {
			return next(r, via)
		}
		return nil
	}

	transport := c.Transport
	if req.Proxy != nil {
		t, err := e.proxyTransport(transport, req.Proxy)
		if err != nil {
			return nil, err
		}
		transport = t
	}
	if e.tracing {
		var topts []otelhttp.Option
		if e.tracer != nil {
			topts = append(topts, otelhttp.WithTracerProvider(e.tracer))
		}
		transport = otelhttp.NewTransport(transport, topts...)
	}
	c.Transport = transport
	return &c, nil
}

// proxyTransport returns the transport for proxy, cloning base once per
// distinct proxy URL so requests through the same proxy share a pool.
func (e *Executor) proxyTransport(base http.RoundTripper, proxy *url.URL) (*http.Transport, error) {
	key := proxy.String()
	if v, ok := e.proxied.Load(key); ok {
		return v.(*http.Transport), nil
	}
	if base == nil {
		base = http.DefaultTransport
	}
	t, ok := base.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("%w: proxy requires an *http.Transport, client has %T", ErrInvalidRequest, base)
	}
	t = t.Clone()
	t.Proxy = http.ProxyURL(proxy)
	v, _ := e.proxied.LoadOrStore(key, t)
	return v.(*http.Transport), nil
}

func (e *Executor) log(ctx context.Context, method, url string, status int, start time.Time, err error) {
	if !e.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	e.logger.DebugContext(ctx, "request",
		logattr.Component("request"),
		logattr.Method(method),
		logattr.URL(url),
		logattr.StatusCode(status),
		logattr.Duration(time.Since(start)),
		logattr.Error(err),
	)
}
