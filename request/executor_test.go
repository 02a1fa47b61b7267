package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/time/rate"

	"github.com/dcshock/respipe/httpstages"
	"github.com/dcshock/respipe/pipeline"
	"github.com/dcshock/respipe/response"
)

type countingCloser struct {
	io.ReadCloser
	n *atomic.Int32
}

func (c *countingCloser) Close() error {
	c.n.Add(1)
	return c.ReadCloser.Close()
}

// countingTransport counts body closes so tests can check exactly-once release.
type countingTransport struct {
	closes atomic.Int32
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := http.DefaultTransport.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	resp.Body = &countingCloser{ReadCloser: resp.Body, n: &c.closes}
	return resp, nil
}

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}
}

func TestExecute_JSONEndpoint(t *testing.T) {
	ts := newServer(t, jsonHandler(`{"a":1,"b":2}`))
	h := pipeline.Build(httpstages.Status(), httpstages.Headers(), httpstages.Cookies(), httpstages.JSON())

	bag, err := Execute(context.Background(), ts.Client(), Get(ts.URL), h, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, bag["status"])
	assert.Equal(t, true, bag["ok"])
	assert.Equal(t, "application/json", bag["headers"].(http.Header).Get("content-type"))
	cookies := bag["cookies"].([]*http.Cookie)
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, bag["json"])
}

func TestExecute_ServerErrorIsNotAnError(t *testing.T) {
	ts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	bag, err := Execute(context.Background(), ts.Client(), Get(ts.URL), httpstages.StatusOnly(), nil)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Bag{"status": 500, "ok": false}, bag)
}

func TestExecute_DecodeErrorDiscardsBag(t *testing.T) {
	ts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html></html>")
	})
	bag, err := Execute(context.Background(), ts.Client(), Get(ts.URL), httpstages.JSONBody(), nil)
	assert.ErrorIs(t, err, response.ErrDecode)
	assert.False(t, response.IsClientError(err))
	assert.Equal(t, pipeline.Bag{}, bag, "partial bag (status, headers) is discarded")
}

func TestExecute_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	target := ts.URL
	ts.Close()

	called := false
	h := pipeline.HandlerFunc(func(ctx context.Context, bag pipeline.Bag, _ *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		called = true
		return bag, nil
	})
	bag, err := Execute(context.Background(), nil, Get(target), h, nil)
	require.Error(t, err)
	var ce *response.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "send", ce.Op)
	assert.Equal(t, pipeline.Bag{}, bag)
	assert.False(t, called, "handlers never see transport errors")
}

func TestExecute_Rejection(t *testing.T) {
	ts := newServer(t, jsonHandler(`[{"num":5},{"num":950}]`))
	var inner pipeline.Bag
	p := pipeline.Develop(
		pipeline.Build(httpstages.JSON()),
		httpstages.Close(),
		httpstages.Extract("max_num", "max([].num)"),
		pipeline.Tap(func(_ context.Context, b pipeline.Bag) { inner = b.Clone() }),
		pipeline.Validate("max_num", func(n float64) bool { return n <= 800 }, "max_num over 800"),
	)
	bag, err := Execute(context.Background(), ts.Client(), Get(ts.URL), p, nil)
	assert.ErrorIs(t, err, pipeline.ErrRejected)
	assert.Equal(t, pipeline.Bag{}, bag)
	assert.Equal(t, 950.0, inner["max_num"])
}

func TestExecute_ReleasesExactlyOnce(t *testing.T) {
	ts := newServer(t, jsonHandler(`{"a":1}`))
	errFail := errors.New("handler failed")

	tests := []struct {
		name    string
		handler pipeline.Handler
		wantErr error
	}{
		{"unread", httpstages.StatusOnly(), nil},
		{"read", httpstages.JSONBody(), nil},
		{"closed early", pipeline.Build(httpstages.Close(), httpstages.Close()), nil},
		{"handler error", pipeline.Build(httpstages.Read(), pipeline.HandlerFunc(
			func(context.Context, pipeline.Bag, *response.Response, pipeline.Options) (pipeline.Bag, error) {
				return pipeline.Bag{"partial": 1}, errFail
			})), errFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &countingTransport{}
			_, err := Execute(context.Background(), &http.Client{Transport: tr}, Get(ts.URL), tt.handler, nil)
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, int32(1), tr.closes.Load())
		})
	}
}

func TestExecute_PanicPropagatesAfterRelease(t *testing.T) {
	ts := newServer(t, jsonHandler(`{}`))
	tr := &countingTransport{}
	h := pipeline.HandlerFunc(func(context.Context, pipeline.Bag, *response.Response, pipeline.Options) (pipeline.Bag, error) {
		panic("programming error")
	})
	func() {
		defer func() {
			assert.Equal(t, "programming error", recover())
		}()
		Execute(context.Background(), &http.Client{Transport: tr}, Get(ts.URL), h, nil)
	}()
	assert.Equal(t, int32(1), tr.closes.Load())
}

func TestExecute_NilHandler(t *testing.T) {
	ts := newServer(t, jsonHandler(`{}`))
	tr := &countingTransport{}
	bag, err := Execute(context.Background(), &http.Client{Transport: tr}, Get(ts.URL), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, bag)
	assert.Equal(t, int32(1), tr.closes.Load())
}

func TestExecute_InvalidRequests(t *testing.T) {
	ctx := context.Background()

	_, err := Execute(ctx, nil, Request{URL: "http://example.test", Data: "x", JSON: map[string]any{}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, response.IsClientError(err))

	_, err = Execute(ctx, nil, Request{URL: "http://example.test", Data: 42}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = Execute(ctx, nil, Request{URL: "http://example.test", Method: "BAD METHOD"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	for _, u := range []string{"::not a url", "/relative/path"} {
		_, err = Execute(ctx, nil, Get(u), nil, nil)
		var ce *response.ClientError
		require.ErrorAs(t, err, &ce, u)
		assert.Equal(t, "build request", ce.Op)
	}
}

type echoed struct {
	Method  string              `json:"method"`
	Query   map[string][]string `json:"query"`
	Header  map[string][]string `json:"header"`
	Cookies []string            `json:"cookies"`
	Body    string              `json:"body"`
}

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var cookies []string
	for _, c := range r.Cookies() {
		cookies = append(cookies, c.Name+"="+c.Value)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(echoed{
		Method:  r.Method,
		Query:   r.URL.Query(),
		Header:  r.Header,
		Cookies: cookies,
		Body:    string(body),
	})
}

func echo(t *testing.T, req Request) echoed {
	t.Helper()
	ts := newServer(t, echoHandler)
	req.URL = ts.URL + req.URL
	h := pipeline.Build(httpstages.Read())
	bag, err := Execute(context.Background(), ts.Client(), req, h, nil)
	require.NoError(t, err)
	var e echoed
	require.NoError(t, json.Unmarshal(bag["read"].([]byte), &e))
	return e
}

func TestRequest_Building(t *testing.T) {
	e := echo(t, Request{
		Method:  "post",
		URL:     "/items?existing=1",
		Params:  url.Values{"page": {"2"}, "tag": {"a", "b"}},
		Headers: http.Header{"X-Api-Key": {"k"}},
		Cookies: []*http.Cookie{{Name: "sid", Value: "42"}},
		JSON:    map[string]any{"name": "widget"},
	})
	assert.Equal(t, http.MethodPost, e.Method)
	assert.Equal(t, []string{"1"}, e.Query["existing"])
	assert.Equal(t, []string{"2"}, e.Query["page"])
	assert.Equal(t, []string{"a", "b"}, e.Query["tag"])
	assert.Equal(t, []string{"k"}, e.Header["X-Api-Key"])
	assert.Equal(t, []string{"application/json"}, e.Header["Content-Type"])
	assert.Equal(t, []string{"sid=42"}, e.Cookies)
	assert.JSONEq(t, `{"name":"widget"}`, e.Body)
}

func TestRequest_DataBodies(t *testing.T) {
	form := echo(t, Request{Method: http.MethodPost, Data: url.Values{"q": {"go lang"}}})
	assert.Equal(t, "q=go+lang", form.Body)
	assert.Equal(t, []string{"application/x-www-form-urlencoded"}, form.Header["Content-Type"])

	raw := echo(t, Request{Method: http.MethodPut, Data: []byte("raw"), Headers: http.Header{"Content-Type": {"text/plain"}}})
	assert.Equal(t, "raw", raw.Body)
	assert.Equal(t, []string{"text/plain"}, raw.Header["Content-Type"])

	str := echo(t, Request{Method: http.MethodPost, Data: "str"})
	assert.Equal(t, "str", str.Body)

	rd := echo(t, Request{Method: http.MethodPost, Data: strings.NewReader("reader")})
	assert.Equal(t, "reader", rd.Body)
}

func redirectServer(t *testing.T) *httptest.Server {
	return newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/final", http.StatusFound)
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			if n, ok := strings.CutPrefix(r.URL.Path, "/hop/"); ok {
				i, _ := strconv.Atoi(n)
				if i > 0 {
					http.Redirect(w, r, "/hop/"+strconv.Itoa(i-1), http.StatusFound)
					return
				}
			}
			io.WriteString(w, "final")
		}
	})
}

func TestExecute_Redirects(t *testing.T) {
	ts := redirectServer(t)
	ctx := context.Background()
	h := pipeline.Build(httpstages.Status(), httpstages.URL())

	bag, err := Execute(ctx, ts.Client(), Get(ts.URL+"/start"), h, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, bag["status"])
	assert.Equal(t, ts.URL+"/final", bag["url"])

	bag, err = Execute(ctx, ts.Client(), Request{URL: ts.URL + "/start", NoRedirects: true}, h, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, bag["status"])
	assert.Equal(t, ts.URL+"/start", bag["url"])

	_, err = Execute(ctx, ts.Client(), Request{URL: ts.URL + "/loop", MaxRedirects: 2}, h, nil)
	require.True(t, response.IsClientError(err), "got %v", err)
	assert.Contains(t, err.Error(), "stopped after 2 redirects")

	_, err = Execute(ctx, ts.Client(), Get(ts.URL+"/hop/12"), h, nil)
	assert.ErrorContains(t, err, "stopped after 10 redirects")

	bag, err = Execute(ctx, ts.Client(), Request{URL: ts.URL + "/hop/12", MaxRedirects: -1}, h, nil)
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/hop/0", bag["url"])
}

func TestExecute_ClientRedirectPolicyKept(t *testing.T) {
	ts := redirectServer(t)
	client := ts.Client()
	var seen []string
	client.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		seen = append(seen, r.URL.Path)
		if r.URL.Path == "/final" {
			return errors.New("final is off limits")
		}
		return nil
	}
	h := pipeline.Build(httpstages.Status())

	_, err := Execute(context.Background(), client, Get(ts.URL+"/start"), h, nil)
	require.True(t, response.IsClientError(err), "got %v", err)
	assert.ErrorContains(t, err, "final is off limits")
	assert.Equal(t, []string{"/final"}, seen)

	// the executor's own limit is checked first
	seen = nil
	_, err = Execute(context.Background(), client, Request{URL: ts.URL + "/hop/3", MaxRedirects: 2}, h, nil)
	assert.ErrorContains(t, err, "stopped after 2 redirects")
	assert.Equal(t, []string{"/hop/2"}, seen)
}

func TestExecute_Proxy(t *testing.T) {
	proxy := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Proxied-Host", r.URL.Host)
		io.WriteString(w, "via proxy")
	})
	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	h := pipeline.Build(httpstages.Headers(), httpstages.Text())
	bag, err := Execute(context.Background(), nil, Request{URL: "http://origin.test/x", Proxy: proxyURL}, h, nil)
	require.NoError(t, err)
	assert.Equal(t, "via proxy", bag["text"])
	assert.Equal(t, "origin.test", bag["headers"].(http.Header).Get("X-Proxied-Host"))

	custom := &http.Client{Transport: &countingTransport{}}
	_, err = Execute(context.Background(), custom, Request{URL: "http://origin.test/x", Proxy: proxyURL}, h, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestExecute_ProxyReusesConnections(t *testing.T) {
	var conns atomic.Int32
	proxy := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "via proxy")
	}))
	proxy.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			conns.Add(1)
		}
	}
	proxy.Start()
	t.Cleanup(proxy.Close)
	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	exec := New(&http.Client{Transport: &http.Transport{}})
	t.Cleanup(exec.CloseIdleConnections)
	h := pipeline.Build(httpstages.Text())
	for i := 0; i < 5; i++ {
		bag, err := exec.Execute(context.Background(), Request{URL: "http://origin.test/x", Proxy: proxyURL}, h, nil)
		require.NoError(t, err)
		assert.Equal(t, "via proxy", bag["text"])
	}
	assert.EqualValues(t, 1, conns.Load(), "sequential proxied requests should share one connection")

	other, err := url.Parse(proxy.URL + "/")
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), Request{URL: "http://origin.test/x", Proxy: other}, h, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, conns.Load(), "a different proxy URL gets its own transport")
}

func slowServer(t *testing.T) *httptest.Server {
	return newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
}

func TestExecute_Timeout(t *testing.T) {
	ts := slowServer(t)
	bag, err := Execute(context.Background(), ts.Client(), Request{URL: ts.URL, Timeout: 20 * time.Millisecond}, httpstages.StatusOnly(), nil)
	var ce *response.ClientError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Timeout())
	assert.Equal(t, pipeline.Bag{}, bag)

	exec := New(ts.Client(), WithTimeout(20*time.Millisecond))
	_, err = exec.Execute(context.Background(), Get(ts.URL), nil, nil)
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Timeout())
}

func TestExecute_RateLimit(t *testing.T) {
	ts := newServer(t, jsonHandler(`{}`))
	exec := New(ts.Client(), WithRateLimit(rate.NewLimiter(rate.Every(time.Hour), 1)))

	_, err := exec.Execute(context.Background(), Get(ts.URL), nil, nil)
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), Request{URL: ts.URL, Timeout: 50 * time.Millisecond}, nil, nil)
	var ce *response.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "rate limit", ce.Op)
}

func TestExecute_Logger(t *testing.T) {
	ts := newServer(t, jsonHandler(`{}`))
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	exec := New(ts.Client(), WithLogger(logger))

	_, err := exec.Execute(context.Background(), Get(ts.URL+"/path"), httpstages.StatusOnly(), nil)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, 200.0, entry["status"])
	assert.Equal(t, ts.URL+"/path", entry["url"])
	assert.NotContains(t, entry, "error")
}

func TestExecute_Tracing(t *testing.T) {
	ts := newServer(t, jsonHandler(`{"a":1}`))
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	exec := New(ts.Client(), WithTracing(tp))
	_, err := exec.Execute(context.Background(), Get(ts.URL), httpstages.JSONBody(), nil)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	var execSpan, clientSpan sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() == "execute GET" {
			execSpan = s
		} else {
			clientSpan = s
		}
	}
	require.NotNil(t, execSpan)
	require.NotNil(t, clientSpan)
	assert.Contains(t, clientSpan.Name(), "GET")
	assert.Equal(t, execSpan.SpanContext().SpanID(), clientSpan.Parent().SpanID())

	sr2 := tracetest.NewSpanRecorder()
	tp2 := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr2))
	t.Cleanup(func() { _ = tp2.Shutdown(context.Background()) })
	_, err = New(ts.Client(), WithTracing(tp2)).Execute(context.Background(), Get(ts.URL), httpstages.TextBody(), pipeline.Options{})
	require.NoError(t, err)
	_, err = New(ts.Client(), WithTracing(tp2)).Execute(context.Background(), Get(ts.URL+"/x"), pipeline.Build(httpstages.Text(), httpstages.ExpectStatus(201)), nil)
	require.Error(t, err)
	var failed sdktrace.ReadOnlySpan
	for _, s := range sr2.Ended() {
		if s.Name() == "execute GET" && s.Status().Code == codes.Error {
			failed = s
		}
	}
	require.NotNil(t, failed, "failing call should mark its execute span")
}

func TestExecute_ClientNotModified(t *testing.T) {
	ts := redirectServer(t)
	client := ts.Client()
	exec := New(client)
	_, err := exec.Execute(context.Background(), Request{URL: ts.URL + "/start", NoRedirects: true}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, client.CheckRedirect)
}
