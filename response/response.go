package response

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// maxDrain bounds how much of an unread body Release discards before closing,
// so a huge body does not keep the call busy just to reuse the connection.
const maxDrain = 64 << 10

// Response is the scope-bound wrapper around one *http.Response. It is owned by
// a single request execution and must not be used after Release.
type Response struct {
	raw *http.Response

	mu       sync.Mutex
	body     []byte
	read     bool
	readErr  error
	released bool

	releaseOnce sync.Once
	releaseErr  error
}

// New wraps raw. The caller keeps the responsibility of calling Release.
func New(raw *http.Response) *Response {
	return &Response{raw: raw}
}

// Raw returns the underlying response. Its body must not be read directly;
// use Read so that other handlers still see the content.
func (r *Response) Raw() *http.Response { return r.raw }

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.raw.StatusCode }

// OK reports whether the status code is below 400.
func (r *Response) OK() bool { return r.raw.StatusCode < 400 }

// Header returns the response headers. Lookups through Get are case-insensitive
// and each key keeps its values in received order.
func (r *Response) Header() http.Header { return r.raw.Header }

// Cookies parses the Set-Cookie headers.
func (r *Response) Cookies() []*http.Cookie { return r.raw.Cookies() }

// URL returns the final request URL, after redirects.
func (r *Response) URL() *url.URL {
	if r.raw.Request == nil {
		return nil
	}
	return r.raw.Request.URL
}

// ContentType returns the raw Content-Type header.
func (r *Response) ContentType() string { return r.raw.Header.Get("Content-Type") }

// Read returns the full body. The first call consumes the stream; later calls
// return the cached bytes (or the cached error).
func (r *Response) Read(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.read {
		return r.body, r.readErr
	}
	if r.released {
		return nil, ErrReleased
	}
	if err := ctx.Err(); err != nil {
		return nil, r.clientError("read body", err)
	}
	r.read = true
	if r.raw.Body == nil || r.raw.Body == http.NoBody {
		r.body = []byte{}
		return r.body, nil
	}
	body, err := io.ReadAll(r.raw.Body)
	if err != nil {
		r.readErr = r.clientError("read body", err)
		return nil, r.readErr
	}
	r.body = body
	return r.body, nil
}

// Release drains what is left of the body (up to a bound) and closes it. Only
// the first call has an effect; later calls return the first result.
func (r *Response) Release() error {
	r.releaseOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.released = true
		if r.raw.Body == nil {
			return
		}
		if !r.read {
			_, _ = io.CopyN(io.Discard, r.raw.Body, maxDrain)
		}
		r.releaseErr = r.raw.Body.Close()
	})
	return r.releaseErr
}

// Released reports whether Release has been called.
func (r *Response) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

func (r *Response) clientError(op string, err error) *ClientError {
	ce := &ClientError{Op: op, Err: err}
	if req := r.raw.Request; req != nil {
		ce.Method = req.Method
		if req.URL != nil {
			ce.URL = req.URL.Redacted()
		}
	}
	return ce
}
