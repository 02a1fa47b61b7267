package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dcshock/respipe/response"
)

// ErrInvalidRequest is wrapped by errors for Request values that cannot be
// sent as given (conflicting body options, unsupported body types). These are
// usage errors, not client errors.
var ErrInvalidRequest = errors.New("invalid request")

// DefaultMaxRedirects is the redirect limit when Request.MaxRedirects is zero.
// A negative MaxRedirects removes the limit.
const DefaultMaxRedirects = 10

// Request describes one HTTP call.
type Request struct {
	Method  string // default GET
	URL     string
	Params  url.Values // added to the URL query
	Headers http.Header
	Cookies []*http.Cookie

	// Data is the raw body: []byte, string, io.Reader, or url.Values (sent as
	// a form). JSON is marshalled and sent as application/json. At most one of
	// the two may be set.
	Data any
	JSON any

	NoRedirects  bool // return the first 3xx response instead of following it
	MaxRedirects int  // 0 means DefaultMaxRedirects, negative means no limit
	Proxy        *url.URL
	Timeout      time.Duration // overrides the executor timeout for this call
}

// Get is shorthand for a GET Request.
func Get(rawURL string) Request {
	return Request{Method: http.MethodGet, URL: rawURL}
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

func (r Request) build(ctx context.Context) (*http.Request, error) {
	method := r.method()
	if r.Data != nil && r.JSON != nil {
		return nil, fmt.Errorf("%w: data and json are mutually exclusive", ErrInvalidRequest)
	}

	u, err := url.Parse(r.URL)
	if err == nil && (u.Scheme == "" || u.Host == "") {
		err = fmt.Errorf("url %q: missing scheme or host", r.URL)
	}
	if err != nil {
		return nil, &response.ClientError{Op: "build request", Method: method, URL: r.URL, Err: err}
	}
	if len(r.Params) > 0 {
		q := u.Query()
		for k, vs := range r.Params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	body, contentType, err := r.body()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for k, vs := range r.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range r.Cookies {
		req.AddCookie(c)
	}
	return req, nil
}

func (r Request) body() (io.Reader, string, error) {
	if r.JSON != nil {
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("%w: marshal json: %v", ErrInvalidRequest, err)
		}
		return bytes.NewReader(b), "application/json", nil
	}
	switch d := r.Data.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(d), "", nil
	case string:
		return strings.NewReader(d), "", nil
	case url.Values:
		return strings.NewReader(d.Encode()), "application/x-www-form-urlencoded", nil
	case io.Reader:
		return d, "", nil
	default:
		return nil, "", fmt.Errorf("%w: unsupported data type %T", ErrInvalidRequest, r.Data)
	}
}
