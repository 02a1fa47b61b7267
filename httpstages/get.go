package httpstages

import (
	"context"

	"github.com/dcshock/respipe/pipeline"
	"github.com/dcshock/respipe/response"
)

// Status returns a handler that stores the status code and whether it is below 400.
func Status() pipeline.Handler {
	return pipeline.HandlerFunc(func(_ context.Context, bag pipeline.Bag, resp *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		bag[KeyStatus] = resp.StatusCode()
		bag[KeyOK] = resp.OK()
		return bag, nil
	})
}

// Headers returns a handler that stores a copy of the response headers.
func Headers() pipeline.Handler {
	return pipeline.HandlerFunc(func(_ context.Context, bag pipeline.Bag, resp *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		bag[KeyHeaders] = resp.Header().Clone()
		return bag, nil
	})
}

// Cookies returns a handler that stores the cookies set by the response.
func Cookies() pipeline.Handler {
	return pipeline.HandlerFunc(func(_ context.Context, bag pipeline.Bag, resp *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		bag[KeyCookies] = resp.Cookies()
		return bag, nil
	})
}

// URL returns a handler that stores the final request URL, after redirects.
func URL() pipeline.Handler {
	return pipeline.HandlerFunc(func(_ context.Context, bag pipeline.Bag, resp *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		u := ""
		if ru := resp.URL(); ru != nil {
			u = ru.String()
		}
		bag[KeyURL] = u
		return bag, nil
	})
}
