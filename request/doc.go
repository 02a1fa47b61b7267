// Package request executes HTTP requests and runs a response handler on each
// result. It is the I/O boundary of the module: every call returns a
// (pipeline.Bag, error) pair and never leaks the live response.
//
//	exec := request.New(http.DefaultClient, request.WithTimeout(10*time.Second))
//	bag, err := exec.Execute(ctx, request.Get("https://api.example.com/items"),
//	    httpstages.JSONBody(), nil)
//	switch {
//	case response.IsClientError(err):
//	    // connection refused, timeout, too many redirects, ...
//	case err != nil:
//	    // handler error: decode failure, rejection, ...
//	}
//
// Non-2xx statuses are not errors here; add httpstages.ExpectOK to a pipeline
// that should fail on them. There are no retries.
package request
