// Package response wraps a live *http.Response for the duration of one request
// and defines the error categories shared by the executor and handlers.
//
// A Response is borrowed: the request executor acquires it, hands it to a
// handler, and releases it before returning. Handlers read from it through
// Read, Text, and JSON; each body read goes through a cache so several
// handlers in one pipeline can decode the same body.
//
// Errors fall into two categories:
//
//   - ClientError: the transport failed (connect, send, timeout, redirect
//     limit, or reading the body). Check with IsClientError.
//   - DecodeError: the body could not be interpreted (bad charset, invalid
//     JSON, unexpected content type). Check with errors.Is(err, ErrDecode).
package response
