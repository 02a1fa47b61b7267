// Package pipeline composes response handlers into ordered pipelines. A Handler
// receives the result bag built so far, the live response, and the caller's
// options, and returns the next bag or an error. A Pipeline runs its handlers
// in order and stops at the first error, returning the failing handler's bag
// and its exact error (railway style: no wrapping, no retries).
//
// Build makes a pipeline from handlers; Develop extends an existing pipeline
// with more handlers. Because *Pipeline implements Handler, pipelines nest:
//
//	info := pipeline.Build(httpstages.Status(), httpstages.Headers())
//	withJSON := pipeline.Develop(info, httpstages.JSON())
//
// Develop(Build(h1, h2), h3) yields the same bag and error as Build(h1, h2, h3).
//
// # Bags and options
//
// A pipeline clones the incoming Bag once, so the caller's map is never
// mutated; inside one run the bag is owned by that run and handlers may write
// to it. A nil bag returned without error counts as empty.
//
// Options is the immutable map passed unchanged to every handler. Each handler
// reads only its own sub-key (for example "text" or "json") through Sub or
// Decode and ignores the rest.
//
// # Observer hooks
//
// Set Pipeline.Observer to receive pre/post hooks for the pipeline and each
// handler (logging, metrics, tracing, run persistence). Every observed run has
// a Run with an ID; nested pipelines inherit the ID of the enclosing run, which
// handlers can read with RunFromContext. A hook error aborts the run with a
// wrapped error but never hides a handler's own error.
package pipeline
