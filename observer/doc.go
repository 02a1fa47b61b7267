// Package observer provides pipeline.Observer implementations:
//
//   - LogObserver: structured slog events for every pipeline and handler.
//   - MetricsObserver: Prometheus counters and duration histograms.
//   - TraceObserver: OpenTelemetry spans, one per pipeline run with a child
//     span per handler.
//   - Store: persists each run and its handlers to SQLite (pipeline_run,
//     pipeline_run_handler) for later inspection.
//
// Combine several with pipeline.MultiObserver:
//
//	p.Observer = pipeline.MultiObserver{
//	    observer.NewLogObserver(logger),
//	    metrics,
//	    store,
//	}
//
// Every observer classifies a finished run or handler with Outcome: success,
// rejected, decode_error, client_error, or failed.
package observer

import (
	"errors"

	"github.com/dcshock/respipe/pipeline"
	"github.com/dcshock/respipe/response"
)

// Outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeRejected    = "rejected"
	OutcomeDecodeError = "decode_error"
	OutcomeClientError = "client_error"
	OutcomeFailed      = "failed"
)

// Outcome classifies err for logs, metrics, and storage.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, pipeline.ErrRejected):
		return OutcomeRejected
	case errors.Is(err, response.ErrDecode):
		return OutcomeDecodeError
	case response.IsClientError(err):
		return OutcomeClientError
	default:
		return OutcomeFailed
	}
}
