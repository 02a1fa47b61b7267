// Package logattr provides slog attribute helpers shared by the executor,
// observers, and CLI. Helpers return an empty Attr for zero inputs so calls
// like log.Info("msg", logattr.Error(err)) need no nil checks.
package logattr

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// Returns empty Attr for nil errors.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Method creates an attribute for HTTP methods.
func Method(method string) slog.Attr {
	return slog.String("method", method)
}

// URL creates an attribute for a request URL. Pass a redacted URL.
func URL(u string) slog.Attr {
	if u == "" {
		return slog.Attr{}
	}
	return slog.String("url", u)
}

// StatusCode creates an attribute for HTTP status codes. Zero means no
// response was received and yields an empty Attr.
func StatusCode(code int) slog.Attr {
	if code == 0 {
		return slog.Attr{}
	}
	return slog.Int("status", code)
}

// RunID creates an attribute for a pipeline run ID.
func RunID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("run_id", id)
}

// Pipeline creates an attribute for a pipeline name.
func Pipeline(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("pipeline", name)
}

// Handler creates an attribute for a handler index within a pipeline.
func Handler(index int) slog.Attr {
	return slog.Int("handler", index)
}

// Component creates an attribute naming the emitting component.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
