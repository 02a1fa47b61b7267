package httpstages

import "github.com/dcshock/respipe/pipeline"

// Preset pipelines. Each call returns a fresh *pipeline.Pipeline so callers
// may set Name or Observer without affecting others.

// StatusOnly extracts status and ok.
func StatusOnly() *pipeline.Pipeline {
	return pipeline.Build(Status()).Named("status")
}

// Info extracts status, ok, headers and cookies.
func Info() *pipeline.Pipeline {
	return pipeline.Build(Status(), Headers(), Cookies()).Named("info")
}

// ReadBody is Info plus the raw body.
func ReadBody() *pipeline.Pipeline {
	return pipeline.Develop(Info(), Read()).Named("read")
}

// TextBody is Info plus the decoded text.
func TextBody() *pipeline.Pipeline {
	return pipeline.Develop(Info(), Text()).Named("text")
}

// JSONBody is Info plus the decoded JSON.
func JSONBody() *pipeline.Pipeline {
	return pipeline.Develop(Info(), JSON()).Named("json")
}
