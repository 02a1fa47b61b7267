package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcshock/respipe/pipeline"
	"github.com/dcshock/respipe/request"
)

type getFlags struct {
	pipeline    string
	method      string
	headers     []string
	params      []string
	data        string
	jsonBody    string
	noRedirects bool
	timeout     time.Duration
	options     []string
}

func newGetCmd(root *rootFlags) *cobra.Command {
	var f getFlags
	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Send one request and print the pipeline result",
		Example: `  respipe get https://httpbin.org/json
  respipe get https://httpbin.org/post -X POST --json '{"a":1}' -P info
  respipe get https://api.example.com/items -P items --pipelines pipelines.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, root)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			p, err := a.pipeline(f.pipeline)
			if err != nil {
				return err
			}
			req, err := f.request(a, args[0])
			if err != nil {
				return err
			}
			opts, err := parseOptions(f.options)
			if err != nil {
				return err
			}
			bag, err := a.exec.Execute(cmd.Context(), req, p, opts)
			if err != nil {
				return err
			}
			return writeJSON(a.out, bag)
		},
	}
	cmd.Flags().StringVarP(&f.pipeline, "pipeline", "P", "json", "pipeline to run on the response")
	cmd.Flags().StringVarP(&f.method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, `request header "Name: value", can be repeated`)
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "query parameter key=value, can be repeated")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "raw request body")
	cmd.Flags().StringVar(&f.jsonBody, "json", "", "JSON request body")
	cmd.Flags().BoolVar(&f.noRedirects, "no-redirects", false, "do not follow redirects")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "request timeout (overrides client.timeout)")
	cmd.Flags().StringArrayVarP(&f.options, "option", "o", nil, "handler option section.key=value (e.g. json.skip_content_type_check=true)")
	return cmd
}

func (f *getFlags) request(a *app, rawURL string) (req request.Request, err error) {
	req = a.request(rawURL)
	req.Method = f.method
	req.NoRedirects = f.noRedirects
	req.Timeout = f.timeout

	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return req, fmt.Errorf("header %q: want \"Name: value\"", h)
		}
		if req.Headers == nil {
			req.Headers = http.Header{}
		}
		req.Headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	for _, p := range f.params {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return req, fmt.Errorf("param %q: want key=value", p)
		}
		if req.Params == nil {
			req.Params = url.Values{}
		}
		req.Params.Add(k, v)
	}
	if f.data != "" {
		req.Data = f.data
	}
	if f.jsonBody != "" {
		if !json.Valid([]byte(f.jsonBody)) {
			return req, fmt.Errorf("--json is not valid JSON")
		}
		req.JSON = json.RawMessage(f.jsonBody)
	}
	return req, nil
}

// parseOptions turns section.key=value pairs into nested handler options.
func parseOptions(pairs []string) (pipeline.Options, error) {
	var opts pipeline.Options
	for _, pair := range pairs {
		path, value, ok := strings.Cut(pair, "=")
		section, key, nested := strings.Cut(path, ".")
		if !ok || section == "" {
			return nil, fmt.Errorf("option %q: want section.key=value", pair)
		}
		if !nested {
			opts = opts.With(section, value)
			continue
		}
		opts = opts.With(section, opts.Sub(section).With(key, value))
	}
	return opts, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
