package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/dcshock/respipe/config"
	"github.com/dcshock/respipe/httpstages"
	"github.com/dcshock/respipe/internal/logattr"
	"github.com/dcshock/respipe/internal/telemetry"
	"github.com/dcshock/respipe/observer"
	"github.com/dcshock/respipe/pipeline"
	"github.com/dcshock/respipe/request"
)

type rootFlags struct {
	configPath    string
	envFile       string
	pipelinesFile string
	logLevel      string
	metrics       bool
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	cmd := &cobra.Command{
		Use:   "respipe",
		Short: "Fetch URLs and process responses with pipelines",
		Long: `respipe sends HTTP requests and runs each response through a pipeline of
handlers (status, headers, json, extract, expect...). The result is printed
as JSON.

Pipelines are the built-in presets (status, info, read, text, json) or those
defined in a pipelines YAML file (--pipelines or pipelines_file).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "respipe.yaml", "settings file")
	cmd.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "load environment variables from file")
	cmd.PersistentFlags().StringVar(&f.pipelinesFile, "pipelines", "", "pipelines YAML file (overrides pipelines_file)")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level (overrides log.level)")
	cmd.PersistentFlags().BoolVar(&f.metrics, "metrics", false, "print pipeline metrics to stderr on exit")

	cmd.AddCommand(newGetCmd(&f), newBatchCmd(&f), newRunsCmd(&f), newPipelinesCmd(&f))
	return cmd
}

// app holds everything a command needs, built from flags and settings.
type app struct {
	settings  *config.Settings
	logger    *slog.Logger
	exec      *request.Executor
	observer  pipeline.Observer
	pipelines map[string]*pipeline.Pipeline
	store     *observer.Store
	registry  *prometheus.Registry

	out      io.Writer
	errOut   io.Writer
	metrics  bool
	shutdown []func(context.Context) error
}

func setup(cmd *cobra.Command, f *rootFlags) (*app, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f.envFile, err)
		}
	}
	settings, err := config.LoadSettings(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.pipelinesFile != "" {
		settings.PipelinesFile = f.pipelinesFile
	}
	if f.logLevel != "" {
		settings.Log.Level = f.logLevel
	}

	a := &app{
		settings: settings,
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
		metrics:  f.metrics,
		registry: prometheus.NewRegistry(),
	}
	if a.logger, err = newLogger(settings.Log, a.errOut); err != nil {
		return nil, err
	}

	observers := pipeline.MultiObserver{observer.NewLogObserver(a.logger)}
	metrics, err := observer.NewMetricsObserver(a.registry)
	if err != nil {
		return nil, err
	}
	observers = append(observers, metrics)

	execOpts := []request.Option{
		request.WithTimeout(settings.Client.Timeout),
		request.WithLogger(a.logger),
	}
	if settings.Batch.Rate > 0 {
		execOpts = append(execOpts, request.WithRateLimit(rate.NewLimiter(rate.Limit(settings.Batch.Rate), max(settings.Batch.Burst, 1))))
	}
	if settings.Trace.Enabled {
		tp, shutdown, err := telemetry.InitTracer("respipe", a.errOut, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.shutdown = append(a.shutdown, shutdown)
		observers = append(observers, observer.NewTraceObserver(tp))
		execOpts = append(execOpts, request.WithTracing(tp))
	}
	if settings.Store.Path != "" {
		store, err := observer.OpenStore(cmd.Context(), settings.Store.Path)
		if err != nil {
			a.close(cmd.Context())
			return nil, err
		}
		a.store = store
		a.shutdown = append(a.shutdown, func(context.Context) error { return store.Close() })
		observers = append(observers, store)
	}
	a.observer = observers
	a.exec = request.New(&http.Client{}, execOpts...)

	if a.pipelines, err = loadPipelines(settings.PipelinesFile, a.observer); err != nil {
		a.close(cmd.Context())
		return nil, err
	}
	return a, nil
}

// close flushes tracing, closes the store, and prints metrics if requested.
func (a *app) close(ctx context.Context) {
	if a.metrics {
		if err := printMetrics(a.errOut, a.registry); err != nil {
			a.logger.Warn("print metrics", logattr.Error(err))
		}
	}
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			a.logger.Warn("shutdown", logattr.Error(err))
		}
	}
}

func (a *app) pipeline(name string) (*pipeline.Pipeline, error) {
	p, ok := a.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q (have %s)", name, strings.Join(sortedKeys(a.pipelines), ", "))
	}
	return p, nil
}

func (a *app) request(rawURL string) request.Request {
	req := request.Get(rawURL)
	req.MaxRedirects = a.settings.Client.MaxRedirects
	return req
}

func loadPipelines(path string, obs pipeline.Observer) (map[string]*pipeline.Pipeline, error) {
	all := map[string]*pipeline.Pipeline{}
	for _, p := range []*pipeline.Pipeline{
		httpstages.StatusOnly(),
		httpstages.Info(),
		httpstages.ReadBody(),
		httpstages.TextBody(),
		httpstages.JSONBody(),
	} {
		p.Observer = obs
		all[p.Name] = p
	}
	if path == "" {
		return all, nil
	}
	multi, err := config.LoadPipelines(path)
	if err != nil {
		return nil, err
	}
	built, err := config.BuildAllPipelines(config.DefaultRegistry(), multi, &config.BuildOptions{Observer: obs})
	if err != nil {
		return nil, err
	}
	for name, p := range built {
		all[name] = p
	}
	return all, nil
}

func newLogger(s config.LogSettings, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if s.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// printMetrics writes counters and histogram summaries as "name{labels} value".
func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			pairs := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				pairs = append(pairs, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			name := mf.GetName() + "{" + strings.Join(pairs, ",") + "}"
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s %g\n", name, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(w, "%s %g\n", name, m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s count=%d sum=%gs\n", name, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newPipelinesCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List available pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			for _, name := range sortedKeys(a.pipelines) {
				fmt.Fprintf(a.out, "%s\t%d handlers\n", name, len(a.pipelines[name].Handlers))
			}
			return nil
		},
	}
}
