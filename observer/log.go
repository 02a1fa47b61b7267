package observer

import (
	"context"
	"log/slog"
	"time"

	"github.com/dcshock/respipe/internal/logattr"
	"github.com/dcshock/respipe/pipeline"
)

// LogObserver logs pipeline and handler events. Handler events and pipeline
// starts are logged at debug level; a finished pipeline is logged at info, or
// warn when it failed.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver returns a LogObserver writing to l (slog.Default when nil).
func NewLogObserver(l *slog.Logger) *LogObserver {
	if l == nil {
		l = slog.Default()
	}
	return &LogObserver{logger: l.With(logattr.Component("pipeline"))}
}

func (o *LogObserver) BeforePipeline(ctx context.Context, run pipeline.Run, bag pipeline.Bag) error {
	o.logger.DebugContext(ctx, "pipeline started", logattr.RunID(run.ID), logattr.Pipeline(run.Pipeline))
	return nil
}

func (o *LogObserver) AfterPipeline(ctx context.Context, run pipeline.Run, bag pipeline.Bag, err error) error {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	o.logger.LogAttrs(ctx, level, "pipeline finished",
		logattr.RunID(run.ID),
		logattr.Pipeline(run.Pipeline),
		slog.String("outcome", Outcome(err)),
		slog.Int("keys", len(bag)),
		logattr.Error(err),
	)
	return nil
}

func (o *LogObserver) BeforeHandler(ctx context.Context, run pipeline.Run, index int, bag pipeline.Bag) error {
	o.logger.DebugContext(ctx, "handler started", logattr.RunID(run.ID), logattr.Pipeline(run.Pipeline), logattr.Handler(index))
	return nil
}

func (o *LogObserver) AfterHandler(ctx context.Context, run pipeline.Run, index int, bag pipeline.Bag, handlerErr error, d time.Duration) error {
	o.logger.LogAttrs(ctx, slog.LevelDebug, "handler finished",
		logattr.RunID(run.ID),
		logattr.Pipeline(run.Pipeline),
		logattr.Handler(index),
		slog.String("outcome", Outcome(handlerErr)),
		logattr.Duration(d),
		logattr.Error(handlerErr),
	)
	return nil
}
