// Package scheduler runs the pipeline on a cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/viktsys/tt2ingest/logger"
)

// Runner fires jobs on a six-field cron spec (seconds first). A job still
// running when its next tick comes is skipped for that tick.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(log *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	log = logger.OrNop(log)
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			// Recover must wrap the job inside the skip guard, or a panic
			// keeps the guard held and every later tick is skipped.
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log}), cron.Recover(cronLogger{log})),
		),
		logger:  log,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec. Jobs receive the runner's base context.
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() { job(r.baseCtx) })
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return id, nil
}

// Next returns when the entry fires next. Zero before Start.
func (r *Runner) Next(id cron.EntryID) string {
	next := r.cron.Entry(id).Next
	if next.IsZero() {
		return ""
	}
	return next.Format("2006-01-02 15:04:05 MST")
}

func (r *Runner) Start() {
	r.logger.Info("cron started")
	r.cron.Start()
}

// Stop waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
