package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/viktsys/tt2ingest/config"
	"github.com/viktsys/tt2ingest/logger"
	"github.com/viktsys/tt2ingest/source"
)

const (
	DefaultWorkerCount = 8
	DefaultMaxAttempts = 1
)

// RetryPolicy applies to every retrieval call the executor makes. Only errors
// are retried; absence never is.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

func RetryFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.Backoff, MaxBackoff: cfg.MaxBackoff}
}

// delay returns the wait before the given retry (1-based).
func (p RetryPolicy) delay(retry int) time.Duration {
	d := p.Backoff
	for i := 1; i < retry; i++ {
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			break
		}
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// FetchFunc retrieves one subject. found=false with a nil error means the
// source has nothing for it.
type FetchFunc[T any] func(ctx context.Context, subject string) (result T, found bool, err error)

// Report counts the outcome of one Collect call.
type Report struct {
	Total  int
	Found  int
	Absent int
	Failed int
	// Skipped subjects were never attempted because the run was cancelled.
	Skipped int
}

// Executor runs one retrieval per subject on a fixed number of workers.
type Executor struct {
	workers int
	retry   RetryPolicy
	logger  *zap.Logger
}

func NewExecutor(workers int, retry RetryPolicy, log *zap.Logger) *Executor {
	if workers < 1 {
		workers = DefaultWorkerCount
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = DefaultMaxAttempts
	}
	return &Executor{workers: workers, retry: retry, logger: logger.OrNop(log)}
}

func (e *Executor) Workers() int { return e.workers }

// Collect runs fetch for every subject and blocks until all dispatched tasks
// are done. Results come back in completion order. A task that errors or
// panics is logged and treated as absent; it never affects other tasks. Once
// ctx is cancelled no further subjects are dispatched.
func Collect[T any](ctx context.Context, e *Executor, subjects []string, fetch FetchFunc[T]) ([]T, Report) {
	report := Report{Total: len(subjects)}
	if len(subjects) == 0 {
		return nil, report
	}

	workers := e.workers
	if workers > len(subjects) {
		workers = len(subjects)
	}

	var (
		mu        sync.Mutex
		results   = make([]T, 0, len(subjects))
		completed int64
		found     int64
		failed    int64
	)

	subjectChan := make(chan string)
	go func() {
		defer close(subjectChan)
		for _, s := range subjects {
			select {
			case subjectChan <- s:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for subject := range subjectChan {
				if ctx.Err() != nil {
					continue
				}
				res, ok, err := attempt(ctx, e, subject, fetch)
				done := atomic.AddInt64(&completed, 1)
				switch {
				case err != nil:
					atomic.AddInt64(&failed, 1)
					e.logger.Debug("retrieval failed",
						zap.Int("worker", workerID),
						zap.String("subject", subject),
						zap.Error(err))
				case ok:
					atomic.AddInt64(&found, 1)
					mu.Lock()
					results = append(results, res)
					mu.Unlock()
				}
				e.logger.Debug("progress",
					zap.Int64("completed", done),
					zap.Int("total", len(subjects)),
					zap.String("subject", subject))
			}
		}(i)
	}
	wg.Wait()

	report.Found = int(found)
	report.Failed = int(failed)
	report.Absent = int(completed) - report.Found - report.Failed
	report.Skipped = report.Total - int(completed)
	e.logger.Info("retrieval finished",
		zap.Int("total", report.Total),
		zap.Int("found", report.Found),
		zap.Int("absent", report.Absent),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("workers", workers))
	return results, report
}

// attempt calls fetch under the retry policy.
func attempt[T any](ctx context.Context, e *Executor, subject string, fetch FetchFunc[T]) (T, bool, error) {
	var zero T
	var lastErr error
	for n := 1; n <= e.retry.MaxAttempts; n++ {
		if n > 1 {
			timer := time.NewTimer(e.retry.delay(n - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, false, ctx.Err()
			case <-timer.C:
			}
		}

		res, ok, err := call(ctx, subject, fetch)
		if err == nil {
			return res, ok, nil
		}
		if errors.Is(err, source.ErrNotFound) {
			return zero, false, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return zero, false, lastErr
}

func call[T any](ctx context.Context, subject string, fetch FetchFunc[T]) (res T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic fetching %s: %v", subject, r)
		}
	}()
	return fetch(ctx, subject)
}
