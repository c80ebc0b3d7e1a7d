package main

import (
	"context"
	"fmt"

	v1 "github.com/dirpack/dirpack/apis/v1"
	"github.com/dirpack/dirpack/internal/runner"
	"go.uber.org/zap"
)

type jobResult struct {
	report runner.Report
	err    error
}

type progressEvent struct {
	written int
	total   int
}

// executeJob runs an archive job on its own worker goroutine and
// renders progress on the calling goroutine. Progress events cross the
// goroutine boundary over a channel; the runner itself never touches
// the caller's context beyond cancellation.
func executeJob(ctx context.Context, logger *zap.Logger, job v1.ArchiveJob) error {
	injector := runner.BuildContainer(logger)
	defer injector.Shutdown()

	opts := runner.OptionsFromContainer(injector)

	events := make(chan progressEvent, 64)
	opts.Progress = func(written, total int) {
		events <- progressEvent{written: written, total: total}
	}

	r, err := runner.New(logger.Named("runner"), job, opts)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	done := make(chan jobResult, 1)
	go func() {
		report, runErr := r.Run(ctx)
		close(events)
		done <- jobResult{report: report, err: runErr}
	}()

	lastPercent := -1
	for ev := range events {
		percent := 100
		if ev.total > 0 {
			percent = ev.written * 100 / ev.total
		}
		if percent != lastPercent {
			lastPercent = percent
			logger.Info(fmt.Sprintf("progress %d%%", percent),
				zap.Int("written", ev.written),
				zap.Int("total", ev.total))
		}
	}

	result := <-done
	if result.err != nil {
		return result.err
	}

	logger.Info("job finished",
		zap.String("state", string(result.report.State)),
		zap.String("output", result.report.Output),
		zap.Int("files", result.report.FilesWritten))
	return nil
}
