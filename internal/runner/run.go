// Package runner orchestrates archive jobs: it loads ignore rules,
// scans the root, then streams the selected files into the container,
// reporting progress and honoring cancellation between files.
package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	v1 "github.com/dirpack/dirpack/apis/v1"
	"github.com/dirpack/dirpack/internal/archive"
	"github.com/dirpack/dirpack/internal/ignore"
	"github.com/dirpack/dirpack/internal/scan"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrCancelled marks a job that observed cooperative cancellation, as
// opposed to one that failed.
var ErrCancelled = errors.New("archive job cancelled")

// State tracks a job through its lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateScanning  State = "scanning"
	StateWriting   State = "writing"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Report summarizes the outcome of a job.
type Report struct {
	State        State
	Format       archive.Format
	Output       string
	FilesTotal   int
	FilesWritten int
}

// Options carries the collaborators a Runner needs. Zero values fall
// back to the OS filesystem, the default format registry and no-op
// observers.
type Options struct {
	Fs       afero.Fs
	Registry *archive.Registry
	Progress ProgressFunc
	Log      LogFunc
}

// Runner executes one archive job. It is single-use: create one per
// job and call Run once, on a worker goroutine if the caller must not
// block. A given output path must not be targeted by two concurrent
// runners.
type Runner struct {
	logger *zap.Logger
	job    v1.ArchiveJob
	format archive.Format
	opts   Options
	state  State
}

// New validates the job's format up front so an unsupported format
// fails before any scanning or file creation happens.
func New(logger *zap.Logger, job v1.ArchiveJob, opts Options) (*Runner, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Registry == nil {
		opts.Registry = archive.DefaultRegistry()
	}
	if opts.Progress == nil {
		opts.Progress = func(int, int) {}
	}
	if opts.Log == nil {
		opts.Log = func(string, Level) {}
	}

	format, err := archive.ParseFormat(job.Spec.Format, job.Spec.Output)
	if err != nil {
		return nil, err
	}
	if !opts.Registry.Supported(format) {
		return nil, &archive.UnsupportedFormatError{Requested: format, Available: opts.Registry.Available()}
	}

	logger.Info("created archive runner",
		zap.String("job_name", job.Metadata.Name),
		zap.String("root", job.Spec.Root),
		zap.String("output", job.Spec.Output),
		zap.String("format", string(format)))

	return &Runner{
		logger: logger,
		job:    job,
		format: format,
		opts:   opts,
		state:  StatePending,
	}, nil
}

// State returns the job's current state. It is updated from the worker
// goroutine; observe it from the log callback if cross-goroutine reads
// matter.
func (r *Runner) State() State {
	return r.state
}

// Run executes the job: scan phase, then write phase. It never panics
// across the worker boundary; every failure is logged through the log
// observer and returned. On cancellation the returned error wraps
// ErrCancelled and the report's state is StateCancelled. A partially
// written container is left on disk for inspection; it is not rolled
// back.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{State: StatePending, Format: r.format, Output: r.job.Spec.Output}

	if r.job.Spec.Password != "" {
		r.say("password supplied but archive encryption is not supported; writing unencrypted container", LevelWarning)
	}

	entries, err := r.scanPhase(ctx, &report)
	if err != nil {
		return r.finish(report, err)
	}

	if err := r.writePhase(ctx, entries, &report); err != nil {
		return r.finish(report, err)
	}

	report.State = StateSucceeded
	r.state = StateSucceeded
	r.say(fmt.Sprintf("archive created: %s (%d files)", r.job.Spec.Output, report.FilesWritten), LevelSuccess)
	return report, nil
}

func (r *Runner) scanPhase(ctx context.Context, report *Report) ([]scan.FileEntry, error) {
	r.state = StateScanning
	report.State = StateScanning

	rules := r.loadRules()
	scanner := scan.NewScanner(r.logger.Named("scan"), scan.Options{
		Rules:         rules,
		ExcludeOutput: r.job.Spec.Output,
		Status: func(msg string) {
			r.say(msg, LevelDebug)
		},
	})

	entries, err := scanner.Scan(ctx, r.job.Spec.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", r.job.Spec.Root, err)
	}

	report.FilesTotal = len(entries)
	r.say(fmt.Sprintf("selected %d files under %s", len(entries), r.job.Spec.Root), LevelInfo)
	return entries, nil
}

func (r *Runner) loadRules() *ignore.RuleSet {
	spec := r.job.Spec.Ignore

	var rules *ignore.RuleSet
	if spec != nil && spec.DisableGitignore {
		rules = &ignore.RuleSet{}
	} else {
		rules = ignore.Load(r.job.Spec.Root, r.logger.Named("ignore"))
	}

	if spec != nil && len(spec.Patterns) > 0 {
		var extra []byte
		for _, p := range spec.Patterns {
			extra = append(extra, p...)
			extra = append(extra, '\n')
		}
		rules = rules.Merge(ignore.ParseRules(extra))
	}

	return rules
}

// writePhase streams entries into the container. Cancellation is polled
// before each file, never mid-file, so a cancelled job stops within one
// file-write of the request.
func (r *Runner) writePhase(ctx context.Context, entries []scan.FileEntry, report *Report) (err error) {
	r.state = StateWriting
	report.State = StateWriting

	if len(entries) == 0 {
		r.say("no files selected; writing empty container", LevelWarning)
	}

	writer, err := r.opts.Registry.Create(r.format, r.opts.Fs, r.job.Spec.Output)
	if err != nil {
		return fmt.Errorf("failed to open archive writer: %w", err)
	}
	defer func() {
		// The container handle is released on every exit path. On the
		// success path a close failure is a real write failure.
		closeErr := writer.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("failed to finalize archive: %w", closeErr)
		}
	}()

	for _, entry := range entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w after %d of %d files", ErrCancelled, report.FilesWritten, report.FilesTotal)
		}

		if err := r.writeOne(ctx, writer, entry); err != nil {
			return err
		}

		report.FilesWritten++
		r.opts.Progress(report.FilesWritten, report.FilesTotal)
	}

	return nil
}

func (r *Runner) writeOne(ctx context.Context, writer archive.Writer, entry scan.FileEntry) error {
	f, err := r.opts.Fs.Open(entry.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", entry.Path, err)
	}
	defer f.Close()

	if err := writer.AddFile(ctx, entry.Name, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", entry.Name, err)
	}

	r.logger.Debug("archived file", zap.String("name", entry.Name))
	return nil
}

// finish records the terminal state for a failed or cancelled job and
// reports it once through the log observer.
func (r *Runner) finish(report Report, err error) (Report, error) {
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		report.State = StateCancelled
		r.state = StateCancelled
		r.say(err.Error(), LevelWarning)
		return report, err
	}

	report.State = StateFailed
	r.state = StateFailed
	r.say(err.Error(), LevelError)
	return report, err
}

func (r *Runner) say(msg string, level Level) {
	switch level {
	case LevelDebug:
		r.logger.Debug(msg)
	case LevelWarning:
		r.logger.Warn(msg)
	case LevelError:
		r.logger.Error(msg)
	default:
		r.logger.Info(msg)
	}
	r.opts.Log(msg, level)
}

// OutputAbs returns the absolute output path of the job.
func (r *Runner) OutputAbs() string {
	abs, err := filepath.Abs(r.job.Spec.Output)
	if err != nil {
		return r.job.Spec.Output
	}
	return abs
}
