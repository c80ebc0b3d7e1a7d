// Package scan enumerates the regular files beneath a root directory in
// a deterministic order, honoring ignore rules.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dirpack/dirpack/internal/ignore"
	"go.uber.org/zap"
)

// FileEntry pairs a file on disk with the name it will carry inside the
// archive. Name is always slash-separated, relative to the scan root and
// free of ".." segments.
type FileEntry struct {
	Path string
	Name string
}

// StatusFunc receives human-readable scan status messages.
type StatusFunc func(msg string)

// Options configures a Scanner.
type Options struct {
	// Rules excludes matching paths. Nil means no exclusions.
	Rules *ignore.RuleSet

	// ExcludeOutput is the absolute path of the archive being produced,
	// skipped during the walk so the archive never contains itself.
	ExcludeOutput string

	// Status, if set, is called with a message before scanning starts and
	// with the final count once scanning completes.
	Status StatusFunc
}

// Scanner walks a directory tree and produces the ordered list of files
// to archive. Entries within each directory are visited in lexicographic
// order, so two scans of the same tree yield identical lists.
type Scanner struct {
	logger *zap.Logger
	opts   Options
}

// NewScanner creates a Scanner. A nil Rules option behaves like an empty
// rule set.
func NewScanner(logger *zap.Logger, opts Options) *Scanner {
	if opts.Rules == nil {
		opts.Rules = &ignore.RuleSet{}
	}
	if opts.ExcludeOutput != "" {
		if abs, err := filepath.Abs(opts.ExcludeOutput); err == nil {
			opts.ExcludeOutput = abs
		}
	}
	return &Scanner{logger: logger, opts: opts}
}

// Scan enumerates the regular files under root. Per-entry read errors
// are logged and skipped; an unreadable root is fatal. Symlinked
// directories are followed unless they loop back into an ancestor, in
// which case the link is skipped. The walk checks ctx between directory
// entries and returns ctx.Err() once cancelled.
func (s *Scanner) Scan(ctx context.Context, root string) ([]FileEntry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	if s.opts.Status != nil {
		s.opts.Status(fmt.Sprintf("scanning %s", absRoot))
	}

	w := &walker{
		scanner: s,
		seen:    make(map[string]struct{}),
		branch:  make(map[string]struct{}),
	}

	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	w.branch[realRoot] = struct{}{}

	if err := w.walk(ctx, absRoot, ""); err != nil {
		return nil, err
	}

	if s.opts.Status != nil {
		s.opts.Status(fmt.Sprintf("found %d files", len(w.entries)))
	}

	return w.entries, nil
}

// walker carries the per-scan traversal state: collected entries, the
// set of archive names already taken and the resolved directories on the
// current ancestry branch (for symlink cycle detection).
type walker struct {
	scanner *Scanner
	entries []FileEntry
	seen    map[string]struct{}
	branch  map[string]struct{}
}

func (w *walker) walk(ctx context.Context, dir, rel string) error {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if rel == "" {
			return fmt.Errorf("failed to read root directory: %w", err)
		}
		w.scanner.logger.Warn("skipping unreadable directory", zap.String("path", dir), zap.Error(err))
		return nil
	}

	rules := w.scanner.opts.Rules

	// os.ReadDir returns entries sorted by name, which keeps the output
	// deterministic across runs and hosts.
	for _, dirent := range dirents {
		if err := ctx.Err(); err != nil {
			return err
		}

		full := filepath.Join(dir, dirent.Name())
		name := dirent.Name()
		if rel != "" {
			name = rel + "/" + dirent.Name()
		}

		info, err := os.Stat(full)
		if err != nil {
			w.scanner.logger.Warn("skipping unreadable entry", zap.String("path", full), zap.Error(err))
			continue
		}

		switch {
		case info.IsDir():
			if rules.Match(name, true) && !rules.HasNegations() {
				continue
			}
			if dirent.Type()&os.ModeSymlink != 0 {
				if err := w.walkSymlinkDir(ctx, full, name); err != nil {
					return err
				}
				continue
			}
			if err := w.walk(ctx, full, name); err != nil {
				return err
			}

		case info.Mode().IsRegular():
			if w.scanner.opts.ExcludeOutput != "" && samePath(full, w.scanner.opts.ExcludeOutput) {
				continue
			}
			if rules.Match(name, false) {
				continue
			}
			if _, dup := w.seen[name]; dup {
				w.scanner.logger.Warn("skipping duplicate archive name", zap.String("name", name))
				continue
			}
			w.seen[name] = struct{}{}
			w.entries = append(w.entries, FileEntry{Path: full, Name: name})

		default:
			w.scanner.logger.Debug("skipping non-regular file", zap.String("path", full))
		}
	}

	return nil
}

// walkSymlinkDir walks a symlinked directory unless its target is
// already on the current ancestry branch, which would loop forever.
// A cycle or unresolvable link is logged and skipped, not fatal.
func (w *walker) walkSymlinkDir(ctx context.Context, full, name string) error {
	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		w.scanner.logger.Warn("skipping unresolvable symlink", zap.String("path", full), zap.Error(err))
		return nil
	}
	if _, onBranch := w.branch[real]; onBranch {
		w.scanner.logger.Warn("skipping symlink cycle", zap.String("path", full), zap.String("target", real))
		return nil
	}

	w.branch[real] = struct{}{}
	defer delete(w.branch, real)

	return w.walk(ctx, full, name)
}

func samePath(a, b string) bool {
	aa, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	bb, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	return filepath.Clean(aa) == filepath.Clean(bb)
}
