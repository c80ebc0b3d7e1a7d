// Package archive writes file streams into container files. Supported
// formats are registered with a Registry; requesting an unregistered
// format fails before any output file is created.
package archive

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// Format identifies a container format.
type Format string

const (
	FormatZip     Format = "zip"
	FormatTarGz   Format = "tar.gz"
	FormatTarZstd Format = "tar.zst"
	FormatSevenZ  Format = "7z"
)

// ParseFormat resolves the requested format name, falling back to the
// output path's extension when name is empty. The returned Format is not
// guaranteed to be registered; the Registry decides that.
func ParseFormat(name, outputPath string) (Format, error) {
	if name != "" {
		return Format(strings.ToLower(name)), nil
	}

	base := strings.ToLower(filepath.Base(outputPath))
	switch {
	case strings.HasSuffix(base, ".tar.gz") || strings.HasSuffix(base, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(base, ".tar.zst"):
		return FormatTarZstd, nil
	case strings.HasSuffix(base, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(base, ".7z"):
		return FormatSevenZ, nil
	default:
		return "", fmt.Errorf("cannot infer archive format from output path %q", outputPath)
	}
}

// Writer streams files into a container. Implementations are not safe
// for concurrent use; one Writer serves one archive job.
type Writer interface {
	// AddFile writes a single entry under the given archive-relative name.
	AddFile(ctx context.Context, name string, data io.Reader) error

	// Close finalizes the container and releases the underlying file.
	// It must be called on every exit path, including after a failed
	// AddFile, so no handle is leaked.
	Close() error
}

// Factory creates a Writer targeting path on the given filesystem. The
// parent directory of path is created if missing.
type Factory func(fs afero.Fs, path string) (Writer, error)

// UnsupportedFormatError is returned when a format is not registered.
type UnsupportedFormatError struct {
	Requested Format
	Available []Format
}

func (e *UnsupportedFormatError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unsupported archive format %q: no formats registered", e.Requested)
	}
	return fmt.Sprintf("unsupported archive format %q (available: %v)", e.Requested, e.Available)
}

// Registry maps formats to writer factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Format]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Format]Factory)}
}

// DefaultRegistry returns a registry with all built-in formats.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(FormatZip, NewZipWriter)
	r.Register(FormatTarGz, newTarWriterFactory(tarCompressionGzip))
	r.Register(FormatTarZstd, newTarWriterFactory(tarCompressionZstd))
	r.Register(FormatSevenZ, NewSevenZipWriter)
	return r
}

func (r *Registry) Register(format Format, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[format] = factory
}

// Create looks up the factory for format and opens a Writer at path.
// An unknown format returns *UnsupportedFormatError without touching
// the filesystem.
func (r *Registry) Create(format Format, fs afero.Fs, path string) (Writer, error) {
	r.mu.RLock()
	factory, ok := r.factories[format]
	available := r.available()
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedFormatError{Requested: format, Available: available}
	}
	return factory(fs, path)
}

// Supported reports whether format has a registered factory.
func (r *Registry) Supported(format Format) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[format]
	return ok
}

// Available lists the registered formats in sorted order.
func (r *Registry) Available() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available()
}

func (r *Registry) available() []Format {
	formats := lo.Keys(r.factories)
	slices.Sort(formats)
	return formats
}

// createOutputFile makes sure the parent directory of path exists and
// creates (or truncates) the output file.
func createOutputFile(fs afero.Fs, path string) (afero.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create parent directory: %w", err)
		}
	}

	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	return f, nil
}
