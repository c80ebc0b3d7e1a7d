package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/dirpack/dirpack/internal/archive/sevenz"
	"github.com/spf13/afero"
)

// sevenZipWriter adapts the sevenz container writer to the Writer
// interface. The sevenz writer needs a seekable destination, so the
// output always goes through a real file handle.
type sevenZipWriter struct {
	f      afero.File
	sz     *sevenz.Writer
	closed bool
}

// NewSevenZipWriter creates a 7z container at path. The parent
// directory is created first; the 7z writer requires it to exist.
func NewSevenZipWriter(fs afero.Fs, path string) (Writer, error) {
	f, err := createOutputFile(fs, path)
	if err != nil {
		return nil, err
	}

	sz, err := sevenz.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to start 7z container: %w", err)
	}

	return &sevenZipWriter{f: f, sz: sz}, nil
}

func (w *sevenZipWriter) AddFile(ctx context.Context, name string, data io.Reader) error {
	if w.closed {
		return fmt.Errorf("archive writer is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.sz.AddFile(name, data)
}

func (w *sevenZipWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	szErr := w.sz.Close()
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	if szErr != nil {
		return fmt.Errorf("failed to finalize 7z container: %w", szErr)
	}
	return nil
}
