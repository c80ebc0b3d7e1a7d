package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/spf13/afero"
)

// zipWriter writes deflate-compressed ZIP containers. Directories get no
// explicit entries; file names imply their parents.
type zipWriter struct {
	f      afero.File
	zw     *zip.Writer
	closed bool
}

// NewZipWriter creates a ZIP container at path.
func NewZipWriter(fs afero.Fs, path string) (Writer, error) {
	f, err := createOutputFile(fs, path)
	if err != nil {
		return nil, err
	}

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	return &zipWriter{f: f, zw: zw}, nil
}

func (w *zipWriter) AddFile(ctx context.Context, name string, data io.Reader) error {
	if w.closed {
		return fmt.Errorf("archive writer is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entry, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("failed to create zip entry %s: %w", name, err)
	}

	if _, err := io.Copy(entry, data); err != nil {
		return fmt.Errorf("failed to write zip entry %s: %w", name, err)
	}

	return nil
}

func (w *zipWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	zipErr := w.zw.Close()
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	if zipErr != nil {
		return fmt.Errorf("failed to finalize zip container: %w", zipErr)
	}
	return nil
}
