package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

type tarCompression string

const (
	tarCompressionGzip tarCompression = "gzip"
	tarCompressionZstd tarCompression = "zstd"
)

// tarWriter streams entries into a compressed POSIX tar container.
type tarWriter struct {
	f          afero.File
	compressor io.WriteCloser
	tw         *tar.Writer
	closed     bool
}

func newTarWriterFactory(compression tarCompression) Factory {
	return func(fs afero.Fs, path string) (Writer, error) {
		return newTarWriter(fs, path, compression)
	}
}

func newTarWriter(fs afero.Fs, path string, compression tarCompression) (Writer, error) {
	f, err := createOutputFile(fs, path)
	if err != nil {
		return nil, err
	}

	var compressor io.WriteCloser
	switch compression {
	case tarCompressionGzip:
		compressor = gzip.NewWriter(f)
	case tarCompressionZstd:
		compressor, err = zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported tar compression: %s", compression)
	}

	return &tarWriter{
		f:          f,
		compressor: compressor,
		tw:         tar.NewWriter(compressor),
	}, nil
}

func (w *tarWriter) AddFile(ctx context.Context, name string, data io.Reader) error {
	if w.closed {
		return fmt.Errorf("archive writer is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Tar headers carry the entry size up front, so the content is read
	// fully before the header is written.
	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read file data: %w", err)
	}

	header := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(content)),
	}

	if err := w.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}

	if _, err := w.tw.Write(content); err != nil {
		return fmt.Errorf("failed to write tar content for %s: %w", name, err)
	}

	return nil
}

func (w *tarWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	tarErr := w.tw.Close()
	compErr := w.compressor.Close()
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	if tarErr != nil {
		return fmt.Errorf("failed to close tar writer: %w", tarErr)
	}
	if compErr != nil {
		return fmt.Errorf("failed to close compressor: %w", compErr)
	}
	return nil
}
