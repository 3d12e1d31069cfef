// Package util provides file helpers shared by readers and writers.
package util

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// OpenFile opens a file, automatically decompressing if it's gzip-compressed.
// Returns the reader, a cleanup function (to close resources), and any error.
// The caller must call the cleanup function when done reading.
func OpenFile(path string) (io.Reader, func() error, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	if !IsGzipFile(path) {
		return file, file.Close, nil
	}

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	cleanup := func() error {
		gzReader.Close()
		return file.Close()
	}
	return gzReader, cleanup, nil
}

// CreateFile creates path, compressing with gzip when it ends in ".gz".
// Closing the returned writer flushes the compressor and closes the file.
func CreateFile(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !IsGzipFile(path) {
		return file, nil
	}
	return &gzipFile{Writer: gzip.NewWriter(file), file: file}, nil
}

type gzipFile struct {
	*gzip.Writer
	file *os.File
}

func (g *gzipFile) Close() error {
	if err := g.Writer.Close(); err != nil {
		g.file.Close()
		return err
	}
	return g.file.Close()
}

// IsGzipFile returns true if the file path indicates gzip compression.
func IsGzipFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// StripCompression removes compression extensions (.gz) from a path.
func StripCompression(path string) string {
	if IsGzipFile(path) {
		return path[:len(path)-3]
	}
	return path
}

// BaseFormat extracts the format extension after stripping compression.
// e.g., "sessions.csv.gz" -> ".csv", "models.parquet" -> ".parquet"
func BaseFormat(path string) string {
	return strings.ToLower(filepath.Ext(StripCompression(path)))
}
