// Package output writes analysis results as Parquet files.
package output

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

const parquetFlushInterval = 100_000

// ParquetWriter writes rows of one result type to a Parquet file.
type ParquetWriter[T any] struct {
	file   *os.File
	writer *parquet.GenericWriter[T]
	count  int
}

// NewParquetWriter creates a new Parquet file writer
func NewParquetWriter[T any](filename string) (*ParquetWriter[T], error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[T](file,
		parquet.Compression(&parquet.Snappy),
	)

	return &ParquetWriter[T]{
		file:   file,
		writer: writer,
	}, nil
}

// Write appends rows to the file.
func (pw *ParquetWriter[T]) Write(rows ...T) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := pw.writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet records: %w", err)
	}

	before := pw.count
	pw.count += len(rows)

	// Flush row group periodically to bound memory usage
	if pw.count/parquetFlushInterval != before/parquetFlushInterval {
		if err := pw.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush parquet row group: %w", err)
		}
	}

	return nil
}

// Close flushes and closes the Parquet writer
func (pw *ParquetWriter[T]) Close() error {
	if err := pw.writer.Close(); err != nil {
		pw.file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return pw.file.Close()
}

// Count returns the number of records written
func (pw *ParquetWriter[T]) Count() int {
	return pw.count
}

// WriteFile writes rows to filename in one pass and returns the count.
func WriteFile[T any](filename string, rows []T) (int, error) {
	pw, err := NewParquetWriter[T](filename)
	if err != nil {
		return 0, err
	}
	if err := pw.Write(rows...); err != nil {
		pw.Close()
		return 0, err
	}
	if err := pw.Close(); err != nil {
		return 0, err
	}
	return pw.Count(), nil
}

// ReadFile reads every row of a Parquet file written by WriteFile.
func ReadFile[T any](filename string) ([]T, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[T](f)
	defer reader.Close()

	rows := make([]T, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && n != len(rows) {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return rows[:n], nil
}
