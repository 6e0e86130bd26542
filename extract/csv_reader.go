package extract

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"workreq/survey"
)

// CSVReader streams an IPUMS-style extract: one header row, then one
// respondent per row. Every cell is parsed as a number; blanks, NA and
// anything unparseable become NaN.
type CSVReader struct {
	file    *os.File
	csv     *csv.Reader
	rowNum  int64
	headers []string
	colIdx  map[string]int // trimmed header → column index
}

func NewCSVReader(filepath string) (*CSVReader, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath, err)
	}

	bufReader := bufio.NewReaderSize(file, 256*1024)

	// Skip UTF-8 BOM if present
	bom, err := bufReader.Peek(3)
	if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		bufReader.Discard(3)
	}

	reader := csv.NewReader(bufReader)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	r := &CSVReader{
		file:   file,
		csv:    reader,
		colIdx: make(map[string]int),
	}

	if err := r.readHeaders(); err != nil {
		file.Close()
		return nil, err
	}

	return r, nil
}

func (r *CSVReader) readHeaders() error {
	headerRow, err := r.csv.Read()
	if err != nil {
		return fmt.Errorf("read header row: %w", err)
	}
	r.rowNum++

	r.headers = make([]string, len(headerRow))
	for i, h := range headerRow {
		h = strings.TrimSpace(h)
		if h == "" {
			return fmt.Errorf("header column %d is blank", i+1)
		}
		if _, dup := r.colIdx[h]; dup {
			return fmt.Errorf("duplicate header %q", h)
		}
		r.headers[i] = h
		r.colIdx[h] = i
	}
	return nil
}

// Next returns the next record, or io.EOF at the end of the file. Short
// rows leave their trailing columns NaN.
func (r *CSVReader) Next() (survey.Row, error) {
	for {
		row, err := r.csv.Read()
		if err != nil {
			if err != io.EOF {
				err = fmt.Errorf("row %d: %w", r.rowNum+1, err)
			}
			return nil, err
		}
		r.rowNum++

		// Skip empty rows
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}

		out := make(survey.Row, len(r.headers))
		for i, h := range r.headers {
			if i < len(row) {
				out[h] = parseFloat(row[i])
			} else {
				out[h] = math.NaN()
			}
		}
		return out, nil
	}
}

// Columns returns the header names in file order.
func (r *CSVReader) Columns() []string {
	return r.headers
}

func (r *CSVReader) RowNum() int64 {
	return r.rowNum
}

func (r *CSVReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// ReadCSV loads a whole extract.
func ReadCSV(path string) ([]survey.Row, error) {
	r, err := NewCSVReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var rows []survey.Row
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		rows = append(rows, row)
	}
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "NA", "NAN", ".":
		return math.NaN()
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
