package extract

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"workreq/survey"
)

const parquetBatchSize = 1024

// ReadParquet loads a flat Parquet extract. Leaf columns are named by
// their dotted path; numeric and boolean values convert directly, byte
// arrays go through the same parser as CSV cells, and nulls become NaN.
func ReadParquet(path string) ([]survey.Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var names []string
	for _, p := range reader.Schema().Columns() {
		names = append(names, strings.Join(p, "."))
	}

	var out []survey.Row
	buf := make([]parquet.Row, parquetBatchSize)
	for {
		n, err := reader.ReadRows(buf)
		for _, pr := range buf[:n] {
			row := make(survey.Row, len(names))
			for _, name := range names {
				row[name] = math.NaN()
			}
			for _, v := range pr {
				if c := v.Column(); c >= 0 && c < len(names) {
					row[names[c]] = valueFloat(v)
				}
			}
			out = append(out, row)
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
}

func valueFloat(v parquet.Value) float64 {
	if v.IsNull() {
		return math.NaN()
	}
	switch v.Kind() {
	case parquet.Boolean:
		if v.Boolean() {
			return 1
		}
		return 0
	case parquet.Int32:
		return float64(v.Int32())
	case parquet.Int64:
		return float64(v.Int64())
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return parseFloat(string(v.ByteArray()))
	}
	return math.NaN()
}
