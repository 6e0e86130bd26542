// Package extract reads survey extracts into raw rows.
package extract

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"workreq/survey"
)

// ReadFile loads an extract, choosing the reader by file extension.
func ReadFile(path string) ([]survey.Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(path)
	case ".parquet", ".pq":
		return ReadParquet(path)
	}
	return nil, fmt.Errorf("unsupported extract format: %s", path)
}

// ColumnNames returns the sorted union of column names over rows.
func ColumnNames(rows []survey.Row) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}
