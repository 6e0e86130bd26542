package survey

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrReshape marks a panel extract whose wave columns cannot be paired.
var ErrReshape = errors.New("longitudinal reshape failed")

// ReshapeError names the column that could not be resolved.
type ReshapeError struct {
	Column string
	Reason string
}

func (e *ReshapeError) Error() string {
	return fmt.Sprintf("reshape: column %q: %s", e.Column, e.Reason)
}

func (e *ReshapeError) Unwrap() error { return ErrReshape }

// ReshapeOptions controls the wide-to-long transform of a panel extract.
type ReshapeOptions struct {
	// IndexColumn receives the wave number (1, 2, ...) in each long row.
	IndexColumn string `yaml:"index_column"`
	// Separator joins base name and wave suffix, e.g. "_" in AGE_1.
	Separator string `yaml:"separator"`
	// Suffixes lists the wave suffixes in wave order.
	Suffixes []string `yaml:"suffixes"`
}

// DefaultReshapeOptions pairs <base>_1 / <base>_2 into a "year" index.
func DefaultReshapeOptions() ReshapeOptions {
	return ReshapeOptions{IndexColumn: "year", Separator: "_", Suffixes: []string{"1", "2"}}
}

// WaveLayout is the resolved column pairing of a wide extract.
type WaveLayout struct {
	// Paired maps a base name to its column for each wave, in wave order.
	Paired map[string][]string
	// Constant lists columns copied unchanged into every wave.
	Constant []string
}

// ResolveWaves pairs columns by naming convention. A column is paired
// when its base carries every configured suffix; a column with no full
// set of partners is constant. A base name that also exists as its own
// column, or that collides with the index column, is ambiguous.
func ResolveWaves(columns []string, opts ReshapeOptions) (*WaveLayout, error) {
	if opts.IndexColumn == "" || opts.Separator == "" || len(opts.Suffixes) == 0 {
		return nil, &ReshapeError{Column: opts.IndexColumn, Reason: "incomplete reshape options"}
	}

	wave := make(map[string]int, len(opts.Suffixes))
	for k, s := range opts.Suffixes {
		wave[s] = k
	}

	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}

	partial := make(map[string][]string)
	var plain []string
	for _, c := range columns {
		cut := strings.LastIndex(c, opts.Separator)
		if cut <= 0 {
			plain = append(plain, c)
			continue
		}
		k, ok := wave[c[cut+len(opts.Separator):]]
		if !ok {
			plain = append(plain, c)
			continue
		}
		base := c[:cut]
		if partial[base] == nil {
			partial[base] = make([]string, len(opts.Suffixes))
		}
		partial[base][k] = c
	}

	layout := &WaveLayout{Paired: make(map[string][]string)}
	for base, cols := range partial {
		complete := true
		for _, c := range cols {
			if c == "" {
				complete = false
				break
			}
		}
		if !complete {
			for _, c := range cols {
				if c != "" {
					plain = append(plain, c)
				}
			}
			continue
		}
		if present[base] {
			return nil, &ReshapeError{Column: base, Reason: "base name exists both as a column and as wave columns"}
		}
		if base == opts.IndexColumn {
			return nil, &ReshapeError{Column: base, Reason: "wave columns collide with the index column"}
		}
		layout.Paired[base] = cols
	}

	for _, c := range plain {
		if c == opts.IndexColumn {
			return nil, &ReshapeError{Column: c, Reason: "index column already present in the wide extract"}
		}
	}
	sort.Strings(plain)
	layout.Constant = plain
	return layout, nil
}

// Reshape turns each wide panel row into one long row per wave. Constant
// columns are broadcast unchanged; paired columns are renamed to their
// base and the wave number is written to opts.IndexColumn.
func Reshape(rows []Row, opts ReshapeOptions) ([]Row, error) {
	seen := make(map[string]bool)
	var columns []string
	for _, r := range rows {
		for c := range r {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}
	sort.Strings(columns)

	layout, err := ResolveWaves(columns, opts)
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(rows)*len(opts.Suffixes))
	for _, r := range rows {
		for k := range opts.Suffixes {
			long := make(Row, len(layout.Constant)+len(layout.Paired)+1)
			for _, c := range layout.Constant {
				if v, ok := r[c]; ok {
					long[c] = v
				}
			}
			for base, cols := range layout.Paired {
				long[base] = r.Get(cols[k])
			}
			long[opts.IndexColumn] = float64(k + 1)
			out = append(out, long)
		}
	}
	return out, nil
}
