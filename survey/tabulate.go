package survey

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// TabSpec selects a binary outcome and the two grouping keys of a
// weighted tabulation. Group and Period name either a derived flag
// (e.g. "intervention") or a raw column (e.g. "YEAR").
type TabSpec struct {
	Outcome string
	Group   string
	Period  string
}

// TabRow is one group × period cell of a weighted tabulation.
type TabRow struct {
	Outcome    string
	Group      float64
	Period     float64
	N          int     // unweighted records with a non-missing outcome
	Total      float64 // sum of weights with a non-missing outcome
	Count      float64 // sum of weights with outcome == 1
	Percentage float64 // 100 * Count / Total
	SE         float64 // design-based SE of Percentage, NaN if unavailable
}

type cellKey struct {
	group, period float64
}

// KeyValue resolves name on a record: a derived flag when name is one,
// otherwise the raw column. ok is false for missing values.
func KeyValue(r *Record, name string) (float64, bool) {
	if f, known := r.Flag(name); known {
		return f.Float(), f.Valid()
	}
	v := r.Raw.Get(name)
	return v, !math.IsNaN(v)
}

// Tabulate computes survey-weighted counts and within-cell percentages of
// spec.Outcome over the view. Records with a missing outcome or key are
// left out of every cell. Rows come back ordered by group, then period.
func Tabulate(view *Subset, spec TabSpec) ([]TabRow, error) {
	var probe Record
	if _, known := probe.Flag(spec.Outcome); !known {
		return nil, fmt.Errorf("tabulate: unknown outcome %q", spec.Outcome)
	}

	d := view.design
	cells := make(map[cellKey][]int)
	for _, i := range view.Indices() {
		r := d.Record(i)
		y, _ := r.Flag(spec.Outcome)
		if !y.Valid() {
			continue
		}
		g, ok := KeyValue(r, spec.Group)
		if !ok {
			continue
		}
		t, ok := KeyValue(r, spec.Period)
		if !ok {
			continue
		}
		k := cellKey{g, t}
		cells[k] = append(cells[k], i)
	}

	rows := make([]TabRow, 0, len(cells))
	for k, idx := range cells {
		row := TabRow{Outcome: spec.Outcome, Group: k.group, Period: k.period, N: len(idx)}
		for _, i := range idx {
			w := d.Weight(i)
			row.Total += w
			if f, _ := d.Record(i).Flag(spec.Outcome); f == Yes {
				row.Count += w
			}
		}
		row.Percentage = math.NaN()
		row.SE = math.NaN()
		if row.Total > 0 {
			row.Percentage = 100 * row.Count / row.Total
			row.SE = proportionSE(d, idx, spec.Outcome, row.Count/row.Total, row.Total)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(a, b int) bool {
		if rows[a].Group != rows[b].Group {
			return rows[a].Group < rows[b].Group
		}
		return rows[a].Period < rows[b].Period
	})
	return rows, nil
}

// proportionSE linearizes the ratio estimator p = sum(w y) / sum(w) and
// returns the standard error of 100p.
func proportionSE(d *Design, idx []int, outcome string, p, total float64) float64 {
	u := mat.NewDense(len(idx), 1, nil)
	for k, i := range idx {
		y, _ := d.Record(i).Flag(outcome)
		u.Set(k, 0, d.Weight(i)*(y.Float()-p)/total)
	}
	v, err := d.Variance(idx, u)
	if err != nil {
		return math.NaN()
	}
	return 100 * math.Sqrt(math.Max(v.At(0, 0), 0))
}

// CountRow is one cell of an unweighted membership cross-tabulation.
type CountRow struct {
	Row   float64
	Col   float64
	Count int
}

// CrossTab counts records by two keys, e.g. state × year over the
// eligible raw sample. Records missing either key are skipped.
func CrossTab(records []Record, rowKey, colKey string) []CountRow {
	counts := make(map[cellKey]int)
	for i := range records {
		a, ok := KeyValue(&records[i], rowKey)
		if !ok {
			continue
		}
		b, ok := KeyValue(&records[i], colKey)
		if !ok {
			continue
		}
		counts[cellKey{a, b}]++
	}

	out := make([]CountRow, 0, len(counts))
	for k, n := range counts {
		out = append(out, CountRow{Row: k.group, Col: k.period, Count: n})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Row != out[b].Row {
			return out[a].Row < out[b].Row
		}
		return out[a].Col < out[b].Col
	})
	return out
}
