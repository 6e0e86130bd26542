package regress

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"workreq/survey"
)

// TermKind tags the variants of a model term.
type TermKind int

const (
	KindIntercept TermKind = iota
	KindMain
	KindInteraction
	KindFactor
)

// Term is one block of design-matrix columns.
type Term struct {
	Kind TermKind
	Vars []string
}

// Intercept is the constant column.
func Intercept() Term { return Term{Kind: KindIntercept} }

// Main is a numeric main effect: a derived flag or a raw column.
func Main(v string) Term { return Term{Kind: KindMain, Vars: []string{v}} }

// Interaction is the product of two numeric variables.
func Interaction(a, b string) Term { return Term{Kind: KindInteraction, Vars: []string{a, b}} }

// Factor is a categorical covariate entered as treatment-coded dummies
// against its first level.
func Factor(v string) Term { return Term{Kind: KindFactor, Vars: []string{v}} }

func (t Term) String() string {
	switch t.Kind {
	case KindIntercept:
		return "(Intercept)"
	case KindInteraction:
		return strings.Join(t.Vars, ":")
	}
	return t.Vars[0]
}

// Formula is a response and its right-hand-side terms.
type Formula struct {
	Response string
	Terms    []Term
}

// DID returns response ~ group * time, i.e. both main effects and their
// interaction, plus any additive terms.
func DID(response, group, time string, extra ...Term) Formula {
	terms := []Term{Intercept(), Main(group), Main(time), Interaction(group, time)}
	return Formula{Response: response, Terms: append(terms, extra...)}
}

func (f Formula) String() string {
	var rhs []string
	for _, t := range f.Terms {
		if t.Kind == KindIntercept {
			continue
		}
		rhs = append(rhs, t.String())
	}
	if len(rhs) == 0 {
		rhs = []string{"1"}
	}
	return f.Response + " ~ " + strings.Join(rhs, " + ")
}

// frame is the complete-case design matrix of a formula over a view.
type frame struct {
	idx   []int // design positions of the rows used
	names []string
	x     *mat.Dense
	y     []float64
	w     []float64
}

// buildFrame lays out the design matrix. Factor levels come from the whole
// view, so a level absent among complete cases yields an all-zero column
// and is caught by the rank check.
func buildFrame(view *survey.Subset, f Formula) (*frame, error) {
	d := view.Design()
	all := view.Indices()

	var probe survey.Record
	if _, known := probe.Flag(f.Response); !known {
		return nil, fmt.Errorf("unknown response %q", f.Response)
	}

	levels := make(map[string][]string)
	var names []string
	for _, t := range f.Terms {
		if t.Kind != KindFactor {
			names = append(names, t.String())
			continue
		}
		v := t.Vars[0]
		if _, known := probe.Category(v); !known {
			return nil, fmt.Errorf("unknown factor %q", v)
		}
		seen := make(map[string]bool)
		for _, i := range all {
			if c, _ := d.Record(i).Category(v); c != "" {
				seen[c] = true
			}
		}
		lv := make([]string, 0, len(seen))
		for c := range seen {
			lv = append(lv, c)
		}
		sort.Strings(lv)
		levels[v] = lv
		for _, c := range lv[min(1, len(lv)):] {
			names = append(names, v+"="+c)
		}
	}

	var (
		idx  []int
		rows [][]float64
		y    []float64
		w    []float64
	)
	for _, i := range all {
		r := d.Record(i)
		resp, _ := r.Flag(f.Response)
		if !resp.Valid() {
			continue
		}
		row, ok := designRow(r, f.Terms, levels, len(names))
		if !ok {
			continue
		}
		idx = append(idx, i)
		rows = append(rows, row)
		y = append(y, resp.Float())
		w = append(w, d.Weight(i))
	}

	if len(idx) == 0 {
		return &frame{names: names}, nil
	}
	x := mat.NewDense(len(idx), len(names), nil)
	for k, row := range rows {
		x.SetRow(k, row)
	}
	return &frame{idx: idx, names: names, x: x, y: y, w: w}, nil
}

// designRow evaluates the terms on one record; ok is false when any input
// is missing.
func designRow(r *survey.Record, terms []Term, levels map[string][]string, p int) ([]float64, bool) {
	row := make([]float64, 0, p)
	for _, t := range terms {
		switch t.Kind {
		case KindIntercept:
			row = append(row, 1)
		case KindMain:
			v, ok := survey.KeyValue(r, t.Vars[0])
			if !ok {
				return nil, false
			}
			row = append(row, v)
		case KindInteraction:
			prod := 1.0
			for _, name := range t.Vars {
				v, ok := survey.KeyValue(r, name)
				if !ok {
					return nil, false
				}
				prod *= v
			}
			row = append(row, prod)
		case KindFactor:
			c, _ := r.Category(t.Vars[0])
			if c == "" {
				return nil, false
			}
			lv := levels[t.Vars[0]]
			for _, l := range lv[min(1, len(lv)):] {
				if l == c {
					row = append(row, 1)
				} else {
					row = append(row, 0)
				}
			}
		}
	}
	return row, true
}
