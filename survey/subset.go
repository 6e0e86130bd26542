package survey

// Subset is a predicate view over a Design. It shares the design's
// storage; only the inclusion mask is its own. Variance for a subset is
// computed as domain estimation: PSUs with no included records still
// count toward their stratum.
type Subset struct {
	design *Design
	mask   []bool
	n      int
}

// Design returns the parent design.
func (s *Subset) Design() *Design { return s.design }

// Len returns the number of included records.
func (s *Subset) Len() int { return s.n }

// Includes reports whether record i is in the view.
func (s *Subset) Includes(i int) bool { return s.mask[i] }

// Subset narrows the view further. The receiver is unchanged.
func (s *Subset) Subset(keep func(*Record) bool) *Subset {
	mask := make([]bool, len(s.mask))
	n := 0
	for i, in := range s.mask {
		if in && keep(&s.design.records[i]) {
			mask[i] = true
			n++
		}
	}
	return &Subset{design: s.design, mask: mask, n: n}
}

// Indices returns the positions of the included records in the design.
func (s *Subset) Indices() []int {
	idx := make([]int, 0, s.n)
	for i, in := range s.mask {
		if in {
			idx = append(idx, i)
		}
	}
	return idx
}

// Records returns copies of the included records.
func (s *Subset) Records() []Record {
	out := make([]Record, 0, s.n)
	for i, in := range s.mask {
		if in {
			out = append(out, s.design.records[i])
		}
	}
	return out
}

// TotalWeight returns the sum of weights over the view.
func (s *Subset) TotalWeight() float64 {
	var t float64
	for i, in := range s.mask {
		if in {
			t += s.design.weights[i]
		}
	}
	return t
}
