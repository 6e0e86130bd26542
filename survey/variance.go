package survey

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Variance returns the design-based covariance of the total of a score
// matrix. Row k of scores belongs to record idx[k]; records not listed
// contribute zero scores but keep their PSUs in the stratum counts.
//
// Within stratum h with m_h PSUs the contribution is
//
//	m_h/(m_h-1) * sum_c (z_hc - zbar_h)(z_hc - zbar_h)'
//
// where z_hc are PSU totals. Strata with one PSU follow the design's
// singleton policy.
func (d *Design) Variance(idx []int, scores *mat.Dense) (*mat.SymDense, error) {
	r, p := scores.Dims()
	if r != len(idx) {
		return nil, fmt.Errorf("variance: %d score rows for %d records", r, len(idx))
	}

	totals := make([][]float64, d.NumPSU())
	for c := range totals {
		totals[c] = make([]float64, p)
	}
	for k, i := range idx {
		floats.Add(totals[d.psu[i]], scores.RawRowView(k))
	}

	byStratum := make([][]int, d.NumStrata())
	for c, h := range d.psuStratum {
		byStratum[h] = append(byStratum[h], c)
	}

	grand := make([]float64, p)
	for _, z := range totals {
		floats.Add(grand, z)
	}
	floats.Scale(1/float64(len(totals)), grand)

	v := mat.NewSymDense(p, nil)
	dev := make([]float64, p)
	okStrata := 0

	for h, members := range byStratum {
		m := len(members)
		if m == 1 {
			switch d.opts.Singleton {
			case SingletonFail:
				return nil, fmt.Errorf("stratum %d: %w", h, ErrSingletonPSU)
			case SingletonAdjust:
				floats.SubTo(dev, totals[members[0]], grand)
				v.SymRankOne(v, 1, mat.NewVecDense(p, dev))
				okStrata++
			}
			continue
		}

		mean := make([]float64, p)
		for _, c := range members {
			floats.Add(mean, totals[c])
		}
		floats.Scale(1/float64(m), mean)

		scale := float64(m) / float64(m-1)
		for _, c := range members {
			floats.SubTo(dev, totals[c], mean)
			v.SymRankOne(v, scale, mat.NewVecDense(p, dev))
		}
		okStrata++
	}

	if d.opts.Singleton == SingletonRemove && okStrata > 0 && okStrata < len(byStratum) {
		v.ScaleSym(float64(len(byStratum))/float64(okStrata), v)
	}

	return v, nil
}

// DegreesOfFreedom returns the design degrees of freedom of a domain:
// PSUs holding at least one listed record minus strata holding at least
// one listed record.
func (d *Design) DegreesOfFreedom(idx []int) int {
	psus := make(map[int]struct{})
	strata := make(map[int]struct{})
	for _, i := range idx {
		psus[d.psu[i]] = struct{}{}
		strata[d.stratum[i]] = struct{}{}
	}
	return len(psus) - len(strata)
}
