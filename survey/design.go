package survey

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDesign marks a design that cannot be built from the records.
	ErrDesign = errors.New("survey design construction failed")

	// ErrSingletonPSU is returned by variance computations when a stratum
	// holds a single PSU and the policy is SingletonFail.
	ErrSingletonPSU = errors.New("stratum has a single PSU")
)

// SingletonPolicy decides how a stratum with exactly one PSU contributes
// to design-based variance.
type SingletonPolicy string

const (
	// SingletonAdjust centres the lonely PSU total on the grand mean of
	// all PSU totals instead of its own stratum mean.
	SingletonAdjust SingletonPolicy = "adjust"
	// SingletonCertainty treats the stratum as sampled with certainty;
	// it contributes nothing.
	SingletonCertainty SingletonPolicy = "certainty"
	// SingletonRemove drops the stratum and rescales the remaining ones.
	SingletonRemove SingletonPolicy = "remove"
	// SingletonFail makes variance computation return ErrSingletonPSU.
	SingletonFail SingletonPolicy = "fail"
)

// Valid reports whether p is a known policy.
func (p SingletonPolicy) Valid() bool {
	switch p {
	case SingletonAdjust, SingletonCertainty, SingletonRemove, SingletonFail:
		return true
	}
	return false
}

// DesignError describes why a design could not be constructed.
type DesignError struct {
	Column string
	Record int // -1 when not tied to a single record
	Reason string
}

func (e *DesignError) Error() string {
	if e.Record >= 0 {
		return fmt.Sprintf("survey design: column %q, record %d: %s", e.Column, e.Record, e.Reason)
	}
	return fmt.Sprintf("survey design: column %q: %s", e.Column, e.Reason)
}

func (e *DesignError) Unwrap() error { return ErrDesign }

// DesignOptions names the design columns and the singleton policy.
type DesignOptions struct {
	// Weight is the sampling weight column. Required.
	Weight string `yaml:"weight"`
	// Cluster is the PSU column. Empty means every record is its own PSU.
	Cluster string `yaml:"cluster"`
	// Strata is the stratum column. Empty means a single stratum.
	Strata string `yaml:"strata"`
	// Nest declares cluster IDs unique only within strata.
	Nest bool `yaml:"nest"`
	// Singleton is the lonely-PSU policy; empty means SingletonAdjust.
	Singleton SingletonPolicy `yaml:"singleton"`
}

// Design is a weighted, clustered, optionally stratified sampling design
// over a fixed record set. It is immutable once built and safe to share
// between goroutines.
type Design struct {
	records []Record
	weights []float64

	psu        []int // record -> PSU index
	stratum    []int // record -> stratum index
	psuStratum []int // PSU -> stratum index
	stratumPSU []int // stratum -> number of PSUs

	opts   DesignOptions
	lonely int
}

type psuKey struct {
	stratum int
	cluster float64
}

// NewDesign builds a design over records. Missing or invalid weight,
// cluster or stratum values are fatal and reported as *DesignError.
func NewDesign(records []Record, opts DesignOptions) (*Design, error) {
	if opts.Singleton == "" {
		opts.Singleton = SingletonAdjust
	}
	if !opts.Singleton.Valid() {
		return nil, &DesignError{Column: "singleton", Record: -1, Reason: fmt.Sprintf("unknown policy %q", opts.Singleton)}
	}
	if opts.Weight == "" {
		return nil, &DesignError{Column: "weight", Record: -1, Reason: "no weight column configured"}
	}
	if len(records) == 0 {
		return nil, &DesignError{Column: opts.Weight, Record: -1, Reason: "no records"}
	}

	d := &Design{
		records: records,
		weights: make([]float64, len(records)),
		psu:     make([]int, len(records)),
		stratum: make([]int, len(records)),
		opts:    opts,
	}

	strata := make(map[float64]int)
	psus := make(map[psuKey]int)
	clusterHome := make(map[float64]int)

	for i := range records {
		raw := records[i].Raw

		w, ok := raw[opts.Weight]
		if !ok {
			return nil, &DesignError{Column: opts.Weight, Record: i, Reason: "column absent"}
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, &DesignError{Column: opts.Weight, Record: i, Reason: fmt.Sprintf("invalid weight %v", w)}
		}
		d.weights[i] = w

		h := 0
		if opts.Strata != "" {
			sv := raw.Get(opts.Strata)
			if math.IsNaN(sv) {
				return nil, &DesignError{Column: opts.Strata, Record: i, Reason: "missing stratum"}
			}
			idx, seen := strata[sv]
			if !seen {
				idx = len(strata)
				strata[sv] = idx
				d.stratumPSU = append(d.stratumPSU, 0)
			}
			h = idx
		} else if len(d.stratumPSU) == 0 {
			d.stratumPSU = append(d.stratumPSU, 0)
		}
		d.stratum[i] = h

		key := psuKey{stratum: h, cluster: float64(i)}
		if opts.Cluster != "" {
			cv := raw.Get(opts.Cluster)
			if math.IsNaN(cv) {
				return nil, &DesignError{Column: opts.Cluster, Record: i, Reason: "missing cluster"}
			}
			key.cluster = cv
			if !opts.Nest {
				if home, seen := clusterHome[cv]; seen && home != h {
					return nil, &DesignError{
						Column: opts.Cluster,
						Record: i,
						Reason: fmt.Sprintf("cluster %v appears in more than one stratum; set nest to true", cv),
					}
				}
				clusterHome[cv] = h
			}
		}

		idx, seen := psus[key]
		if !seen {
			idx = len(d.psuStratum)
			psus[key] = idx
			d.psuStratum = append(d.psuStratum, h)
			d.stratumPSU[h]++
		}
		d.psu[i] = idx
	}

	for _, m := range d.stratumPSU {
		if m == 1 {
			d.lonely++
		}
	}

	return d, nil
}

// Len returns the number of records.
func (d *Design) Len() int { return len(d.records) }

// Record returns the i-th record. The pointer must not be used to mutate.
func (d *Design) Record(i int) *Record { return &d.records[i] }

// Weight returns the sampling weight of record i.
func (d *Design) Weight(i int) float64 { return d.weights[i] }

// NumPSU returns the number of primary sampling units.
func (d *Design) NumPSU() int { return len(d.psuStratum) }

// NumStrata returns the number of strata.
func (d *Design) NumStrata() int { return len(d.stratumPSU) }

// LonelyStrata returns the number of strata holding a single PSU.
func (d *Design) LonelyStrata() int { return d.lonely }

// Options returns the options the design was built with.
func (d *Design) Options() DesignOptions { return d.opts }

// All returns a view over every record.
func (d *Design) All() *Subset {
	mask := make([]bool, len(d.records))
	for i := range mask {
		mask[i] = true
	}
	return &Subset{design: d, mask: mask, n: len(mask)}
}

// Subset returns the view of records satisfying keep.
func (d *Design) Subset(keep func(*Record) bool) *Subset {
	return d.All().Subset(keep)
}
