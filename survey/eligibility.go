package survey

import "math"

// Eligibility is the inclusion rule for the analytic sample: a respondent
// from the treated or comparison state, aged within [AgeMin, AgeMax], whose
// poverty indicator marks income at or below the federal poverty line.
type Eligibility struct {
	AgeMin      float64 `yaml:"age_min"`
	AgeMax      float64 `yaml:"age_max"`
	PovertyCode int     `yaml:"poverty_code"`
}

// DefaultEligibility covers adults 19–64 at or below 100% FPL.
func DefaultEligibility() Eligibility {
	return Eligibility{AgeMin: 19, AgeMax: 64, PovertyCode: 1}
}

// Eligible is a pure predicate over a recoded record.
func (e Eligibility) Eligible(r *Record) bool {
	if !r.Intervention.Valid() {
		return false
	}
	if math.IsNaN(r.Age) || r.Age < e.AgeMin || r.Age > e.AgeMax {
		return false
	}
	code, ok := intCode(r.Poverty)
	return ok && code == e.PovertyCode
}

// Predicate returns Eligible as a plain function, for Design.Subset.
func (e Eligibility) Predicate() func(*Record) bool {
	return e.Eligible
}

// FilterRecords returns the eligible records. The input is not modified.
func FilterRecords(records []Record, keep func(*Record) bool) []Record {
	var out []Record
	for i := range records {
		if keep(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}
