package regress

import (
	"fmt"

	"workreq/survey"
)

// Family is one of the three model families run for every outcome.
type Family string

const (
	// ParallelTrends tests for differing pre-policy trends:
	// outcome ~ intervention * prepost over pre-period records.
	ParallelTrends Family = "parallel_trends"
	// Unadjusted is the DID estimate outcome ~ intervention * post.
	Unadjusted Family = "unadjusted_did"
	// Adjusted adds age, sex and race categories as additive controls.
	Adjusted Family = "adjusted_did"
)

// Families lists the families in reporting order.
var Families = []Family{ParallelTrends, Unadjusted, Adjusted}

// Outcomes is the fixed outcome set of the analysis. poorhealth is derived
// but not modelled.
var Outcomes = []string{
	survey.VarMedicaid,
	survey.VarUninsured,
	survey.VarQualifying,
	survey.VarEmployed,
	survey.VarStudent,
	survey.VarESI,
	survey.VarPCP,
	survey.VarNotAfford,
}

// Covariates enter the adjusted model additively.
var Covariates = []string{survey.VarAgeCat, survey.VarSexCat, survey.VarRaceCat}

// InteractionTerm returns the name of the DID coefficient of a family.
func InteractionTerm(f Family) string {
	if f == ParallelTrends {
		return survey.VarIntervention + ":" + survey.VarPrePost
	}
	return survey.VarIntervention + ":" + survey.VarPost
}

// ModelSpec is one row of the model table.
type ModelSpec struct {
	Outcome string
	Family  Family
	Formula Formula
	// Domain further restricts the view; nil keeps it whole.
	Domain func(*survey.Record) bool
}

// NewModelSpec builds the formula and domain of one (outcome, family).
func NewModelSpec(outcome string, family Family) (ModelSpec, error) {
	spec := ModelSpec{Outcome: outcome, Family: family}
	switch family {
	case ParallelTrends:
		spec.Formula = DID(outcome, survey.VarIntervention, survey.VarPrePost)
		spec.Domain = func(r *survey.Record) bool { return r.Post == survey.No }
	case Unadjusted:
		spec.Formula = DID(outcome, survey.VarIntervention, survey.VarPost)
	case Adjusted:
		var controls []Term
		for _, c := range Covariates {
			controls = append(controls, Factor(c))
		}
		spec.Formula = DID(outcome, survey.VarIntervention, survey.VarPost, controls...)
	default:
		return ModelSpec{}, fmt.Errorf("unknown model family %q", family)
	}
	return spec, nil
}

// ModelTable crosses outcomes with families, outcome-major.
func ModelTable(outcomes []string, families []Family) ([]ModelSpec, error) {
	specs := make([]ModelSpec, 0, len(outcomes)*len(families))
	for _, o := range outcomes {
		for _, f := range families {
			s, err := NewModelSpec(o, f)
			if err != nil {
				return nil, err
			}
			specs = append(specs, s)
		}
	}
	return specs, nil
}
