package regress

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workreq/survey"
)

// didRows builds 100 records: 50 treated and 50 comparison, each split
// 25 pre / 25 post. medicaid is 1 for 60% of treated-post, 20% of
// comparison-post and 20% of every pre-period group.
func didRows() []survey.Row {
	var rows []survey.Row
	id := 0
	for _, state := range []float64{13, 46} {
		for _, year := range []float64{2022, 2023} {
			ones := 5
			if state == 13 && year == 2023 {
				ones = 15
			}
			for k := 0; k < 25; k++ {
				id++
				medicaid := 1.0
				if k < ones {
					medicaid = 2
				}
				rows = append(rows, survey.Row{
					"STATEFIP": state,
					"YEAR":     year,
					"PERWT":    1,
					"CLUSTER":  float64(id),
					"HINSCAID": medicaid,
					"HCOVANY":  float64(1 + k%2),
					"HINSEMP":  float64(1 + (k/2)%2),
					"EMPSTAT":  float64(1 + k%3),
					"SCHOOL":   float64(1 + (k/3)%2),
					"AGE":      float64(19 + (k*7)%46),
					"SEX":      float64(1 + (k/5)%2),
					"RACE":     float64(1 + k%3),
					"OFFPOV":   1,
					"PREPOST":  float64(k % 2),
					"PCP":      float64((k / 4) % 2),
				})
			}
		}
	}
	return rows
}

func didDesign(t *testing.T, opts survey.DesignOptions) *survey.Design {
	t.Helper()
	rc := survey.NewRecoder(survey.IPUMSColumns(), survey.DefaultRules())
	d, err := survey.NewDesign(rc.RecodeAll(didRows()), opts)
	require.NoError(t, err)
	return d
}

func TestFitUnadjustedDID(t *testing.T) {
	d := didDesign(t, survey.DesignOptions{Weight: "PERWT", Cluster: "CLUSTER"})

	res, err := Fit(d.All(), DID(survey.VarMedicaid, survey.VarIntervention, survey.VarPost))
	require.NoError(t, err)

	assert.Equal(t, 100, res.N)
	assert.Equal(t, 96, res.DF)
	require.Len(t, res.Coefficients, 4)

	did, ok := res.Coefficient(InteractionTerm(Unadjusted))
	require.True(t, ok)
	assert.InDelta(t, 0.40, did.Estimate, 1e-9)
	assert.False(t, math.IsNaN(did.SE))
	assert.Greater(t, did.SE, 0.0)
	assert.GreaterOrEqual(t, did.P, 0.0)
	assert.LessOrEqual(t, did.P, 1.0)

	icpt, _ := res.Coefficient("(Intercept)")
	assert.InDelta(t, 0.20, icpt.Estimate, 1e-9)
	treat, _ := res.Coefficient(survey.VarIntervention)
	assert.InDelta(t, 0.0, treat.Estimate, 1e-9)
	post, _ := res.Coefficient(survey.VarPost)
	assert.InDelta(t, 0.0, post.Estimate, 1e-9)
}

func TestFitStandardErrorMatchesClosedForm(t *testing.T) {
	d := didDesign(t, survey.DesignOptions{Weight: "PERWT", Cluster: "CLUSTER"})
	res, err := Fit(d.All(), DID(survey.VarMedicaid, survey.VarIntervention, survey.VarPost))
	require.NoError(t, err)

	// Saturated cell-means model with one record per PSU: the intercept
	// variance is n/(n-1) * sum of squared residuals in the reference
	// cell divided by its size squared.
	resid := 5*0.8*0.8 + 20*0.2*0.2
	want := math.Sqrt(100.0 / 99 * resid / (25 * 25))
	icpt, _ := res.Coefficient("(Intercept)")
	assert.InDelta(t, want, icpt.SE, 1e-9)
}

func TestFitDeterministic(t *testing.T) {
	d := didDesign(t, survey.DesignOptions{Weight: "PERWT", Cluster: "CLUSTER"})
	spec, err := NewModelSpec(survey.VarMedicaid, Adjusted)
	require.NoError(t, err)

	a, err := Fit(d.All(), spec.Formula)
	require.NoError(t, err)
	b, err := Fit(d.All(), spec.Formula)
	require.NoError(t, err)
	assert.Equal(t, a.Coefficients, b.Coefficients)
}

func TestFitAdjustedTerms(t *testing.T) {
	d := didDesign(t, survey.DesignOptions{Weight: "PERWT", Cluster: "CLUSTER"})
	spec, err := NewModelSpec(survey.VarMedicaid, Adjusted)
	require.NoError(t, err)

	res, err := Fit(d.All(), spec.Formula)
	require.NoError(t, err)

	var terms []string
	for _, c := range res.Coefficients {
		terms = append(terms, c.Term)
	}
	assert.Equal(t, []string{
		"(Intercept)", "intervention", "post", "intervention:post",
		"age_cat=26-34", "age_cat=35-44", "age_cat=45-54", "age_cat=55-64",
		"sex_cat=male",
		"race_cat=other", "race_cat=white",
	}, terms)
	assert.Equal(t, "medicaid ~ intervention + post + intervention:post + age_cat + sex_cat + race_cat", res.Formula)
}

func TestFitRankDeficient(t *testing.T) {
	d := didDesign(t, survey.DesignOptions{Weight: "PERWT", Cluster: "CLUSTER"})

	// No post-period records: post is constant zero.
	pre := d.Subset(func(r *survey.Record) bool { return r.Post == survey.No })
	_, err := Fit(pre, DID(survey.VarMedicaid, survey.VarIntervention, survey.VarPost))
	assert.ErrorIs(t, err, ErrRankDeficient)

	// not_afford is never supplied: no complete cases.
	_, err = Fit(d.All(), DID(survey.VarNotAfford, survey.VarIntervention, survey.VarPost))
	assert.ErrorIs(t, err, ErrRankDeficient)
}

func TestFitFactorLevelWithoutCompleteCases(t *testing.T) {
	rows := didRows()
	// The only "other" race respondents have no medicaid code.
	for _, r := range rows {
		if r["RACE"] == 3 {
			r["RACE"] = 1
		}
	}
	rows[0]["RACE"] = 3
	rows[0]["HINSCAID"] = 0

	rc := survey.NewRecoder(survey.IPUMSColumns(), survey.DefaultRules())
	d, err := survey.NewDesign(rc.RecodeAll(rows), survey.DesignOptions{Weight: "PERWT", Cluster: "CLUSTER"})
	require.NoError(t, err)

	spec, err := NewModelSpec(survey.VarMedicaid, Adjusted)
	require.NoError(t, err)
	_, err = Fit(d.All(), spec.Formula)
	assert.ErrorIs(t, err, ErrRankDeficient)
}

func TestFitSingletonStratum(t *testing.T) {
	rows := didRows()
	for i, r := range rows {
		r["STRATA"] = float64(1 + i%3)
		r["CLUSTER"] = float64(i % 7)
	}
	// Stratum 4 holds a single PSU.
	rows[99]["STRATA"] = 4
	rows[99]["CLUSTER"] = 100

	rc := survey.NewRecoder(survey.IPUMSColumns(), survey.DefaultRules())
	d, err := survey.NewDesign(rc.RecodeAll(rows), survey.DesignOptions{
		Weight: "PERWT", Cluster: "CLUSTER", Strata: "STRATA", Nest: true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, d.LonelyStrata())

	res, err := Fit(d.All(), DID(survey.VarMedicaid, survey.VarIntervention, survey.VarPost))
	require.NoError(t, err)
	for _, c := range res.Coefficients {
		assert.False(t, math.IsNaN(c.SE), c.Term)
		assert.False(t, math.IsInf(c.SE, 0), c.Term)
		assert.GreaterOrEqual(t, c.SE, 0.0, c.Term)
	}
}

func TestFitInsufficientDF(t *testing.T) {
	rows := didRows()
	for i, r := range rows {
		r["CLUSTER"] = float64(i % 3)
	}
	rc := survey.NewRecoder(survey.IPUMSColumns(), survey.DefaultRules())
	d, err := survey.NewDesign(rc.RecodeAll(rows), survey.DesignOptions{Weight: "PERWT", Cluster: "CLUSTER"})
	require.NoError(t, err)

	_, err = Fit(d.All(), DID(survey.VarMedicaid, survey.VarIntervention, survey.VarPost))
	assert.ErrorIs(t, err, ErrInsufficientDF)
}

func TestModelTable(t *testing.T) {
	specs, err := ModelTable(Outcomes, Families)
	require.NoError(t, err)
	require.Len(t, specs, 24)
	assert.Equal(t, survey.VarMedicaid, specs[0].Outcome)
	assert.Equal(t, ParallelTrends, specs[0].Family)
	assert.NotNil(t, specs[0].Domain)
	assert.Nil(t, specs[1].Domain)

	_, err = NewModelSpec(survey.VarMedicaid, Family("event_study"))
	assert.Error(t, err)
}

func TestFitAllIsolatesFailures(t *testing.T) {
	d := didDesign(t, survey.DesignOptions{Weight: "PERWT", Cluster: "CLUSTER"})
	specs, err := ModelTable(Outcomes, Families)
	require.NoError(t, err)

	rep, err := FitAll(context.Background(), d.All(), specs, 4)
	require.NoError(t, err)
	assert.Equal(t, len(specs), len(rep.Results)+len(rep.Failures))

	// not_afford is absent from every record; all three families fail.
	failed := make(map[string]int)
	for _, f := range rep.Failures {
		failed[f.Outcome]++
		assert.True(t, errors.Is(f, ErrRankDeficient), f.Error())
	}
	assert.Equal(t, 3, failed[survey.VarNotAfford])

	var sawParallel bool
	for _, r := range rep.Results {
		if r.Outcome == survey.VarMedicaid && r.Family == ParallelTrends {
			sawParallel = true
			_, ok := r.Coefficient(InteractionTerm(ParallelTrends))
			assert.True(t, ok)
			assert.Equal(t, 50, r.N)
		}
	}
	assert.True(t, sawParallel)
}

func TestFitAllCancelled(t *testing.T) {
	d := didDesign(t, survey.DesignOptions{Weight: "PERWT", Cluster: "CLUSTER"})
	specs, err := ModelTable(Outcomes, Families)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FitAll(ctx, d.All(), specs, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
