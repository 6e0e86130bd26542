package regress

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"workreq/survey"
)

var (
	// ErrRankDeficient is returned when the weighted design matrix does not
	// have full column rank: too few observations, a constant column, or a
	// factor level with no complete cases.
	ErrRankDeficient = errors.New("design matrix is rank deficient")

	// ErrInsufficientDF is returned when the design leaves no residual
	// degrees of freedom for inference.
	ErrInsufficientDF = errors.New("insufficient design degrees of freedom")
)

// rankTol is the relative tolerance on the diagonal of R in the QR
// decomposition of sqrt(W)X.
const rankTol = 1e-7

// Coefficient is one estimated model term.
type Coefficient struct {
	Term     string
	Estimate float64
	SE       float64
	T        float64
	P        float64
}

// Result is a fitted survey-weighted linear model.
type Result struct {
	Outcome      string
	Family       Family
	Formula      string
	Coefficients []Coefficient
	N            int     // complete cases used
	WeightedN    float64 // sum of their weights
	DF           int     // residual degrees of freedom
	Cov          *mat.SymDense
}

// Coefficient returns the named term.
func (r *Result) Coefficient(term string) (Coefficient, bool) {
	for _, c := range r.Coefficients {
		if c.Term == term {
			return c, true
		}
	}
	return Coefficient{}, false
}

// Summary formats the coefficient table.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]  n=%d  df=%d\n", r.Formula, r.Family, r.N, r.DF)
	fmt.Fprintf(&b, "  %-24s %12s %12s %9s %9s\n", "term", "estimate", "std.error", "t", "p")
	for _, c := range r.Coefficients {
		fmt.Fprintf(&b, "  %-24s %12.6f %12.6f %9.3f %9.4f\n", c.Term, c.Estimate, c.SE, c.T, c.P)
	}
	return b.String()
}

// Fit estimates a linear model by weighted least squares over the view.
// Standard errors come from the linearization (sandwich) estimator
//
//	V(b) = A^-1 * V_design(U) * A^-1,  A = X'WX,  U_i = w_i x_i e_i
//
// where V_design is the design's clustered, stratified variance of the
// score totals. Inference uses a t reference with design degrees of
// freedom + 1 - p.
func Fit(view *survey.Subset, f Formula) (*Result, error) {
	fr, err := buildFrame(view, f)
	if err != nil {
		return nil, err
	}

	n, p := len(fr.idx), len(fr.names)
	if n <= p {
		return nil, fmt.Errorf("%d complete cases for %d coefficients: %w", n, p, ErrRankDeficient)
	}

	xw := mat.NewDense(n, p, nil)
	yw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		s := math.Sqrt(fr.w[i])
		for j := 0; j < p; j++ {
			xw.Set(i, j, s*fr.x.At(i, j))
		}
		yw.SetVec(i, s*fr.y[i])
	}

	var qr mat.QR
	qr.Factorize(xw)
	var r mat.Dense
	qr.RTo(&r)
	var maxDiag float64
	for j := 0; j < p; j++ {
		maxDiag = math.Max(maxDiag, math.Abs(r.At(j, j)))
	}
	for j := 0; j < p; j++ {
		if maxDiag == 0 || math.Abs(r.At(j, j)) <= rankTol*maxDiag {
			return nil, fmt.Errorf("column %q: %w", fr.names[j], ErrRankDeficient)
		}
	}

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, yw); err != nil {
		return nil, fmt.Errorf("solve: %v: %w", err, ErrRankDeficient)
	}

	var a mat.SymDense
	a.SymOuterK(1, xw.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&a); !ok {
		return nil, fmt.Errorf("X'WX not positive definite: %w", ErrRankDeficient)
	}
	var ainv mat.SymDense
	if err := chol.InverseTo(&ainv); err != nil {
		return nil, fmt.Errorf("invert X'WX: %v: %w", err, ErrRankDeficient)
	}

	u := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		xi := fr.x.RawRowView(i)
		e := fr.y[i] - floats.Dot(xi, beta.RawVector().Data)
		for j := 0; j < p; j++ {
			u.Set(i, j, fr.w[i]*xi[j]*e)
		}
	}

	meat, err := view.Design().Variance(fr.idx, u)
	if err != nil {
		return nil, fmt.Errorf("design variance: %w", err)
	}

	var tmp, sandwich mat.Dense
	tmp.Mul(&ainv, meat)
	sandwich.Mul(&tmp, &ainv)
	cov := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			cov.SetSym(i, j, (sandwich.At(i, j)+sandwich.At(j, i))/2)
		}
	}

	df := view.Design().DegreesOfFreedom(fr.idx) + 1 - p
	if df < 1 {
		return nil, fmt.Errorf("%d residual degrees of freedom: %w", df, ErrInsufficientDF)
	}
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}

	res := &Result{
		Outcome:   f.Response,
		Formula:   f.String(),
		N:         n,
		WeightedN: floats.Sum(fr.w),
		DF:        df,
		Cov:       cov,
	}
	for j, name := range fr.names {
		est := beta.AtVec(j)
		se := math.Sqrt(math.Max(cov.At(j, j), 0))
		t, pv := math.NaN(), math.NaN()
		if se > 0 {
			t = est / se
			pv = math.Min(1, 2*tdist.CDF(-math.Abs(t)))
		}
		res.Coefficients = append(res.Coefficients, Coefficient{
			Term:     name,
			Estimate: est,
			SE:       se,
			T:        t,
			P:        pv,
		})
	}
	return res, nil
}
