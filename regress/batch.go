package regress

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"workreq/survey"
)

// FitError records a model that could not be fitted. It does not stop
// the other fits of a batch.
type FitError struct {
	Outcome string
	Family  Family
	Err     error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Outcome, e.Family, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }

// Report collects the outcome of a batch, in model-table order.
type Report struct {
	Results  []*Result
	Failures []*FitError
}

// FitAll fits every spec over the shared, read-only view with at most
// workers fits in flight. Per-model failures land in Report.Failures;
// the returned error is non-nil only when ctx is cancelled.
func FitAll(ctx context.Context, view *survey.Subset, specs []ModelSpec, workers int) (*Report, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]*Result, len(specs))
	failures := make([]*FitError, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := fitOne(view, spec)
			if err != nil {
				failures[i] = &FitError{Outcome: spec.Outcome, Family: spec.Family, Err: err}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{}
	for i := range specs {
		if results[i] != nil {
			rep.Results = append(rep.Results, results[i])
		}
		if failures[i] != nil {
			rep.Failures = append(rep.Failures, failures[i])
		}
	}
	return rep, nil
}

func fitOne(view *survey.Subset, spec ModelSpec) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic during fit: %v", r)
		}
	}()

	if spec.Domain != nil {
		view = view.Subset(spec.Domain)
	}
	res, err = Fit(view, spec.Formula)
	if err != nil {
		return nil, err
	}
	res.Family = spec.Family
	return res, nil
}
