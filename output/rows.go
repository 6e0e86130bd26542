package output

import (
	"workreq/regress"
	"workreq/survey"
)

// ModelRow is one coefficient of one fitted model.
type ModelRow struct {
	Variant   string  `parquet:"variant"`
	Outcome   string  `parquet:"outcome"`
	Family    string  `parquet:"family"`
	Formula   string  `parquet:"formula"`
	Term      string  `parquet:"term"`
	Estimate  float64 `parquet:"estimate"`
	StdError  float64 `parquet:"std_error"`
	TValue    float64 `parquet:"t_value"`
	PValue    float64 `parquet:"p_value"`
	N         int64   `parquet:"n"`
	WeightedN float64 `parquet:"weighted_n"`
	DF        int64   `parquet:"df"`
}

// TabRow is one group × period cell of a weighted tabulation.
type TabRow struct {
	Variant    string  `parquet:"variant"`
	Outcome    string  `parquet:"outcome"`
	Group      float64 `parquet:"group"`
	Period     float64 `parquet:"period"`
	N          int64   `parquet:"n"`
	Total      float64 `parquet:"total"`
	Count      float64 `parquet:"count"`
	Percentage float64 `parquet:"percentage"`
	StdError   float64 `parquet:"std_error"`
}

// CountRow is one state × period sample count.
type CountRow struct {
	Variant string  `parquet:"variant"`
	State   float64 `parquet:"state"`
	Period  float64 `parquet:"period"`
	Count   int64   `parquet:"count"`
}

// FailureRow records a model that could not be fitted.
type FailureRow struct {
	Variant string `parquet:"variant"`
	Outcome string `parquet:"outcome"`
	Family  string `parquet:"family"`
	Error   string `parquet:"error"`
}

// ModelRows flattens fitted models into one row per coefficient.
func ModelRows(variant string, results []*regress.Result) []ModelRow {
	var rows []ModelRow
	for _, r := range results {
		for _, c := range r.Coefficients {
			rows = append(rows, ModelRow{
				Variant:   variant,
				Outcome:   r.Outcome,
				Family:    string(r.Family),
				Formula:   r.Formula,
				Term:      c.Term,
				Estimate:  c.Estimate,
				StdError:  c.SE,
				TValue:    c.T,
				PValue:    c.P,
				N:         int64(r.N),
				WeightedN: r.WeightedN,
				DF:        int64(r.DF),
			})
		}
	}
	return rows
}

func TabRows(variant string, cells []survey.TabRow) []TabRow {
	rows := make([]TabRow, len(cells))
	for i, c := range cells {
		rows[i] = TabRow{
			Variant:    variant,
			Outcome:    c.Outcome,
			Group:      c.Group,
			Period:     c.Period,
			N:          int64(c.N),
			Total:      c.Total,
			Count:      c.Count,
			Percentage: c.Percentage,
			StdError:   c.SE,
		}
	}
	return rows
}

func CountRows(variant string, counts []survey.CountRow) []CountRow {
	rows := make([]CountRow, len(counts))
	for i, c := range counts {
		rows[i] = CountRow{Variant: variant, State: c.Row, Period: c.Col, Count: int64(c.Count)}
	}
	return rows
}

func FailureRows(variant string, failures []*regress.FitError) []FailureRow {
	rows := make([]FailureRow, len(failures))
	for i, f := range failures {
		rows[i] = FailureRow{
			Variant: variant,
			Outcome: f.Outcome,
			Family:  string(f.Family),
			Error:   f.Err.Error(),
		}
	}
	return rows
}
