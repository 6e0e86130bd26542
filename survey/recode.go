package survey

import "math"

// CodeMap maps raw categorical codes to a binary outcome. Codes that are
// not keys of the map recode to Missing.
type CodeMap map[int]bool

// Lookup recodes one raw value.
func (m CodeMap) Lookup(v float64) Flag {
	code, ok := intCode(v)
	if !ok {
		return Missing
	}
	b, ok := m[code]
	if !ok {
		return Missing
	}
	return FlagOf(b)
}

// AgeBand is a closed age interval with its category label.
type AgeBand struct {
	Label string  `yaml:"label"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
}

// Rules holds the recoding tables. DefaultRules returns the IPUMS codings.
type Rules struct {
	TreatedState    int `yaml:"treated_state"`
	ComparisonState int `yaml:"comparison_state"`
	PolicyYear      int `yaml:"policy_year"`

	Medicaid   CodeMap `yaml:"medicaid"`
	Uninsured  CodeMap `yaml:"uninsured"`
	ESI        CodeMap `yaml:"esi"`
	Employed   CodeMap `yaml:"employed"`
	Student    CodeMap `yaml:"student"`
	PoorHealth CodeMap `yaml:"poorhealth"`
	Binary     CodeMap `yaml:"binary"`

	AgeBands []AgeBand      `yaml:"age_bands"`
	Sex      map[int]string `yaml:"sex"`
	Race     map[int]string `yaml:"race"`
}

// DefaultRules returns the Georgia / South Dakota codings.
func DefaultRules() Rules {
	return Rules{
		TreatedState:    13,
		ComparisonState: 46,
		PolicyYear:      2023,

		Medicaid:   CodeMap{1: false, 2: true},
		Uninsured:  CodeMap{1: true, 2: false},
		ESI:        CodeMap{1: false, 2: true},
		Employed:   CodeMap{1: true, 2: false, 3: false},
		Student:    CodeMap{1: false, 2: true},
		PoorHealth: CodeMap{1: false, 2: false, 3: false, 4: true, 5: true},
		Binary:     CodeMap{0: false, 1: true},

		AgeBands: []AgeBand{
			{Label: "19-25", Min: 19, Max: 25},
			{Label: "26-34", Min: 26, Max: 34},
			{Label: "35-44", Min: 35, Max: 44},
			{Label: "45-54", Min: 45, Max: 54},
			{Label: "55-64", Min: 55, Max: 64},
		},
		Sex: map[int]string{1: "male", 2: "female"},
		Race: map[int]string{
			1: "white", 2: "black",
			3: "other", 4: "other", 5: "other", 6: "other", 7: "other", 8: "other", 9: "other",
		},
	}
}

// Recoder derives analysis variables from raw rows. It holds no state
// beyond its tables and is safe for concurrent use.
type Recoder struct {
	Columns Columns
	Rules   Rules
}

// NewRecoder returns a Recoder over the given column layout and rules.
func NewRecoder(cols Columns, rules Rules) *Recoder {
	return &Recoder{Columns: cols, Rules: rules}
}

// Recode derives every analysis field of one row. It never fails: a raw
// code outside its documented domain leaves the derived field missing.
func (rc *Recoder) Recode(row Row) Record {
	c, ru := rc.Columns, rc.Rules
	rec := Record{Raw: row}

	if state, ok := intCode(row.Get(c.State)); ok {
		switch state {
		case ru.TreatedState:
			rec.Intervention = Yes
		case ru.ComparisonState:
			rec.Intervention = No
		}
	}

	if year, ok := intCode(row.Get(c.Year)); ok {
		rec.Post = FlagOf(year >= ru.PolicyYear)
	}

	rec.Medicaid = ru.Medicaid.Lookup(row.Get(c.Medicaid))
	rec.Uninsured = ru.Uninsured.Lookup(row.Get(c.Coverage))
	rec.ESI = ru.ESI.Lookup(row.Get(c.Employer))
	rec.Employed = ru.Employed.Lookup(row.Get(c.EmpStat))
	rec.Student = ru.Student.Lookup(row.Get(c.School))
	rec.PoorHealth = ru.PoorHealth.Lookup(row.Get(c.Health))
	rec.Qualifying = Qualifying(rec.Employed, rec.Student)

	// Supplied by the collaborator data source, not derived here.
	rec.PrePost = ru.Binary.Lookup(row.Get(c.PrePost))
	rec.PCP = ru.Binary.Lookup(row.Get(c.PCP))
	rec.NotAfford = ru.Binary.Lookup(row.Get(c.NotAfford))

	rec.Spending = row.Get(c.Spending)
	rec.Age = row.Get(c.Age)
	rec.Poverty = row.Get(c.Poverty)

	if !math.IsNaN(rec.Age) {
		for _, b := range ru.AgeBands {
			if rec.Age >= b.Min && rec.Age <= b.Max {
				rec.AgeCat = b.Label
				break
			}
		}
	}
	if sex, ok := intCode(row.Get(c.Sex)); ok {
		rec.SexCat = ru.Sex[sex]
	}
	if race, ok := intCode(row.Get(c.Race)); ok {
		rec.RaceCat = ru.Race[race]
	}

	return rec
}

// RecodeAll recodes a batch of rows.
func (rc *Recoder) RecodeAll(rows []Row) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = rc.Recode(row)
	}
	return out
}

// Qualifying combines employment and enrollment: either one being Yes is
// enough, No needs both explicitly No, anything else is Missing.
func Qualifying(employed, student Flag) Flag {
	switch {
	case employed == Yes || student == Yes:
		return Yes
	case employed == No && student == No:
		return No
	}
	return Missing
}

// intCode converts a raw numeric cell to an integer code. NaN, infinities
// and non-integral values are rejected.
func intCode(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, false
	}
	return int(v), true
}
